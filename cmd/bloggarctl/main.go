// Command bloggarctl inspects and prunes a SQLite post database written by
// the bloggar server when it runs with POST_STORE=sqlite.
package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:          "bloggarctl",
		Short:        "Inspect and prune the bloggar post database",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "bloggar.db", "path to the SQLite post database")

	open := func() (*sql.DB, error) {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, errors.Wrap(err, "can't open database")
		}
		return sql.Open("sqlite3", dbPath)
	}

	root.AddCommand(newListCmd(open), newDeleteCmd(open))
	return root
}

func newListCmd(open func() (*sql.DB, error)) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every post as id,category,author,date,title",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			return listPosts(db, cmd.OutOrStdout(), search)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "only posts containing this text (case-insensitive)")
	return cmd
}

func newDeleteCmd(open func() (*sql.DB, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post_id>...",
		Short: "Delete posts by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Invalid post ID: %s\n", arg)
					continue
				}
				res, err := db.Exec("DELETE FROM post WHERE id = ?", id)
				if err != nil {
					return errors.Wrap(err, "SQL error")
				}
				n, _ := res.RowsAffected()
				fmt.Fprintf(out, "Deleted %d post(s) with id %d\n", n, id)
			}
			return nil
		},
	}
}

func listPosts(db *sql.DB, out io.Writer, search string) error {
	rows, err := db.Query("SELECT id, title, category, author, text, date FROM post ORDER BY seq")
	if err != nil {
		return errors.Wrap(err, "SQL error")
	}
	defer rows.Close()

	search = strings.ToLower(search)
	for rows.Next() {
		var id int
		var title, category, author, text, date string
		if err := rows.Scan(&id, &title, &category, &author, &text, &date); err != nil {
			return errors.Wrap(err, "SQL error")
		}
		if search != "" && !strings.Contains(strings.ToLower(title+"\x00"+category+"\x00"+author+"\x00"+text+"\x00"+date), search) {
			continue
		}
		fmt.Fprintf(out, "%d,%s,%s,%s,%s\n", id, category, author, date, title)
	}
	return rows.Err()
}
