package main

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS post (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       INTEGER NOT NULL,
	title    TEXT NOT NULL,
	category TEXT NOT NULL,
	author   TEXT NOT NULL,
	text     TEXT NOT NULL,
	date     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS post_id ON post (id);

CREATE TABLE IF NOT EXISTS counter (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);`

// sqliteStore keeps posts in a SQLite database. The post id column is not
// unique: under IDCount two live posts may share an id, and seq keeps
// insertion order.
type sqliteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	policy IDPolicy
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	// A ":memory:" database exists per connection, so stick to one.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to sqlite database")
	}
	return db, nil
}

func newSQLiteStore(dsn string, policy IDPolicy) (*sqliteStore, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}
	return &sqliteStore{db: db, policy: policy}, nil
}

func (s *sqliteStore) queryPosts(query string, args ...interface{}) ([]Post, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying posts")
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Category, &p.Author, &p.Text, &p.Date); err != nil {
			return nil, errors.Wrap(err, "scanning post")
		}
		posts = append(posts, p)
	}
	return posts, errors.Wrap(rows.Err(), "reading posts")
}

func (s *sqliteStore) List(searchTerm string) ([]Post, error) {
	posts, err := s.queryPosts(`SELECT id, title, category, author, text, date FROM post ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	// LIKE only folds ASCII and treats % and _ as wildcards, so filter here.
	return filterPosts(posts, searchTerm), nil
}

func (s *sqliteStore) Categories() ([]string, error) {
	rows, err := s.db.Query(`SELECT category FROM post GROUP BY category ORDER BY MIN(seq)`)
	if err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scanning category")
		}
		categories = append(categories, c)
	}
	return categories, errors.Wrap(rows.Err(), "reading categories")
}

func (s *sqliteStore) Get(id int) (*Post, error) {
	var p Post
	err := s.db.QueryRow(`
		SELECT id, title, category, author, text, date
		FROM post WHERE id = ? ORDER BY seq LIMIT 1`, id).
		Scan(&p.ID, &p.Title, &p.Category, &p.Author, &p.Text, &p.Date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting post %d", id)
	}
	return &p, nil
}

func (s *sqliteStore) Create(f PostFields) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Post{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	var count, last int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM post`).Scan(&count); err != nil {
		return Post{}, errors.Wrap(err, "counting posts")
	}
	err = tx.QueryRow(`SELECT value FROM counter WHERE name = 'post'`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return Post{}, errors.Wrap(err, "reading post counter")
	}

	p := Post{ID: s.policy.nextID(count, last)}
	p.apply(f)

	_, err = tx.Exec(`INSERT INTO post (id, title, category, author, text, date) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Category, p.Author, p.Text, p.Date)
	if err != nil {
		return Post{}, errors.Wrap(err, "inserting post")
	}
	_, err = tx.Exec(`
		INSERT INTO counter (name, value) VALUES ('post', ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`, p.ID)
	if err != nil {
		return Post{}, errors.Wrap(err, "bumping post counter")
	}

	return p, errors.Wrap(tx.Commit(), "committing post")
}

func (s *sqliteStore) Update(id int, f PostFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE post SET title = ?, category = ?, author = ?, text = ?, date = ?
		WHERE seq = (SELECT seq FROM post WHERE id = ? ORDER BY seq LIMIT 1)`,
		f.Title, f.Category, f.Author, f.Text, f.Date, id)
	if err != nil {
		return errors.Wrapf(err, "updating post %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "updating post %d", id)
	}
	if n == 0 {
		return errors.Wrapf(ErrPostNotFound, "updating post %d", id)
	}
	return nil
}

func (s *sqliteStore) Delete(id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM post WHERE id = ?`, id)
	if err != nil {
		return 0, errors.Wrapf(err, "deleting post %d", id)
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrapf(err, "deleting post %d", id)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
