package main

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/pkg/errors"
)

// pages are the views a handler can render. Each is wrapped in layout.html.
var pages = []string{"index", "skapa", "blogg", "edit", "login"}

type views struct {
	layout *exec.Template
	pages  map[string]*exec.Template
}

func parseTemplate(path string) (*exec.Template, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading template")
	}
	tpl, err := gonja.FromString(string(src))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing template %s", path)
	}
	return tpl, nil
}

func loadViews(dir string) (*views, error) {
	layout, err := parseTemplate(filepath.Join(dir, "layout.html"))
	if err != nil {
		return nil, err
	}
	v := &views{layout: layout, pages: make(map[string]*exec.Template, len(pages))}
	for _, name := range pages {
		tpl, err := parseTemplate(filepath.Join(dir, name+".html"))
		if err != nil {
			return nil, err
		}
		v.pages[name] = tpl
	}
	return v, nil
}

// render executes the named page and then the layout around it. Nothing is
// written to w unless both succeed.
func (v *views) render(w io.Writer, name string, data map[string]interface{}) error {
	page, ok := v.pages[name]
	if !ok {
		return errors.Errorf("unknown view %q", name)
	}

	var body bytes.Buffer
	if err := page.Execute(&body, exec.NewContext(data)); err != nil {
		return errors.Wrapf(err, "rendering %s", name)
	}

	outer := make(map[string]interface{}, len(data)+1)
	for k, val := range data {
		outer[k] = val
	}
	outer["content"] = body.String()

	var out bytes.Buffer
	if err := v.layout.Execute(&out, exec.NewContext(outer)); err != nil {
		return errors.Wrapf(err, "rendering layout for %s", name)
	}
	_, err := out.WriteTo(w)
	return err
}

// postView turns a post into template data. A nil post stays nil so that
// templates can test for it.
func postView(p *Post) interface{} {
	if p == nil {
		return nil
	}
	return map[string]interface{}{
		"id":       p.ID,
		"title":    p.Title,
		"category": p.Category,
		"author":   p.Author,
		"text":     p.Text,
		"date":     p.Date,
	}
}

func postViews(posts []Post) []interface{} {
	out := make([]interface{}, 0, len(posts))
	for i := range posts {
		out = append(out, postView(&posts[i]))
	}
	return out
}

// categoryLinks pairs each category with the listing URL that searches for it.
func categoryLinks(categories []string) []interface{} {
	out := make([]interface{}, 0, len(categories))
	for _, c := range categories {
		out = append(out, map[string]interface{}{
			"name": c,
			"href": "/bloggar?searchTerm=" + url.QueryEscape(c),
		})
	}
	return out
}
