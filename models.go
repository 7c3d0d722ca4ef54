package main

// Post is a single blog entry.
type Post struct {
	ID       int
	Title    string
	Category string
	Author   string
	Text     string
	Date     string
}

// PostFields holds the editable fields of a post, as submitted by a form.
type PostFields struct {
	Title    string
	Category string
	Author   string
	Text     string
	Date     string
}

func (p *Post) apply(f PostFields) {
	p.Title = f.Title
	p.Category = f.Category
	p.Author = f.Author
	p.Text = f.Text
	p.Date = f.Date
}

// User is one of the fixed accounts allowed to log in.
type User struct {
	Username string
	PwHash   string
}
