package main

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrPostNotFound is returned by Update when no post has the given id.
var ErrPostNotFound = errors.New("post not found")

// IDPolicy decides which id a new post gets.
type IDPolicy string

const (
	// IDSequence hands out ids from a counter that never goes backwards.
	IDSequence IDPolicy = "sequence"
	// IDCount uses the number of stored posts plus one. Ids can repeat
	// once posts have been deleted.
	IDCount IDPolicy = "count"
)

func parseIDPolicy(s string) (IDPolicy, error) {
	switch p := IDPolicy(strings.ToLower(s)); p {
	case IDSequence, IDCount:
		return p, nil
	}
	return "", errors.Errorf("unknown id policy %q", s)
}

// nextID returns the id for a new post given how many posts are stored
// and the highest id ever handed out.
func (p IDPolicy) nextID(count, last int) int {
	if p == IDCount {
		return count + 1
	}
	return last + 1
}

// PostStore is the collection of blog posts.
type PostStore interface {
	List(searchTerm string) ([]Post, error)
	Categories() ([]string, error)
	Get(id int) (*Post, error)
	Create(f PostFields) (Post, error)
	Update(id int, f PostFields) error
	Delete(id int) (int, error)
	Close() error
}

// matchesSearch reports whether term occurs, ignoring case, in any of the
// searchable fields of p. The empty term matches everything.
func matchesSearch(p Post, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, field := range []string{p.Title, p.Category, p.Author, p.Text, p.Date} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func filterPosts(posts []Post, term string) []Post {
	var out []Post
	for _, p := range posts {
		if matchesSearch(p, term) {
			out = append(out, p)
		}
	}
	return out
}

// uniqueCategories returns each category in posts once, in first-seen order.
func uniqueCategories(posts []Post) []string {
	seen := make(map[string]bool, len(posts))
	var out []string
	for _, p := range posts {
		if seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

type memoryStore struct {
	mu     sync.RWMutex
	posts  []Post
	last   int
	policy IDPolicy
}

func newMemoryStore(policy IDPolicy) *memoryStore {
	return &memoryStore{policy: policy}
}

func (s *memoryStore) List(searchTerm string) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterPosts(s.posts, searchTerm), nil
}

func (s *memoryStore) Categories() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uniqueCategories(s.posts), nil
}

func (s *memoryStore) Get(id int) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		p := s.posts[i]
		return &p, nil
	}
	return nil, nil
}

func (s *memoryStore) Create(f PostFields) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Post{ID: s.policy.nextID(len(s.posts), s.last)}
	p.apply(f)
	if p.ID > s.last {
		s.last = p.ID
	}
	s.posts = append(s.posts, p)
	return p, nil
}

func (s *memoryStore) Update(id int, f PostFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return errors.Wrapf(ErrPostNotFound, "updating post %d", id)
	}
	s.posts[i].apply(f)
	return nil
}

func (s *memoryStore) Delete(id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.posts[:0]
	for _, p := range s.posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	removed := len(s.posts) - len(kept)
	// Clear the tail so removed posts don't linger in the backing array.
	for i := len(kept); i < len(s.posts); i++ {
		s.posts[i] = Post{}
	}
	s.posts = kept
	return removed, nil
}

func (s *memoryStore) Close() error { return nil }

// index returns the position of the first post with the given id, or -1.
// Callers hold s.mu.
func (s *memoryStore) index(id int) int {
	for i, p := range s.posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}
