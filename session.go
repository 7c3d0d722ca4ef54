package main

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	sessionName = "session"
	userKey     = "user"
)

// sessionValues is what a server-side backend persists for a session.
type sessionValues struct {
	User string `json:"user,omitempty"`
}

// sessionBackend stores encoded session values by session id.
type sessionBackend interface {
	load(ctx context.Context, id string) ([]byte, bool, error)
	save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	delete(ctx context.Context, id string) error
}

// ServerStore is a sessions.Store that keeps values on the server. The
// client only holds a signed session id.
type ServerStore struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options
	backend sessionBackend
}

func newServerStore(backend sessionBackend, maxAge int, keyPairs ...[]byte) *ServerStore {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(maxAge)
		}
	}
	return &ServerStore{
		Codecs: codecs,
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		backend: backend,
	}
}

// Get returns the session for the request, cached per request by the
// gorilla registry.
func (s *ServerStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing, forged or
// expired id yields a fresh empty session without error.
func (s *ServerStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		session.ID = ""
		return session, nil
	}

	data, ok, err := s.backend.load(r.Context(), session.ID)
	if err != nil {
		return session, errors.Wrap(err, "loading session")
	}
	if !ok {
		session.ID = ""
		return session, nil
	}

	var v sessionValues
	if err := json.Unmarshal(data, &v); err != nil {
		return session, errors.Wrap(err, "decoding session")
	}
	if v.User != "" {
		session.Values[userKey] = v.User
	}
	session.IsNew = false
	return session, nil
}

// Save writes the session to the backend and sets the id cookie. A
// negative MaxAge destroys the session.
func (s *ServerStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		// The cookie goes even if the backend delete fails.
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		if session.ID != "" {
			if err := s.backend.delete(r.Context(), session.ID); err != nil {
				return errors.Wrap(err, "deleting session")
			}
		}
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(
			base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}

	var v sessionValues
	v.User, _ = session.Values[userKey].(string)
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.backend.save(r.Context(), session.ID, data, ttl); err != nil {
		return errors.Wrap(err, "saving session")
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return errors.Wrap(err, "signing session id")
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// --- memory backend ---

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *memoryBackend) load(_ context.Context, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, id)
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *memoryBackend) save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[id] = e
	return nil
}

func (m *memoryBackend) delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// sweep drops expired entries.
func (m *memoryBackend) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// --- redis backend ---

type redisBackend struct {
	client *redis.Client
	prefix string
}

func newRedisBackend(client *redis.Client) *redisBackend {
	return &redisBackend{client: client, prefix: "session:"}
}

func (b *redisBackend) key(id string) string {
	return b.prefix + id
}

func (b *redisBackend) load(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *redisBackend) save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.key(id), data, ttl).Err()
}

func (b *redisBackend) delete(ctx context.Context, id string) error {
	return b.client.Del(ctx, b.key(id)).Err()
}

// --- cookie store ---

func newCookieStore(maxAge int, keyPairs ...[]byte) *sessions.CookieStore {
	s := sessions.NewCookieStore(keyPairs...)
	s.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	s.MaxAge(maxAge)
	return s
}
