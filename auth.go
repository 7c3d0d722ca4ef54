package main

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// defaultUsers are the only accounts that can log in.
var defaultUsers = []struct{ Username, Password string }{
	{"User1", "Pass1"},
	{"User2", "Pass2"},
}

// IdentityStore is a fixed set of users. It is never written to after
// construction, so it needs no locking.
type IdentityStore struct {
	users []User
}

func newIdentityStore() (*IdentityStore, error) {
	s := &IdentityStore{}
	for _, u := range defaultUsers {
		hash, err := hashPassword(u.Password)
		if err != nil {
			return nil, errors.Wrapf(err, "hashing password for %s", u.Username)
		}
		s.users = append(s.users, User{Username: u.Username, PwHash: hash})
	}
	return s, nil
}

// Authenticate returns the user whose username and password both match,
// or nil.
func (s *IdentityStore) Authenticate(username, password string) *User {
	for i := range s.users {
		u := &s.users[i]
		if u.Username == username && checkPassword(u.PwHash, password) {
			return u
		}
	}
	return nil
}

// --- Password helpers ---

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
