// Package users persists the user collection and the login session.
package users

import (
	"time"

	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/storage/docstore"
)

const (
	usersDoc   = "users.json"
	sessionDoc = "session.json"
)

// Session records who is currently logged in.
type Session struct {
	CurrentUser string    `json:"current_user"`
	Token       string    `json:"token,omitempty"`
	LoggedInAt  time.Time `json:"logged_in_at,omitempty"`
}

// Store reads and writes the full user collection as one document.
// Registration's check-then-write race is closed above this store by the
// auth service's collection-wide lock.
type Store struct {
	db *docstore.Store
}

// New creates a user store over db.
func New(db *docstore.Store) *Store {
	return &Store{db: db}
}

// LoadAll returns every registered user.
func (s *Store) LoadAll() ([]*domain.User, error) {
	var users []*domain.User
	if _, err := s.db.Read(usersDoc, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SaveAll replaces the user collection.
func (s *Store) SaveAll(users []*domain.User) error {
	return s.db.Write(usersDoc, users)
}

// LoadSession returns the current session, empty if nobody is logged in.
func (s *Store) LoadSession() (Session, error) {
	var sess Session
	if _, err := s.db.Read(sessionDoc, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SaveSession replaces the session document.
func (s *Store) SaveSession(sess Session) error {
	return s.db.Write(sessionDoc, sess)
}

// ClearSession logs the current user out.
func (s *Store) ClearSession() error {
	return s.db.Write(sessionDoc, Session{})
}
