// Package auth manages user registration, login and the current session.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/services/ledger"
	"github.com/valutatrade/valutahub/internal/storage/users"
	"go.uber.org/zap"
)

// Service implements user lifecycle operations over the user store.
// Registration's check-then-write race on username uniqueness is closed
// by mu: the whole load-check-save sequence runs under one lock.
type Service struct {
	users      *users.Store
	portfolios ledger.PortfolioStore
	logger     *zap.Logger

	mu sync.Mutex
}

// New creates the auth service.
func New(userStore *users.Store, portfolios ledger.PortfolioStore, logger *zap.Logger) *Service {
	return &Service{users: userStore, portfolios: portfolios, logger: logger}
}

// Register creates a new user with an empty portfolio. The username must
// be unused; the password at least four characters.
func (s *Service) Register(username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.NewValidationError("username must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.users.LoadAll()
	if err != nil {
		return nil, err
	}

	var maxID int64
	for _, u := range all {
		if u.Username == username {
			return nil, errors.Wrapf(domain.ErrUserAlreadyExists, "username %q", username)
		}
		if u.ID > maxID {
			maxID = u.ID
		}
	}

	user, err := domain.NewUser(maxID+1, username, password)
	if err != nil {
		return nil, err
	}

	if err := s.users.SaveAll(append(all, user)); err != nil {
		return nil, err
	}

	// Lazily materialize the empty portfolio document so the first trade
	// starts from a persisted baseline.
	p, err := s.portfolios.Load(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.portfolios.Save(p); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Login verifies credentials and opens a session for the user.
func (s *Service) Login(username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)

	user, err := s.findUser(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NewValidationError("user %q not found", username)
	}
	if !user.VerifyPassword(password) {
		return nil, domain.NewValidationError("wrong password")
	}

	sess := users.Session{
		CurrentUser: user.Username,
		Token:       uuid.NewString(),
		LoggedInAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := s.users.SaveSession(sess); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Logout clears the session.
func (s *Service) Logout() error {
	return s.users.ClearSession()
}

// CurrentUser returns the logged-in user, or ErrNotAuthenticated when no
// valid session exists. A session pointing at a deleted user is cleared.
func (s *Service) CurrentUser() (*domain.User, error) {
	sess, err := s.users.LoadSession()
	if err != nil {
		return nil, err
	}
	if sess.CurrentUser == "" {
		return nil, domain.ErrNotAuthenticated
	}

	user, err := s.findUser(sess.CurrentUser)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = s.users.ClearSession()
		return nil, domain.ErrNotAuthenticated
	}
	return user, nil
}

func (s *Service) findUser(username string) (*domain.User, error) {
	all, err := s.users.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}
