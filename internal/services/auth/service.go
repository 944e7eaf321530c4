package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/pongladder/internal/dependencies/clock"
	"github.com/mcoot/pongladder/internal/dependencies/random"
	"github.com/mcoot/pongladder/internal/model"
	"github.com/mcoot/pongladder/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrInvalidPassword    = errors.New("invalid password")
)

const tokenLength = 32

// Session represents an authenticated session
type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Service handles registration, credential checks and session management
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
	cfg     Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration time.Duration
	BcryptCost      int

	// UpgradeLegacyHashes rewrites legacy sha256 hashes as bcrypt on the
	// first successful authentication.
	UpgradeLegacyHashes bool
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration:     24 * time.Hour,
		BcryptCost:          bcrypt.DefaultCost,
		UpgradeLegacyHashes: true,
	}
}

// New creates a new auth Service
func New(storage storage.Storage, clock clock.Clock, random random.Random, logger *slog.Logger, cfg Config) *Service {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultConfig().BcryptCost
	}
	return &Service{
		storage:  storage,
		clock:    clock,
		random:   random,
		logger:   logger,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// RegisterUser creates a user with the initial rating.
// Usernames are compared exactly; "Alice" and "alice" are different users.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (*model.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, model.ErrInvalidUsername
	}

	hash, err := hashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Rating:       model.InitialRating,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("username", username))
	return user, nil
}

// Authenticate reports whether the password matches the user's stored hash.
// An unknown user is not an error; the error return is reserved for storage failures.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	_, err := s.verify(ctx, username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login authenticates a user and creates a session
func (s *Service) Login(ctx context.Context, username, password string) (*Session, *model.User, error) {
	user, err := s.verify(ctx, username, password)
	if err != nil {
		return nil, nil, err
	}
	return s.createSession(user.Username), user, nil
}

func (s *Service) verify(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.storage.GetUser(ctx, username)
	if errors.Is(err, model.ErrUnknownPlayer) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, legacy := verifyPassword(user.PasswordHash, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if legacy && s.cfg.UpgradeLegacyHashes {
		s.upgradeHash(ctx, username, password)
	}
	return user, nil
}

// upgradeHash replaces a legacy hash with bcrypt. Failure leaves the
// legacy hash in place and does not fail the login.
func (s *Service) upgradeHash(ctx context.Context, username, password string) {
	hash, err := hashPassword(password, s.cfg.BcryptCost)
	if err == nil {
		err = s.storage.UpdatePasswordHash(ctx, username, hash)
	}
	if err != nil {
		s.logger.Warn("failed to upgrade legacy password hash",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("upgraded legacy password hash", slog.String("username", username))
}

// ValidateSession checks if a session token is valid and returns the session
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidSession
	}

	if s.clock.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrInvalidSession
	}

	return session, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CleanExpiredSessions removes expired sessions and returns how many were dropped
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *Service) createSession(username string) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:     fmt.Sprintf("sess_%s", s.random.String(tokenLength, random.TokenAlphabet)),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}
