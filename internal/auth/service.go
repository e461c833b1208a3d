package auth

import (
	"context"
	"errors"
	"fmt"

	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrUnauthorized is returned for protected operations attempted without a session.
var ErrUnauthorized = errors.New("authentication required")

// Service provides authentication functionality: the credential store and
// the session manager behind one facade.
type Service struct {
	userStore      *UserStore
	sessionManager *SessionManager
	logger         *logrus.Logger
}

// NewService creates a new authentication service
func NewService(userStore *UserStore, sessionManager *SessionManager, logger *logrus.Logger) *Service {
	return &Service{
		userStore:      userStore,
		sessionManager: sessionManager,
		logger:         logger,
	}
}

// Register creates a new user account and opens a session for it.
func (s *Service) Register(ctx context.Context, email, username, password string) (*models.User, *Session, string, error) {
	user, err := s.userStore.Register(ctx, email, username, password)
	if err != nil {
		return nil, nil, "", err
	}

	session, token, err := s.sessionManager.CreateSession(ctx, user)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return user, session, token, nil
}

// Login attempts to authenticate a user and create a session
func (s *Service) Login(ctx context.Context, email, password string) (*Session, string, error) {
	user, err := s.userStore.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", err
	}

	session, token, err := s.sessionManager.CreateSession(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("User logged in")
	return session, token, nil
}

// Logout invalidates a session. Unknown sessions are ignored.
func (s *Service) Logout(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}

	if err := s.sessionManager.DeleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.WithField("user_id", session.UserID).Info("User logged out")
	return nil
}

// ChangePassword sets a new password for the session's user and revokes
// every other session of that user.
func (s *Service) ChangePassword(ctx context.Context, session *Session, newPassword string) error {
	if session == nil {
		return ErrUnauthorized
	}

	if err := s.userStore.ChangePassword(ctx, session.UserID, newPassword); err != nil {
		return err
	}

	if err := s.sessionManager.DeleteUserSessions(ctx, session.UserID, session.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", session.UserID).Warn("Failed to revoke other sessions")
	}
	return nil
}

// Sessions returns the session manager (for middleware)
func (s *Service) Sessions() *SessionManager {
	return s.sessionManager
}
