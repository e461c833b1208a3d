package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"freqy/internal/database"
	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything beyond 72 bytes
	maxUsernameLength = 50
	maxEmailLength    = 254
)

var (
	// ErrDuplicateEmail is returned by Register when the email is already in use.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned by Authenticate for an unknown email and
	// for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is matched by every FieldError.
	ErrInvalidInput = errors.New("invalid input")
)

// FieldError describes a rejected form field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrInvalidInput) match any FieldError.
func (e *FieldError) Is(target error) bool { return target == ErrInvalidInput }

// UserRepository is the persistence the credential store needs.
type UserRepository interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}

// UserStore manages registration, authentication and password changes
type UserStore struct {
	repo   UserRepository
	cost   int
	logger *logrus.Logger

	// dummyHash is compared against when the email is unknown so that both
	// failure paths spend a bcrypt comparison.
	dummyHash []byte
}

// NewUserStore creates a credential store hashing with the given bcrypt cost.
func NewUserStore(repo UserRepository, cost int, logger *logrus.Logger) (*UserStore, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("freqy-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &UserStore{
		repo:      repo,
		cost:      cost,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register validates the input, rejects a known email and stores a new user
// with a bcrypt hash of the password. An empty username defaults to the
// local part of the email.
func (us *UserStore) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, &FieldError{Field: "username", Message: fmt.Sprintf("Username too long (max %d characters)", maxUsernameLength)}
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	exists, err := us.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	hash, err := us.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := us.repo.CreateUser(ctx, email, username, hash)
	if errors.Is(err, database.ErrEmailTaken) {
		// Lost a race with a concurrent registration
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	us.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")

	return user, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (us *UserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := us.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(us.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// ChangePassword re-hashes and overwrites the password of an existing user.
func (us *UserStore) ChangePassword(ctx context.Context, userID int64, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := us.hashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := us.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	us.logger.WithField("user_id", userID).Info("Password changed")
	return nil
}

// hashPassword hashes a plaintext password using bcrypt
func (us *UserStore) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), us.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func validateEmail(email string) error {
	if email == "" {
		return &FieldError{Field: "email", Message: "Email is required"}
	}
	if len(email) > maxEmailLength {
		return &FieldError{Field: "email", Message: "Email too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return &FieldError{Field: "email", Message: "Please enter a valid email address"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return &FieldError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLength)}
	}
	if len(password) > maxPasswordLength {
		return &FieldError{Field: "password", Message: fmt.Sprintf("Password too long (max %d bytes)", maxPasswordLength)}
	}
	return nil
}
