package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"freqy/internal/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key-0123456789"

type testEnv struct {
	db       *database.Database
	users    *UserStore
	sessions *SessionManager
	service  *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "auth.db"), 1, logger)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users, err := NewUserStore(db, bcrypt.MinCost, logger)
	if err != nil {
		t.Fatalf("Failed to create user store: %v", err)
	}

	store := NewMemorySessionStore(0)
	t.Cleanup(func() { store.Close() })

	sessions := NewSessionManager(store, testSecret, time.Hour, "", false)

	return &testEnv{
		db:       db,
		users:    users,
		sessions: sessions,
		service:  NewService(users, sessions, logger),
	}
}

func TestUserStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("Register", func(t *testing.T) {
		user, err := env.users.Register(ctx, "  Anna@Example.com ", "", "password123")
		if err != nil {
			t.Fatalf("Failed to register user: %v", err)
		}
		if user.Email != "anna@example.com" {
			t.Errorf("Expected normalized email, got %s", user.Email)
		}
		if user.Username != "anna" {
			t.Errorf("Expected username to default to local part, got %s", user.Username)
		}
		if user.PasswordHash == "password123" {
			t.Error("Password stored in plain text")
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := env.users.Register(ctx, "ANNA@example.com", "Other", "password456")
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("Expected ErrDuplicateEmail, got %v", err)
		}

		all, err := env.db.GetAllUsers(ctx)
		if err != nil {
			t.Fatalf("Failed to list users: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("Expected exactly 1 user row, got %d", len(all))
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		tests := []struct {
			name     string
			email    string
			username string
			password string
			field    string
		}{
			{"empty email", "", "x", "password123", "email"},
			{"malformed email", "not-an-email", "x", "password123", "email"},
			{"short password", "short@example.com", "x", "short", "password"},
			{"long password", "long@example.com", "x", string(make([]byte, 73)), "password"},
			{"long username", "name@example.com", string(make([]rune, 51)), "password123", "username"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.users.Register(ctx, tt.email, tt.username, tt.password)
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("Expected ErrInvalidInput, got %v", err)
				}
				var fieldErr *FieldError
				if !errors.As(err, &fieldErr) || fieldErr.Field != tt.field {
					t.Errorf("Expected field error on %s, got %v", tt.field, err)
				}
			})
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		user, err := env.users.Authenticate(ctx, "anna@example.com", "password123")
		if err != nil {
			t.Fatalf("Expected authentication to succeed: %v", err)
		}
		if user.Email != "anna@example.com" {
			t.Errorf("Unexpected user %+v", user)
		}

		_, wrongPassword := env.users.Authenticate(ctx, "anna@example.com", "wrongpassword")
		_, unknownEmail := env.users.Authenticate(ctx, "nobody@example.com", "password123")
		if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownEmail, ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials for both, got %v and %v", wrongPassword, unknownEmail)
		}
		if wrongPassword.Error() != unknownEmail.Error() {
			t.Error("Wrong password and unknown email must be indistinguishable")
		}
	})
}

func TestSessionTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.users.Register(ctx, "bob@example.com", "Bob", "password123"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	session, token, err := env.service.Login(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Failed to log in: %v", err)
	}

	t.Run("ValidToken", func(t *testing.T) {
		got, err := env.sessions.ValidateToken(ctx, token)
		if err != nil {
			t.Fatalf("Expected valid token: %v", err)
		}
		if got.ID != session.ID || got.Username != "Bob" {
			t.Errorf("Unexpected session %+v", got)
		}
	})

	t.Run("ForgedToken", func(t *testing.T) {
		claims := sessionClaims{
			SessionID: session.ID,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-secret-value"))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := env.sessions.ValidateToken(ctx, forged); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected forged token to be rejected, got %v", err)
		}
		if _, err := env.sessions.ValidateToken(ctx, token+"x"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected tampered token to be rejected, got %v", err)
		}
		if _, err := env.sessions.ValidateToken(ctx, "garbage"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected garbage token to be rejected, got %v", err)
		}
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		env.sessions.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { env.sessions.now = time.Now }()

		if _, err := env.sessions.ValidateToken(ctx, token); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected expired token to be rejected, got %v", err)
		}
	})

	t.Run("Refresh", func(t *testing.T) {
		fresh, err := env.sessions.RefreshSession(ctx, session)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if fresh != "" {
			t.Error("Expected no refresh for a new session")
		}

		later := time.Now().Add(40 * time.Minute)
		env.sessions.now = func() time.Time { return later }
		defer func() { env.sessions.now = time.Now }()

		refreshed, err := env.sessions.RefreshSession(ctx, session)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if refreshed == "" {
			t.Fatal("Expected a new token past half of the lifetime")
		}
		if !session.ExpiresAt.Equal(later.Add(time.Hour)) {
			t.Errorf("Expected expiry to slide to %v, got %v", later.Add(time.Hour), session.ExpiresAt)
		}
		if _, err := env.sessions.ValidateToken(ctx, refreshed); err != nil {
			t.Errorf("Expected refreshed token to validate: %v", err)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		if err := env.service.Logout(ctx, session); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		if _, err := env.sessions.ValidateToken(ctx, token); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected token to be invalid after logout, got %v", err)
		}
		if err := env.service.Logout(ctx, nil); err != nil {
			t.Errorf("Logout without session should be a no-op, got %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.users.Register(ctx, "carol@example.com", "Carol", "password123"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	current, currentToken, err := env.service.Login(ctx, "carol@example.com", "password123")
	if err != nil {
		t.Fatalf("Failed to log in: %v", err)
	}
	_, otherToken, err := env.service.Login(ctx, "carol@example.com", "password123")
	if err != nil {
		t.Fatalf("Failed to log in again: %v", err)
	}

	if err := env.service.ChangePassword(ctx, current, "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for short password, got %v", err)
	}

	if err := env.service.ChangePassword(ctx, current, "newpassword456"); err != nil {
		t.Fatalf("Failed to change password: %v", err)
	}

	if _, err := env.users.Authenticate(ctx, "carol@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected old password to fail, got %v", err)
	}
	if _, err := env.users.Authenticate(ctx, "carol@example.com", "newpassword456"); err != nil {
		t.Errorf("Expected new password to work: %v", err)
	}

	if _, err := env.sessions.ValidateToken(ctx, currentToken); err != nil {
		t.Errorf("Expected current session to survive: %v", err)
	}
	if _, err := env.sessions.ValidateToken(ctx, otherToken); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected other session to be revoked, got %v", err)
	}

	if err := env.service.ChangePassword(ctx, nil, "newpassword789"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized without a session, got %v", err)
	}
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	expired := &Session{ID: "old", UserID: 1, ExpiresAt: time.Now().Add(-time.Minute)}
	live := &Session{ID: "new", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	for _, s := range []*Session{expired, live} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected expired session to be gone, got %v", err)
	}

	got, err := store.Get(ctx, "new")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Username = "mutated"
	again, _ := store.Get(ctx, "new")
	if again.Username == "mutated" {
		t.Error("Store must not hand out its internal records")
	}

	if err := store.Delete(ctx, "new"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("Expected empty store, got %d sessions", n)
	}
}
