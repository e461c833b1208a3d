package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"freqy/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by a SessionStore for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session represents an active user session
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore holds server-side session records.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteUserSessions removes every session of userID except the one named by keep.
	DeleteUserSessions(ctx context.Context, userID int64, keep string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	done     chan struct{}
	once     sync.Once
}

// NewMemorySessionStore creates a store that sweeps expired sessions every interval.
func NewMemorySessionStore(interval time.Duration) *MemorySessionStore {
	store := &MemorySessionStore{
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}

	if interval > 0 {
		go store.cleanupExpiredSessions(interval)
	}

	return store
}

// Save stores or replaces a session.
func (ms *MemorySessionStore) Save(_ context.Context, session *Session) error {
	copied := *session

	ms.mutex.Lock()
	ms.sessions[session.ID] = &copied
	ms.mutex.Unlock()

	return nil
}

// Get retrieves a session by ID
func (ms *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	ms.mutex.RLock()
	session, exists := ms.sessions[id]
	ms.mutex.RUnlock()

	if !exists {
		return nil, ErrSessionNotFound
	}

	if session.Expired(time.Now()) {
		ms.mutex.Lock()
		delete(ms.sessions, id)
		ms.mutex.Unlock()
		return nil, ErrSessionNotFound
	}

	copied := *session
	return &copied, nil
}

// Delete removes a session
func (ms *MemorySessionStore) Delete(_ context.Context, id string) error {
	ms.mutex.Lock()
	delete(ms.sessions, id)
	ms.mutex.Unlock()
	return nil
}

// DeleteUserSessions removes all sessions for a specific user except keep
func (ms *MemorySessionStore) DeleteUserSessions(_ context.Context, userID int64, keep string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for id, session := range ms.sessions {
		if session.UserID == userID && id != keep {
			delete(ms.sessions, id)
		}
	}
	return nil
}

// Count returns the number of stored sessions, expired ones included until swept.
func (ms *MemorySessionStore) Count(_ context.Context) (int, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return len(ms.sessions), nil
}

// Close stops the cleanup goroutine.
func (ms *MemorySessionStore) Close() error {
	ms.once.Do(func() { close(ms.done) })
	return nil
}

// cleanupExpiredSessions periodically removes expired sessions
func (ms *MemorySessionStore) cleanupExpiredSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			return
		case now := <-ticker.C:
			ms.mutex.Lock()
			for id, session := range ms.sessions {
				if session.Expired(now) {
					delete(ms.sessions, id)
				}
			}
			ms.mutex.Unlock()
		}
	}
}

// sessionClaims is the payload of the signed session cookie. The cookie only
// names the server-side session; the record itself stays in the store.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionManager issues, validates and revokes sessions and their cookies.
type SessionManager struct {
	store         SessionStore
	secret        []byte
	duration      time.Duration
	cookieName    string
	secureCookies bool
	now           func() time.Time
}

// NewSessionManager creates a new session manager signing cookies with secret
func NewSessionManager(store SessionStore, secret string, duration time.Duration, cookieName string, secureCookies bool) *SessionManager {
	if cookieName == "" {
		cookieName = "freqy_session"
	}
	return &SessionManager{
		store:         store,
		secret:        []byte(secret),
		duration:      duration,
		cookieName:    cookieName,
		secureCookies: secureCookies,
		now:           time.Now,
	}
}

// CreateSession creates a new session for the user and returns it with its signed token
func (sm *SessionManager) CreateSession(ctx context.Context, user *models.User) (*Session, string, error) {
	now := sm.now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.duration),
	}

	if err := sm.store.Save(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to store session: %w", err)
	}

	token, err := sm.signToken(session)
	if err != nil {
		return nil, "", err
	}

	return session, token, nil
}

// ValidateToken verifies the token signature and resolves the stored session.
func (sm *SessionManager) ValidateToken(ctx context.Context, token string) (*Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(sm.now))
	if err != nil {
		return nil, ErrSessionNotFound
	}

	session, err := sm.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	if session.Expired(sm.now()) || strconv.FormatInt(session.UserID, 10) != claims.Subject {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// RefreshSession extends a session that has used up more than half of its
// lifetime. It returns a new token when the session was extended and an
// empty string otherwise.
func (sm *SessionManager) RefreshSession(ctx context.Context, session *Session) (string, error) {
	now := sm.now()
	if session.ExpiresAt.Sub(now) > sm.duration/2 {
		return "", nil
	}

	session.ExpiresAt = now.Add(sm.duration)
	if err := sm.store.Save(ctx, session); err != nil {
		return "", fmt.Errorf("failed to refresh session: %w", err)
	}
	return sm.signToken(session)
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	return sm.store.Delete(ctx, sessionID)
}

// DeleteUserSessions removes all sessions for a user except keep
func (sm *SessionManager) DeleteUserSessions(ctx context.Context, userID int64, keep string) error {
	return sm.store.DeleteUserSessions(ctx, userID, keep)
}

// ActiveSessions returns the number of stored sessions
func (sm *SessionManager) ActiveSessions(ctx context.Context) (int, error) {
	return sm.store.Count(ctx)
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    token,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   sm.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

// GetSessionFromRequest extracts session from request cookie
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	session, err := sm.ValidateToken(r.Context(), cookie.Value)
	if err != nil {
		return nil, false
	}
	return session, true
}

func (sm *SessionManager) signToken(session *Session) (string, error) {
	claims := sessionClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(session.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(sm.now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}
