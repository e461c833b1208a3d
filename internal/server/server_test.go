package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"freqy/internal/auth"
	"freqy/internal/cache"
	"freqy/internal/config"
	"freqy/internal/database"
	"freqy/internal/generator"
	"freqy/internal/leaderboard"
	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// stubText answers naming prompts with a fixed name and song prompts with reply.
type stubText struct {
	reply string
	err   error
	hits  atomic.Int32
}

func (s *stubText) calls() int { return int(s.hits.Load()) }

func (s *stubText) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	s.hits.Add(1)
	if s.err != nil {
		return "", s.err
	}
	if strings.HasPrefix(userPrompt, "Suggest a name") {
		return "\"Stub Mix\"", nil
	}
	return s.reply, nil
}

func tenSongs() string {
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "%d. Track %d — Band %d\n", i, i, i)
	}
	return b.String()
}

type testApp struct {
	srv    *FreqyServer
	server *httptest.Server
	db     *database.Database
	auth   *auth.Service
	text   *stubText
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	cfg := config.DefaultConfig()
	cfg.Logging.RequestLogging = false
	cfg.Server.StaticDir = t.TempDir()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "server.db"), 1, logger)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users, err := auth.NewUserStore(db, bcrypt.MinCost, logger)
	if err != nil {
		t.Fatalf("Failed to create user store: %v", err)
	}
	store := auth.NewMemorySessionStore(0)
	t.Cleanup(func() { store.Close() })
	sessions := auth.NewSessionManager(store, "server-test-secret-key", time.Hour, cfg.Auth.CookieName, false)
	authService := auth.NewService(users, sessions, logger)

	text := &stubText{reply: tenSongs()}
	gen := generator.New(text, db, 10, false, logger)

	userCache := cache.NewUserCache(time.Minute)
	t.Cleanup(userCache.Close)
	board := leaderboard.New(db, userCache, logger)

	srv, err := NewFreqyServer(cfg, db, authService, gen, board, logger)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testApp{srv: srv, server: ts, db: db, auth: authService, text: text}
}

// client returns a cookie-keeping client that does not follow redirects.
func (app *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (app *testApp) register(t *testing.T, email, username, password string) {
	t.Helper()
	if _, _, _, err := app.auth.Register(context.Background(), email, username, password); err != nil {
		t.Fatalf("Failed to register %s: %v", email, err)
	}
}

func (app *testApp) login(t *testing.T, client *http.Client, email, password string) {
	t.Helper()
	resp := postForm(t, client, app.server.URL+"/login", url.Values{"email": {email}, "password": {password}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("Login: expected 303, got %d", resp.StatusCode)
	}
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values) *http.Response {
	t.Helper()
	resp, err := client.PostForm(target, form)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func do(t *testing.T, client *http.Client, method, target string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestAuthGate(t *testing.T) {
	app := newTestApp(t)
	client := app.client(t)

	t.Run("BrowserRedirectsToLogin", func(t *testing.T) {
		resp, _ := do(t, client, http.MethodGet, app.server.URL+"/my-playlists", nil)
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("Expected 303, got %d", resp.StatusCode)
		}
		loc, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			t.Fatal(err)
		}
		if loc.Path != "/login" || loc.Query().Get("next") != "/my-playlists" || loc.Query().Get("notice") != noticeLoginRequired {
			t.Errorf("Unexpected redirect %s", loc)
		}
	})

	t.Run("APIReturnsUnauthorized", func(t *testing.T) {
		resp, body := do(t, client, http.MethodGet, app.server.URL+"/api/playlists", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("Expected 401, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(body), "Authentication required") {
			t.Errorf("Unexpected body %s", body)
		}
	})

	t.Run("LoginNoticeIsShown", func(t *testing.T) {
		resp, body := do(t, client, http.MethodGet, app.server.URL+"/login?notice="+noticeLoginRequired, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(body), noticeMessages[noticeLoginRequired]) {
			t.Error("Expected login-required notice on the login page")
		}
	})
}

func TestLoginLogout(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "anna@example.com", "Anna", "password123")
	client := app.client(t)

	t.Run("InvalidCredentials", func(t *testing.T) {
		for _, form := range []url.Values{
			{"email": {"anna@example.com"}, "password": {"wrongpassword"}},
			{"email": {"nobody@example.com"}, "password": {"password123"}},
		} {
			resp, err := client.PostForm(app.server.URL+"/login", form)
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", resp.StatusCode)
			}
			if !strings.Contains(string(body), invalidLoginMessage) {
				t.Error("Expected invalid login message")
			}
		}
	})

	t.Run("LoginGrantsAccess", func(t *testing.T) {
		resp := postForm(t, client, app.server.URL+"/login", url.Values{
			"email":    {"ANNA@example.com"},
			"password": {"password123"},
		})
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/my-playlists" {
			t.Fatalf("Expected redirect to /my-playlists, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
		}

		resp, _ = do(t, client, http.MethodGet, app.server.URL+"/api/playlists", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200 after login, got %d", resp.StatusCode)
		}

		resp, body := do(t, client, http.MethodGet, app.server.URL+"/my-playlists", nil)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Anna") {
			t.Errorf("Expected personalised playlists page, got %d", resp.StatusCode)
		}
	})

	t.Run("LogoutRevokesAccess", func(t *testing.T) {
		resp := postForm(t, client, app.server.URL+"/logout", nil)
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("Expected 303 from logout, got %d", resp.StatusCode)
		}

		resp, _ = do(t, client, http.MethodGet, app.server.URL+"/api/playlists", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401 after logout, got %d", resp.StatusCode)
		}
	})

	t.Run("NextRedirect", func(t *testing.T) {
		resp := postForm(t, client, app.server.URL+"/login", url.Values{
			"email":    {"anna@example.com"},
			"password": {"password123"},
			"next":     {"/leaderboard"},
		})
		if loc := resp.Header.Get("Location"); loc != "/leaderboard" {
			t.Errorf("Expected redirect to /leaderboard, got %s", loc)
		}

		other := app.client(t)
		resp = postForm(t, other, app.server.URL+"/login", url.Values{
			"email":    {"anna@example.com"},
			"password": {"password123"},
			"next":     {"//evil.example"},
		})
		if loc := resp.Header.Get("Location"); loc != "/my-playlists" {
			t.Errorf("Expected off-site next to be ignored, got %s", loc)
		}
	})
}

func TestSignUp(t *testing.T) {
	app := newTestApp(t)
	client := app.client(t)

	t.Run("PasswordMismatch", func(t *testing.T) {
		resp, err := client.PostForm(app.server.URL+"/sign-up", url.Values{
			"email":           {"bob@example.com"},
			"password":        {"password123"},
			"confirmPassword": {"password456"},
		})
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "Passwords do not match") {
			t.Errorf("Expected mismatch error, got %d", resp.StatusCode)
		}
	})

	t.Run("RegistersAndLogsIn", func(t *testing.T) {
		resp := postForm(t, client, app.server.URL+"/sign-up", url.Values{
			"email":           {"bob@example.com"},
			"username":        {"Bob"},
			"password":        {"password123"},
			"confirmPassword": {"password123"},
		})
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/?notice="+noticeRegistered {
			t.Fatalf("Expected redirect home, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
		}

		resp, _ = do(t, client, http.MethodGet, app.server.URL+"/api/playlists", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected session after sign-up, got %d", resp.StatusCode)
		}
	})

	t.Run("AlreadySignedIn", func(t *testing.T) {
		resp, _ := do(t, client, http.MethodGet, app.server.URL+"/sign-up", nil)
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/?notice="+noticeAlreadySignedUp {
			t.Errorf("Expected redirect for signed-in user, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		other := app.client(t)
		resp, err := other.PostForm(app.server.URL+"/sign-up", url.Values{
			"email":           {"Bob@Example.com"},
			"password":        {"password123"},
			"confirmPassword": {"password123"},
		})
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusConflict || !strings.Contains(string(body), "Email already registered") {
			t.Errorf("Expected duplicate email error, got %d", resp.StatusCode)
		}

		users, err := app.db.GetAllUsers(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 1 {
			t.Errorf("Expected exactly one user, got %d", len(users))
		}
	})

	t.Run("LeaderboardSeesNewUser", func(t *testing.T) {
		_, body := do(t, client, http.MethodGet, app.server.URL+"/leaderboard", nil)
		if !strings.Contains(string(body), "Bob") {
			t.Error("Expected new user on the leaderboard")
		}
	})
}

func TestChangePasswordFlow(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "carol@example.com", "Carol", "password123")

	client := app.client(t)
	app.login(t, client, "carol@example.com", "password123")
	second := app.client(t)
	app.login(t, second, "carol@example.com", "password123")

	resp := postForm(t, client, app.server.URL+"/change_password", url.Values{
		"newPassword":     {"newpassword456"},
		"confirmPassword": {"newpassword456"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", resp.StatusCode)
	}

	resp, _ = do(t, client, http.MethodGet, app.server.URL+"/api/playlists", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected current session to survive, got %d", resp.StatusCode)
	}
	resp, _ = do(t, second, http.MethodGet, app.server.URL+"/api/playlists", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected other session to be revoked, got %d", resp.StatusCode)
	}

	fresh := app.client(t)
	resp = postForm(t, fresh, app.server.URL+"/login", url.Values{"email": {"carol@example.com"}, "password": {"password123"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected old password to fail, got %d", resp.StatusCode)
	}
	app.login(t, fresh, "carol@example.com", "newpassword456")
}

func TestPlaylistAPI(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "dave@example.com", "Dave", "password123")
	client := app.client(t)
	app.login(t, client, "dave@example.com", "password123")
	base := app.server.URL + "/api/playlists"

	var playlist models.Playlist

	t.Run("Create", func(t *testing.T) {
		resp, body := do(t, client, http.MethodPost, base, map[string]string{"mood": "happy"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &playlist); err != nil {
			t.Fatal(err)
		}
		if playlist.Name != "Happy Mix" || playlist.Mood != models.MoodHappy || len(playlist.Songs) != 10 {
			t.Errorf("Unexpected playlist %+v", playlist)
		}
		if playlist.Songs[0].Title != "Track 1" || playlist.Songs[9].Artist != "Band 10" {
			t.Errorf("Songs out of order: %+v", playlist.Songs)
		}
	})

	t.Run("CreateWithoutBodyPicksMood", func(t *testing.T) {
		resp, body := do(t, client, http.MethodPost, base, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
		}
	})

	t.Run("InvalidMood", func(t *testing.T) {
		resp, _ := do(t, client, http.MethodPost, base, map[string]string{"mood": "angry"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})

	playlistURL := fmt.Sprintf("%s/%d", base, playlist.ID)

	t.Run("GetAndUpdate", func(t *testing.T) {
		resp, _ := do(t, client, http.MethodGet, playlistURL, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}

		resp, body := do(t, client, http.MethodPut, playlistURL, map[string]string{"name": "Sunny"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
		}
		var updated models.Playlist
		if err := json.Unmarshal(body, &updated); err != nil {
			t.Fatal(err)
		}
		if updated.Name != "Sunny" || updated.Mood != models.MoodHappy {
			t.Errorf("Unexpected update result %+v", updated)
		}

		for _, mood := range []string{"angry", "", "  "} {
			resp, _ = do(t, client, http.MethodPut, playlistURL, map[string]string{"mood": mood})
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400 for mood %q, got %d", mood, resp.StatusCode)
			}
		}

		resp, body = do(t, client, http.MethodPut, playlistURL, map[string]string{"mood": "Calm"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected mixed-case mood to be accepted, got %d: %s", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &updated); err != nil {
			t.Fatal(err)
		}
		if updated.Mood != models.MoodCalm || updated.Name != "Sunny" {
			t.Errorf("Unexpected update result %+v", updated)
		}
	})

	t.Run("Songs", func(t *testing.T) {
		songsURL := playlistURL + "/songs"

		resp, body := do(t, client, http.MethodPost, songsURL, map[string]string{"title": "Extra", "artist": "Someone"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
		}
		var song models.Song
		if err := json.Unmarshal(body, &song); err != nil {
			t.Fatal(err)
		}
		if song.Position != 11 {
			t.Errorf("Expected appended song at position 11, got %d", song.Position)
		}

		resp, _ = do(t, client, http.MethodPost, songsURL, map[string]string{"title": ""})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for missing fields, got %d", resp.StatusCode)
		}

		songURL := fmt.Sprintf("%s/%d", songsURL, song.ID)
		resp, body = do(t, client, http.MethodPut, songURL, map[string]string{"title": "Extra (Remix)", "artist": "Someone"})
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Extra (Remix)") {
			t.Errorf("Expected updated song, got %d: %s", resp.StatusCode, body)
		}

		resp, _ = do(t, client, http.MethodDelete, songURL, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("Expected 204, got %d", resp.StatusCode)
		}
		resp, _ = do(t, client, http.MethodGet, songURL, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
		}

		resp, body = do(t, client, http.MethodGet, songsURL, nil)
		var songs []models.Song
		if err := json.Unmarshal(body, &songs); err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("Failed to list songs: %d %v", resp.StatusCode, err)
		}
		if len(songs) != 10 {
			t.Errorf("Expected 10 songs, got %d", len(songs))
		}
	})

	t.Run("GeneratePlaylistName", func(t *testing.T) {
		resp, body := do(t, client, http.MethodPost, app.server.URL+"/api/generate_playlist_name", map[string]int64{"playlist_id": playlist.ID})
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Stub Mix") {
			t.Errorf("Expected generated name, got %d: %s", resp.StatusCode, body)
		}

		resp, _ = do(t, client, http.MethodPost, app.server.URL+"/api/generate_playlist_name", map[string]any{"mood": "calm"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 without songs, got %d", resp.StatusCode)
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		resp, _ := do(t, client, http.MethodDelete, playlistURL, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", resp.StatusCode)
		}

		resp, _ = do(t, client, http.MethodGet, playlistURL, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
		}

		songs, err := app.db.GetPlaylistSongs(context.Background(), playlist.ID)
		if err != nil || len(songs) != 0 {
			t.Errorf("Expected songs to be deleted, got %d (%v)", len(songs), err)
		}
	})

	t.Run("BadIDs", func(t *testing.T) {
		resp, _ := do(t, client, http.MethodGet, base+"/abc", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
		resp, _ = do(t, client, http.MethodDelete, base+"/9999", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestGeneratorErrorStatus(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "erin@example.com", "Erin", "password123")
	client := app.client(t)
	app.login(t, client, "erin@example.com", "password123")

	tests := []struct {
		name   string
		reply  string
		err    error
		status int
	}{
		{"rate limited", "", generator.ErrRateLimited, http.StatusTooManyRequests},
		{"unavailable", "", generator.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"partial reply", "1. Only — One\n2. Two — Songs\n3. Three — Here", nil, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.text.reply, app.text.err = tt.reply, tt.err

			resp, _ := do(t, client, http.MethodPost, app.server.URL+"/api/playlists", map[string]string{"mood": "sad"})
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}

	playlists, err := app.db.GetAllPlaylists(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(playlists) != 0 {
		t.Errorf("Expected no playlists after failures, got %d", len(playlists))
	}
}

func TestMyPlaylistsGenerate(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "fay@example.com", "Fay", "password123")
	client := app.client(t)
	app.login(t, client, "fay@example.com", "password123")

	resp, err := client.PostForm(app.server.URL+"/my-playlists", url.Values{"mood": {"calm"}})
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Calm Mix") || !strings.Contains(string(body), "10 songs") {
		t.Error("Expected the generated playlist on the page")
	}
}

func TestLeaderboardFilter(t *testing.T) {
	app := newTestApp(t)
	for _, name := range []string{"Anna", "Bob", "Anthony"} {
		app.register(t, strings.ToLower(name)+"@example.com", name, "password123")
	}

	_, body := do(t, http.DefaultClient, http.MethodGet, app.server.URL+"/leaderboard?query=an", nil)
	page := string(body)
	if !strings.Contains(page, "Anna") || !strings.Contains(page, "Anthony") {
		t.Error("Expected matching users on the leaderboard")
	}
	if strings.Contains(page, "Bob") {
		t.Error("Expected Bob to be filtered out")
	}
	if strings.Index(page, "Anna") > strings.Index(page, "Anthony") {
		t.Error("Expected registration order to be preserved")
	}
}

func TestNotFoundAndHealth(t *testing.T) {
	app := newTestApp(t)

	resp, body := do(t, http.DefaultClient, http.MethodGet, app.server.URL+"/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "Page not found") {
		t.Errorf("Expected 404 page, got %d", resp.StatusCode)
	}

	resp, body = do(t, http.DefaultClient, http.MethodGet, app.server.URL+"/api/nope", nil)
	if resp.StatusCode != http.StatusNotFound || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		t.Errorf("Expected JSON 404, got %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.DefaultClient, http.MethodGet, app.server.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected healthy status, got %d: %s", resp.StatusCode, body)
	}
	var health HealthStatus
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Database != "ok" {
		t.Errorf("Unexpected health %+v", health)
	}
}

func TestCreatePlaylistManually(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "gus@example.com", "Gus", "password123")
	client := app.client(t)
	app.login(t, client, "gus@example.com", "password123")
	base := app.server.URL + "/api/playlists"

	tests := []struct {
		name      string
		body      map[string]any
		status    int
		wantSongs int
	}{
		{
			name: "with songs",
			body: map[string]any{
				"name":  "Road Trip",
				"mood":  "Energetic",
				"songs": []map[string]string{{"title": "Go", "artist": "A"}, {"title": "Drive", "artist": "B"}},
			},
			status:    http.StatusCreated,
			wantSongs: 2,
		},
		{
			name:   "empty playlist",
			body:   map[string]any{"name": "Later", "mood": "sad", "songs": []map[string]string{}},
			status: http.StatusCreated,
		},
		{
			name:   "missing name",
			body:   map[string]any{"mood": "sad", "songs": []map[string]string{}},
			status: http.StatusBadRequest,
		},
		{
			name: "invalid song",
			body: map[string]any{
				"name":  "Broken",
				"songs": []map[string]string{{"title": "", "artist": "A"}},
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, client, http.MethodPost, base, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			if tt.status != http.StatusCreated {
				return
			}

			var playlist models.Playlist
			if err := json.Unmarshal(body, &playlist); err != nil {
				t.Fatal(err)
			}
			if playlist.Name != tt.body["name"] || len(playlist.Songs) != tt.wantSongs {
				t.Errorf("Unexpected playlist %+v", playlist)
			}
		})
	}

	if app.text.calls() != 0 {
		t.Errorf("Expected no generator calls, got %d", app.text.calls())
	}
}

func TestCreatePlaylistChunkedEmptyBody(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/playlists", strings.NewReader(""))
	req.ContentLength = -1
	req.Header.Set("Transfer-Encoding", "chunked")
	rec := httptest.NewRecorder()

	app.srv.handleCreatePlaylist(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var playlist models.Playlist
	if err := json.Unmarshal(rec.Body.Bytes(), &playlist); err != nil {
		t.Fatal(err)
	}
	if !playlist.Mood.Valid() || len(playlist.Songs) != 10 {
		t.Errorf("Unexpected playlist %+v", playlist)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/playlists", strings.NewReader(`{"mood":`))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	app.srv.handleCreatePlaylist(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for truncated JSON, got %d", rec.Code)
	}
}
