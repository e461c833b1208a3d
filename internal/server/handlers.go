package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"freqy/internal/auth"
	"freqy/internal/generator"
	"freqy/pkg/models"
)

// Notice codes carried in ?notice= across redirects.
const (
	noticeLoginRequired   = "login_required"
	noticeAlreadySignedUp = "already_signed_up"
	noticeRegistered      = "registered"
	noticePasswordChanged = "password_changed"
	noticeLoggedOut       = "logged_out"
)

var noticeMessages = map[string]string{
	noticeLoginRequired:   "Please login to access this page",
	noticeAlreadySignedUp: "You have already signed up for an account.",
	noticeRegistered:      "Registration successful",
	noticePasswordChanged: "Your password has been changed.",
	noticeLoggedOut:       "You have been logged out.",
}

// pageData is the view model shared by all page templates.
type pageData struct {
	Title     string
	Session   *auth.Session
	Notice    string
	Error     string
	Success   string
	Email     string
	Username  string
	Next      string
	Query     string
	Users     []models.User
	Playlists []models.Playlist
	Moods     []models.Mood
	Year      int
}

func (s *FreqyServer) newPageData(r *http.Request, title string) *pageData {
	return &pageData{
		Title:   title,
		Session: currentSession(r),
		Notice:  noticeMessages[r.URL.Query().Get("notice")],
		Moods:   models.Moods,
		Year:    time.Now().Year(),
	}
}

// renderPage renders a page template, falling back to a bare 500 on template errors.
func (s *FreqyServer) renderPage(w http.ResponseWriter, r *http.Request, name string, status int, data *pageData) {
	if err := s.templates.render(w, name, status, data); err != nil {
		s.logger.WithError(err).WithField("template", name).Error("Failed to render page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleHome renders the landing page.
func (s *FreqyServer) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "home.html", http.StatusOK, s.newPageData(r, "Freqy"))
}

// handleLeaderboard lists registered users, optionally filtered by ?query= or a form post.
func (s *FreqyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData(r, "Leaderboard")
	data.Query = sanitizeInput(r.FormValue("query"))

	users, err := s.leaderboard.Users(r.Context(), data.Query)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load leaderboard")
		data.Error = "Could not load the leaderboard."
		s.renderPage(w, r, "leaderboard.html", http.StatusInternalServerError, data)
		return
	}

	data.Users = users
	s.renderPage(w, r, "leaderboard.html", http.StatusOK, data)
}

// handleMyPlaylists lists playlists; a POST with a mood generates a new one first.
func (s *FreqyServer) handleMyPlaylists(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData(r, "My Playlists")
	status := http.StatusOK

	if r.Method == http.MethodPost {
		mood, err := generator.ParseMood(r.FormValue("mood"), nil)
		if err != nil {
			data.Error = "Please choose one of the listed moods."
			status = http.StatusBadRequest
		} else if playlist, err := s.generator.Generate(r.Context(), mood, sanitizeInput(r.FormValue("name"))); err != nil {
			s.logger.WithError(err).WithField("mood", mood).Warn("Playlist generation failed")
			data.Error = generationFailureMessage(err)
			status = generatorErrorStatus(err)
		} else {
			data.Success = fmt.Sprintf("Created playlist %q with %s.", playlist.Name, plural(len(playlist.Songs), "song"))
		}
	}

	playlists, err := s.db.GetAllPlaylists(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load playlists")
		data.Error = "Could not load playlists."
		status = http.StatusInternalServerError
	}
	data.Playlists = playlists

	s.renderPage(w, r, "my_playlists.html", status, data)
}

// handleNotFound renders the 404 page, or a JSON error under /api/.
func (s *FreqyServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		s.respondWithError(w, r, http.StatusNotFound, "Not found", nil)
		return
	}
	s.renderPage(w, r, "not_found.html", http.StatusNotFound, s.newPageData(r, "Page not found"))
}

// generatorErrorStatus maps generator failures to HTTP statuses.
func generatorErrorStatus(err error) int {
	switch {
	case errors.Is(err, generator.ErrInvalidMood):
		return http.StatusBadRequest
	case errors.Is(err, generator.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, generator.ErrUnparsableResponse):
		return http.StatusBadGateway
	case errors.Is(err, generator.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func generationFailureMessage(err error) string {
	switch {
	case errors.Is(err, generator.ErrRateLimited):
		return "Too many playlist requests right now. Please try again in a minute."
	case errors.Is(err, generator.ErrUnparsableResponse):
		return "The playlist service returned an unexpected answer. Please try again."
	case errors.Is(err, generator.ErrServiceUnavailable):
		return "The playlist service is unavailable. Please try again later."
	default:
		return "Something went wrong while creating your playlist."
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
