package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	maxPlaylistNameLength = 128
	maxSongFieldLength    = 255
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as JSON with the given status.
func (s *FreqyServer) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// respondWithValidationError sends a structured validation error response
func (s *FreqyServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	s.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (s *FreqyServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := s.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	s.respondJSON(w, statusCode, map[string]any{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// decodeJSON reads a JSON body into v, answering 400 itself on failure.
func (s *FreqyServer) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return s.decodeBody(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON for endpoints where an empty body,
// chunked or not, leaves v at its zero value.
func (s *FreqyServer) decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return s.decodeBody(w, r, v, true)
}

func (s *FreqyServer) decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func invalidMoodError() ValidationError {
	return ValidationError{
		Field:   "mood",
		Message: "Mood must be one of happy, sad, anxious, energetic, calm",
		Code:    "INVALID_MOOD",
	}
}

// validateSongEntries checks every entry of a manually supplied song list.
func validateSongEntries(entries []models.SongEntry) []ValidationError {
	var errs []ValidationError
	for i := range entries {
		entries[i].Title = sanitizeInput(entries[i].Title)
		entries[i].Artist = sanitizeInput(entries[i].Artist)
		for _, verr := range validateSongFields(entries[i].Title, entries[i].Artist) {
			verr.Field = fmt.Sprintf("songs[%d].%s", i, verr.Field)
			errs = append(errs, verr)
		}
	}
	return errs
}

// validatePathID parses a positive integer path value such as {id}.
func validatePathID(r *http.Request, name, field string) (int64, *ValidationError) {
	raw := r.PathValue(name)
	if raw == "" {
		return 0, &ValidationError{
			Field:   field,
			Message: "ID is required",
			Code:    "MISSING_" + strings.ToUpper(field),
		}
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ValidationError{
			Field:   field,
			Message: "ID must be a valid integer",
			Code:    "INVALID_" + strings.ToUpper(field) + "_FORMAT",
		}
	}

	if id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: "ID must be positive",
			Code:    "INVALID_" + strings.ToUpper(field) + "_VALUE",
		}
	}

	return id, nil
}

// validatePlaylistName validates playlist name
func validatePlaylistName(name string) *ValidationError {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name is required",
			Code:    "MISSING_PLAYLIST_NAME",
		}
	}

	if utf8.RuneCountInString(name) > maxPlaylistNameLength {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name too long (max 128 characters)",
			Code:    "PLAYLIST_NAME_TOO_LONG",
		}
	}

	if strings.ContainsAny(name, "\x00\n\r") {
		return &ValidationError{
			Field:   "name",
			Message: "Playlist name contains invalid characters",
			Code:    "INVALID_PLAYLIST_NAME_CHARACTERS",
		}
	}

	return nil
}

// validateSongFields checks the title and artist of a song.
func validateSongFields(title, artist string) []ValidationError {
	var errs []ValidationError
	for _, f := range []struct{ field, value string }{{"title", title}, {"artist", artist}} {
		switch {
		case f.value == "":
			errs = append(errs, ValidationError{
				Field:   f.field,
				Message: strings.ToUpper(f.field[:1]) + f.field[1:] + " is required",
				Code:    "MISSING_" + strings.ToUpper(f.field),
			})
		case utf8.RuneCountInString(f.value) > maxSongFieldLength:
			errs = append(errs, ValidationError{
				Field:   f.field,
				Message: strings.ToUpper(f.field[:1]) + f.field[1:] + " too long (max 255 characters)",
				Code:    strings.ToUpper(f.field) + "_TOO_LONG",
			})
		}
	}
	return errs
}

// sanitizeInput removes null bytes and surrounding whitespace.
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
