package server

import (
	"errors"
	"net/http"

	"freqy/internal/database"
	"freqy/internal/generator"
	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
)

// handleGetPlaylists returns all playlists (with song counts) as JSON.
func (s *FreqyServer) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.db.GetAllPlaylists(r.Context())
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving playlists", err)
		return
	}

	s.respondJSON(w, http.StatusOK, playlists)
}

// handleCreatePlaylist generates a playlist for {mood?, name?}. A missing
// mood is picked at random. When songs is present the playlist is stored as
// given, with name required, and the generator is not called.
func (s *FreqyServer) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mood  string             `json:"mood"`
		Name  string             `json:"name"`
		Songs []models.SongEntry `json:"songs"`
	}
	if !s.decodeOptionalJSON(w, r, &req) {
		return
	}

	mood, err := generator.ParseMood(req.Mood, nil)
	if err != nil {
		s.respondWithValidationError(w, r, []ValidationError{invalidMoodError()})
		return
	}

	name := sanitizeInput(req.Name)
	if name != "" || req.Songs != nil {
		if verr := validatePlaylistName(name); verr != nil {
			s.respondWithValidationError(w, r, []ValidationError{*verr})
			return
		}
	}

	if req.Songs != nil {
		s.createManualPlaylist(w, r, name, mood, req.Songs)
		return
	}

	playlist, err := s.generator.Generate(r.Context(), mood, name)
	if err != nil {
		s.respondWithError(w, r, generatorErrorStatus(err), generationFailureMessage(err), err)
		return
	}

	s.respondJSON(w, http.StatusCreated, playlist)
}

// createManualPlaylist stores a user-supplied playlist, possibly empty.
func (s *FreqyServer) createManualPlaylist(w http.ResponseWriter, r *http.Request, name string, mood models.Mood, entries []models.SongEntry) {
	if errs := validateSongEntries(entries); len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return
	}

	var (
		id  int64
		err error
	)
	if len(entries) == 0 {
		id, err = s.db.CreatePlaylist(r.Context(), name, mood)
	} else {
		id, err = s.db.CreatePlaylistWithSongs(r.Context(), name, mood, entries)
	}
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error creating playlist", err)
		return
	}

	playlist, err := s.db.GetPlaylist(r.Context(), id)
	if err != nil {
		s.respondWithDatabaseError(w, r, "Playlist not found", err)
		return
	}
	if playlist.Songs, err = s.db.GetPlaylistSongs(r.Context(), id); err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving songs", err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"playlist_id": id,
		"songs":       len(entries),
	}).Info("Playlist created")

	s.respondJSON(w, http.StatusCreated, playlist)
}

// handleGetPlaylist returns one playlist with its songs.
func (s *FreqyServer) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, ok := s.loadPlaylist(w, r)
	if !ok {
		return
	}

	songs, err := s.db.GetPlaylistSongs(r.Context(), playlist.ID)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving songs", err)
		return
	}
	playlist.Songs = songs

	s.respondJSON(w, http.StatusOK, playlist)
}

// handleUpdatePlaylist renames a playlist and/or changes its mood.
func (s *FreqyServer) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, ok := s.loadPlaylist(w, r)
	if !ok {
		return
	}

	var req struct {
		Name *string `json:"name"`
		Mood *string `json:"mood"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	var errs []ValidationError
	if req.Name != nil {
		playlist.Name = sanitizeInput(*req.Name)
		if verr := validatePlaylistName(playlist.Name); verr != nil {
			errs = append(errs, *verr)
		}
	}
	if req.Mood != nil {
		// An empty mood would pick a random one in ParseMood; on update it is an error.
		raw := sanitizeInput(*req.Mood)
		mood, err := generator.ParseMood(raw, nil)
		if raw == "" || err != nil {
			errs = append(errs, invalidMoodError())
		} else {
			playlist.Mood = mood
		}
	}
	if len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return
	}

	if err := s.db.UpdatePlaylist(r.Context(), playlist.ID, playlist.Name, playlist.Mood); err != nil {
		s.respondWithDatabaseError(w, r, "Playlist not found", err)
		return
	}

	s.respondJSON(w, http.StatusOK, playlist)
}

// handleDeletePlaylist deletes a playlist together with its songs.
func (s *FreqyServer) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, verr := validatePathID(r, "id", "playlist_id")
	if verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	if err := s.db.DeletePlaylist(r.Context(), id); err != nil {
		s.respondWithDatabaseError(w, r, "Playlist not found", err)
		return
	}

	s.logger.WithField("playlist_id", id).Info("Playlist deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleGeneratePlaylistName suggests a name for {playlist_id} or for
// {mood, songs}.
func (s *FreqyServer) handleGeneratePlaylistName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlaylistID int64              `json:"playlist_id"`
		Mood       string             `json:"mood"`
		Songs      []models.SongEntry `json:"songs"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	var (
		mood    models.Mood
		entries []models.SongEntry
	)

	if req.PlaylistID > 0 {
		playlist, err := s.db.GetPlaylist(r.Context(), req.PlaylistID)
		if err != nil {
			s.respondWithDatabaseError(w, r, "Playlist not found", err)
			return
		}
		songs, err := s.db.GetPlaylistSongs(r.Context(), playlist.ID)
		if err != nil {
			s.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving songs", err)
			return
		}
		mood = playlist.Mood
		for _, song := range songs {
			entries = append(entries, models.SongEntry{Title: song.Title, Artist: song.Artist})
		}
	} else {
		var err error
		if mood, err = generator.ParseMood(req.Mood, nil); err != nil {
			s.respondWithValidationError(w, r, []ValidationError{invalidMoodError()})
			return
		}
		entries = req.Songs
	}

	if len(entries) == 0 {
		s.respondWithValidationError(w, r, []ValidationError{{
			Field:   "songs",
			Message: "At least one song is required",
			Code:    "MISSING_SONGS",
		}})
		return
	}

	name, err := s.generator.NamePlaylist(r.Context(), mood, entries)
	if err != nil {
		s.respondWithError(w, r, generatorErrorStatus(err), generationFailureMessage(err), err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"mood": mood,
		"name": name,
	}).Debug("Generated playlist name")

	s.respondJSON(w, http.StatusOK, map[string]string{"name": name})
}

// loadPlaylist resolves {id}, answering 400/404 itself.
func (s *FreqyServer) loadPlaylist(w http.ResponseWriter, r *http.Request) (*models.Playlist, bool) {
	id, verr := validatePathID(r, "id", "playlist_id")
	if verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return nil, false
	}

	playlist, err := s.db.GetPlaylist(r.Context(), id)
	if err != nil {
		s.respondWithDatabaseError(w, r, "Playlist not found", err)
		return nil, false
	}
	return playlist, true
}

// respondWithDatabaseError maps database.ErrNotFound to 404 and anything else to 500.
func (s *FreqyServer) respondWithDatabaseError(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		s.respondWithError(w, r, http.StatusNotFound, notFound, err)
		return
	}
	s.respondWithError(w, r, http.StatusInternalServerError, "Database error", err)
}
