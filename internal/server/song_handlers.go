package server

import (
	"net/http"
)

type songRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func (s *FreqyServer) decodeSong(w http.ResponseWriter, r *http.Request) (songRequest, bool) {
	var req songRequest
	if !s.decodeJSON(w, r, &req) {
		return req, false
	}

	req.Title = sanitizeInput(req.Title)
	req.Artist = sanitizeInput(req.Artist)
	if errs := validateSongFields(req.Title, req.Artist); len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return req, false
	}
	return req, true
}

// songIDs resolves {id} and {song_id}.
func (s *FreqyServer) songIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	var errs []ValidationError

	playlistID, verr := validatePathID(r, "id", "playlist_id")
	if verr != nil {
		errs = append(errs, *verr)
	}
	songID, verr := validatePathID(r, "song_id", "song_id")
	if verr != nil {
		errs = append(errs, *verr)
	}

	if len(errs) > 0 {
		s.respondWithValidationError(w, r, errs)
		return 0, 0, false
	}
	return playlistID, songID, true
}

// handleGetSongs lists the songs of a playlist in order.
func (s *FreqyServer) handleGetSongs(w http.ResponseWriter, r *http.Request) {
	playlist, ok := s.loadPlaylist(w, r)
	if !ok {
		return
	}

	songs, err := s.db.GetPlaylistSongs(r.Context(), playlist.ID)
	if err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving songs", err)
		return
	}

	s.respondJSON(w, http.StatusOK, songs)
}

// handleAddSong appends a song to a playlist.
func (s *FreqyServer) handleAddSong(w http.ResponseWriter, r *http.Request) {
	playlistID, verr := validatePathID(r, "id", "playlist_id")
	if verr != nil {
		s.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	req, ok := s.decodeSong(w, r)
	if !ok {
		return
	}

	song, err := s.db.AddSong(r.Context(), playlistID, req.Title, req.Artist)
	if err != nil {
		s.respondWithDatabaseError(w, r, "Playlist not found", err)
		return
	}

	s.respondJSON(w, http.StatusCreated, song)
}

// handleGetSong returns one song of a playlist.
func (s *FreqyServer) handleGetSong(w http.ResponseWriter, r *http.Request) {
	playlistID, songID, ok := s.songIDs(w, r)
	if !ok {
		return
	}

	song, err := s.db.GetSong(r.Context(), playlistID, songID)
	if err != nil {
		s.respondWithDatabaseError(w, r, "Song not found", err)
		return
	}

	s.respondJSON(w, http.StatusOK, song)
}

// handleUpdateSong replaces the title and artist of a song.
func (s *FreqyServer) handleUpdateSong(w http.ResponseWriter, r *http.Request) {
	playlistID, songID, ok := s.songIDs(w, r)
	if !ok {
		return
	}

	req, ok := s.decodeSong(w, r)
	if !ok {
		return
	}

	if err := s.db.UpdateSong(r.Context(), playlistID, songID, req.Title, req.Artist); err != nil {
		s.respondWithDatabaseError(w, r, "Song not found", err)
		return
	}

	song, err := s.db.GetSong(r.Context(), playlistID, songID)
	if err != nil {
		s.respondWithDatabaseError(w, r, "Song not found", err)
		return
	}

	s.respondJSON(w, http.StatusOK, song)
}

// handleDeleteSong removes a song from a playlist.
func (s *FreqyServer) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	playlistID, songID, ok := s.songIDs(w, r)
	if !ok {
		return
	}

	if err := s.db.DeleteSong(r.Context(), playlistID, songID); err != nil {
		s.respondWithDatabaseError(w, r, "Song not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
