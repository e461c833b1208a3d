package models

import "time"

// Playlist represents a mood-tagged collection of songs
type Playlist struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Mood      Mood      `json:"mood"`
	CreatedAt time.Time `json:"createdAt"`
	SongCount int       `json:"songCount"`
	Songs     []Song    `json:"songs,omitempty"`
}

// Song represents a single entry of a playlist. A song belongs to exactly one
// playlist through PlaylistID.
type Song struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	PlaylistID int64  `json:"playlistId"`
	Position   int    `json:"position"`
}

// SongEntry is a title/artist pair not yet persisted
type SongEntry struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}
