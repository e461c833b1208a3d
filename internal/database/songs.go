package database

import (
	"context"
	"database/sql"
	"errors"

	"freqy/pkg/models"
)

// AddSong appends a song to the end of a playlist and returns it.
func (db *Database) AddSong(ctx context.Context, playlistID int64, title, artist string) (*models.Song, error) {
	var song *models.Song

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM playlists WHERE id = ?", playlistID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		// Get the next position
		var maxPosition sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT MAX(position) FROM songs WHERE playlist_id = ?`,
			playlistID).Scan(&maxPosition)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		position := 1
		if maxPosition.Valid {
			position = int(maxPosition.Int64) + 1
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO songs (title, artist, playlist_id, position)
			VALUES (?, ?, ?, ?)`,
			title, artist, playlistID, position)
		if err != nil {
			return err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}

		song = &models.Song{
			ID:         id,
			Title:      title,
			Artist:     artist,
			PlaylistID: playlistID,
			Position:   position,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return song, nil
}

// GetPlaylistSongs returns songs for a playlist ordered by stored position.
func (db *Database) GetPlaylistSongs(ctx context.Context, playlistID int64) ([]models.Song, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, artist, playlist_id, position
		FROM songs
		WHERE playlist_id = ?
		ORDER BY position, id`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	songs := []models.Song{}
	for rows.Next() {
		var song models.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.PlaylistID, &song.Position); err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}

	return songs, rows.Err()
}

// GetSong returns a song only if it belongs to the given playlist.
func (db *Database) GetSong(ctx context.Context, playlistID, songID int64) (*models.Song, error) {
	var song models.Song
	err := db.getSongStmt.QueryRowContext(ctx, songID, playlistID).Scan(
		&song.ID, &song.Title, &song.Artist, &song.PlaylistID, &song.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}

// UpdateSong changes title and artist of a song within a playlist.
func (db *Database) UpdateSong(ctx context.Context, playlistID, songID int64, title, artist string) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE songs
		SET title = ?, artist = ?
		WHERE id = ? AND playlist_id = ?`,
		title, artist, songID, playlistID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// DeleteSong removes a specific song from the given playlist.
func (db *Database) DeleteSong(ctx context.Context, playlistID, songID int64) error {
	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM songs
		WHERE id = ? AND playlist_id = ?`,
		songID, playlistID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
