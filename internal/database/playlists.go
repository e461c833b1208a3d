package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
)

// CreatePlaylist inserts an empty playlist and returns its ID.
func (db *Database) CreatePlaylist(ctx context.Context, name string, mood models.Mood) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO playlists (name, mood)
		VALUES (?, ?)`, name, string(mood))
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// CreatePlaylistWithSongs inserts a playlist and its songs atomically. Songs
// are stored in the given order; either every row is written or none is.
func (db *Database) CreatePlaylistWithSongs(ctx context.Context, name string, mood models.Mood, entries []models.SongEntry) (int64, error) {
	var playlistID int64

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO playlists (name, mood)
			VALUES (?, ?)`, name, string(mood))
		if err != nil {
			return fmt.Errorf("failed to insert playlist: %w", err)
		}

		playlistID, err = result.LastInsertId()
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO songs (title, artist, playlist_id, position)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, entry := range entries {
			if _, err := stmt.ExecContext(ctx, entry.Title, entry.Artist, playlistID, i+1); err != nil {
				return fmt.Errorf("failed to insert song %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.logger.WithFields(logrus.Fields{
		"playlist_id": playlistID,
		"mood":        mood,
		"songs":       len(entries),
	}).Info("Created playlist")

	return playlistID, nil
}

// GetPlaylist returns a playlist with its song count (songs not loaded).
func (db *Database) GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error) {
	var playlist models.Playlist
	var mood string
	err := db.conn.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.mood, p.created_at,
			   (SELECT COUNT(*) FROM songs s WHERE s.playlist_id = p.id) AS song_count
		FROM playlists p
		WHERE p.id = ?`, id).Scan(&playlist.ID, &playlist.Name, &mood, &playlist.CreatedAt, &playlist.SongCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	playlist.Mood = models.Mood(mood)
	return &playlist, nil
}

// GetAllPlaylists returns all playlists, newest first, along with derived song counts.
func (db *Database) GetAllPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT p.id, p.name, p.mood, p.created_at,
			   COALESCE(COUNT(s.id), 0) AS song_count
		FROM playlists p
		LEFT JOIN songs s ON p.id = s.playlist_id
		GROUP BY p.id, p.name, p.mood, p.created_at
		ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := []models.Playlist{}
	for rows.Next() {
		var playlist models.Playlist
		var mood string
		if err := rows.Scan(&playlist.ID, &playlist.Name, &mood, &playlist.CreatedAt, &playlist.SongCount); err != nil {
			return nil, err
		}
		playlist.Mood = models.Mood(mood)
		playlists = append(playlists, playlist)
	}

	return playlists, rows.Err()
}

// UpdatePlaylist updates playlist metadata.
func (db *Database) UpdatePlaylist(ctx context.Context, id int64, name string, mood models.Mood) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE playlists
		SET name = ?, mood = ?
		WHERE id = ?`, name, string(mood), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// DeletePlaylist deletes the playlist together with every song it owns.
func (db *Database) DeletePlaylist(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM songs WHERE playlist_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete playlist songs: %w", err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
		if err != nil {
			return err
		}
		return expectAffected(result)
	})
}
