package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrServiceUnavailable covers network failures, timeouts and error
	// responses from the text-generation service.
	ErrServiceUnavailable = errors.New("text generation service unavailable")
	// ErrRateLimited is returned when the service or the local limiter refuses the call.
	ErrRateLimited = errors.New("text generation rate limited")
	// ErrUnparsableResponse is returned when a reply does not yield the expected songs.
	ErrUnparsableResponse = errors.New("could not parse text generation reply")
	// ErrInvalidMood is returned for labels outside the mood vocabulary.
	ErrInvalidMood = errors.New("invalid mood")
)

const (
	systemPrompt = "You are a helpful assistant. Your job is to help a user create music " +
		"playlists of songs based on a user's mood. " +
		"Answer with one song per line formatted as \"Title — Artist\" and no other commentary."

	namingSystemPrompt = "You are a helpful assistant that names music playlists. " +
		"Answer with a single short playlist name and nothing else."
)

// PlaylistStore is the persistence the generator writes to.
type PlaylistStore interface {
	CreatePlaylistWithSongs(ctx context.Context, name string, mood models.Mood, entries []models.SongEntry) (int64, error)
	GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error)
	GetPlaylistSongs(ctx context.Context, playlistID int64) ([]models.Song, error)
}

// Generator builds mood playlists from a text-generation service.
type Generator struct {
	text          TextGenerator
	store         PlaylistStore
	songCount     int
	namePlaylists bool
	deadline      time.Duration
	logger        *logrus.Logger
}

// New creates a Generator requesting songCount songs per playlist.
func New(text TextGenerator, store PlaylistStore, songCount int, namePlaylists bool, logger *logrus.Logger) *Generator {
	if songCount <= 0 {
		songCount = 10
	}
	return &Generator{
		text:          text,
		store:         store,
		songCount:     songCount,
		namePlaylists: namePlaylists,
		logger:        logger,
	}
}

// SetDeadline bounds the service calls made by one Generate call, songs and
// naming together. Zero leaves only the client's per-call timeout.
func (g *Generator) SetDeadline(d time.Duration) {
	g.deadline = d
}

// SongPrompt is the user prompt sent for a mood.
func (g *Generator) SongPrompt(mood models.Mood) string {
	return fmt.Sprintf("Can you create a playlist of %d songs that fit the mood of %s?", g.songCount, mood)
}

// SuggestSongs asks the service for songs matching mood.
func (g *Generator) SuggestSongs(ctx context.Context, mood models.Mood) ([]models.SongEntry, error) {
	if !mood.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMood, mood)
	}

	reply, err := g.text.GenerateText(ctx, systemPrompt, g.SongPrompt(mood))
	if err != nil {
		return nil, err
	}

	entries, err := ParseSongs(reply, g.songCount)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"mood":  mood,
			"reply": reply,
		}).Warn("Unparsable song suggestions")
		return nil, err
	}
	return entries, nil
}

// Generate suggests songs for mood and stores them as a new playlist. An
// empty name is requested from the service when naming is enabled and falls
// back to "<Mood> Mix". Nothing is written unless every song parsed.
func (g *Generator) Generate(ctx context.Context, mood models.Mood, name string) (*models.Playlist, error) {
	// Storing runs on ctx, outside the service deadline.
	serviceCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.deadline > 0 {
		serviceCtx, cancel = context.WithTimeout(ctx, g.deadline)
	}
	defer cancel()

	entries, err := g.SuggestSongs(serviceCtx, mood)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = g.nameOrFallback(serviceCtx, mood, entries)
	}

	id, err := g.store.CreatePlaylistWithSongs(ctx, name, mood, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to store playlist: %w", err)
	}

	playlist, err := g.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if playlist.Songs, err = g.store.GetPlaylistSongs(ctx, id); err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"playlist_id": id,
		"mood":        mood,
		"songs":       len(entries),
	}).Info("Generated playlist")

	return playlist, nil
}

// NamePlaylist asks the service for a short name for the given songs.
func (g *Generator) NamePlaylist(ctx context.Context, mood models.Mood, songs []models.SongEntry) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest a name for a %s playlist with these songs:\n", mood)
	for _, s := range songs {
		fmt.Fprintf(&b, "%s — %s\n", s.Title, s.Artist)
	}

	reply, err := g.text.GenerateText(ctx, namingSystemPrompt, b.String())
	if err != nil {
		return "", err
	}
	return ParsePlaylistName(reply)
}

// FallbackName is used when no name was given or could be generated.
func FallbackName(mood models.Mood) string {
	return mood.Title() + " Mix"
}

func (g *Generator) nameOrFallback(ctx context.Context, mood models.Mood, entries []models.SongEntry) string {
	if !g.namePlaylists {
		return FallbackName(mood)
	}

	name, err := g.NamePlaylist(ctx, mood, entries)
	if err != nil {
		g.logger.WithError(err).WithField("mood", mood).Warn("Playlist naming failed, using fallback")
		return FallbackName(mood)
	}
	return name
}
