package generator

import (
	"fmt"
	"strings"
	"unicode"

	"freqy/pkg/models"
)

const maxPlaylistNameLength = 128

// Separators between title and artist, tried in order.
var entrySeparators = []string{" — ", " – ", " - "}

// ParseSongs extracts "Title — Artist" entries from a reply in reply order.
// Lines without a separator are treated as commentary and skipped. The reply
// must yield exactly want entries.
func ParseSongs(reply string, want int) ([]models.SongEntry, error) {
	var entries []models.SongEntry

	for _, line := range strings.Split(reply, "\n") {
		line = cleanLine(line)
		if line == "" {
			continue
		}

		entry, ok := splitEntry(line)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) != want {
		return nil, fmt.Errorf("%w: got %d songs, want %d", ErrUnparsableResponse, len(entries), want)
	}
	return entries, nil
}

// ParsePlaylistName returns the first non-empty line of reply with quotes
// stripped, truncated to 128 characters.
func ParsePlaylistName(reply string) (string, error) {
	for _, line := range strings.Split(reply, "\n") {
		name := trimQuotes(stripEmphasis(strings.TrimSpace(line)))
		if name == "" {
			continue
		}
		runes := []rune(name)
		if len(runes) > maxPlaylistNameLength {
			name = strings.TrimSpace(string(runes[:maxPlaylistNameLength]))
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: empty playlist name", ErrUnparsableResponse)
}

func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = stripListMarker(line)
	line = stripEmphasis(line)
	return strings.TrimSpace(line)
}

// stripListMarker removes "1.", "1)", "-", "*" and "•" prefixes.
func stripListMarker(line string) string {
	for _, bullet := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, bullet) {
			return strings.TrimSpace(line[len(bullet):])
		}
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

func stripEmphasis(s string) string {
	for _, mark := range []string{"**", "__", "*", "_"} {
		if len(s) > 2*len(mark) && strings.HasPrefix(s, mark) && strings.HasSuffix(s, mark) {
			s = s[len(mark) : len(s)-len(mark)]
		}
	}
	return s
}

func splitEntry(line string) (models.SongEntry, bool) {
	for _, sep := range entrySeparators {
		idx := strings.Index(line, sep)
		if idx < 0 {
			continue
		}

		title := trimQuotes(stripEmphasis(strings.TrimSpace(line[:idx])))
		artist := trimQuotes(stripEmphasis(strings.TrimSpace(line[idx+len(sep):])))
		if title == "" || artist == "" {
			return models.SongEntry{}, false
		}
		return models.SongEntry{Title: title, Artist: artist}, true
	}
	return models.SongEntry{}, false
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.TrimFunc(s, func(r rune) bool {
		switch r {
		case '"', '\'', '“', '”', '‘', '’', '`':
			return true
		}
		return unicode.IsSpace(r)
	}))
}
