package generator

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"freqy/pkg/models"
)

// ParseMood validates a mood label. An empty label picks a mood uniformly at
// random using intn (rand.IntN when nil).
func ParseMood(s string, intn func(int) int) (models.Mood, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		if intn == nil {
			intn = rand.IntN
		}
		return models.Moods[intn(len(models.Moods))], nil
	}

	mood := models.Mood(s)
	if !mood.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMood, s)
	}
	return mood, nil
}
