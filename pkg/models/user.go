package models

import (
	"strings"
	"time"
)

// User represents a registered account
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never exposed to clients
	CreatedAt    time.Time `json:"createdAt"`
}

// Mood is a label from the fixed vocabulary used to prompt playlist generation.
type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodSad       Mood = "sad"
	MoodAnxious   Mood = "anxious"
	MoodEnergetic Mood = "energetic"
	MoodCalm      Mood = "calm"
)

// Moods lists the vocabulary in a fixed order.
var Moods = []Mood{MoodHappy, MoodSad, MoodAnxious, MoodEnergetic, MoodCalm}

// Valid reports whether m is part of the vocabulary.
func (m Mood) Valid() bool {
	for _, known := range Moods {
		if m == known {
			return true
		}
	}
	return false
}

// Title returns the mood with its first letter upper-cased ("happy" -> "Happy").
func (m Mood) Title() string {
	if m == "" {
		return ""
	}
	s := string(m)
	return strings.ToUpper(s[:1]) + s[1:]
}
