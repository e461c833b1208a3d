// Package leaderboard lists registered users with an optional name filter.
package leaderboard

import (
	"context"
	"strings"

	"freqy/internal/cache"
	"freqy/pkg/models"

	"github.com/sirupsen/logrus"
)

// UserLister returns every user in registration order.
type UserLister interface {
	GetAllUsers(ctx context.Context) ([]models.User, error)
}

// Board serves the leaderboard from a short-lived cache of the user list.
type Board struct {
	users  UserLister
	cache  *cache.UserCache
	logger *logrus.Logger
}

// New creates a Board. A nil cache disables caching.
func New(users UserLister, userCache *cache.UserCache, logger *logrus.Logger) *Board {
	return &Board{users: users, cache: userCache, logger: logger}
}

// Users returns all users, filtered by query when it is not blank.
func (b *Board) Users(ctx context.Context, query string) ([]models.User, error) {
	all, err := b.allUsers(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(all, query), nil
}

// Invalidate drops the cached user list, e.g. after a registration.
func (b *Board) Invalidate() {
	if b.cache != nil {
		b.cache.Invalidate()
	}
}

func (b *Board) allUsers(ctx context.Context) ([]models.User, error) {
	if b.cache != nil {
		if users, ok := b.cache.GetUsers(); ok {
			return users, nil
		}
	}

	users, err := b.users.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		b.cache.SetUsers(users)
	}
	b.logger.WithField("count", len(users)).Debug("Loaded leaderboard users")
	return users, nil
}

// Filter keeps users whose username contains query, ignoring case, in their
// input order. A blank query keeps everyone.
func Filter(users []models.User, query string) []models.User {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return users
	}

	filtered := make([]models.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), query) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}
