package users

import (
	"context"
	"database/sql"
	"errors"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Directory resolves the display name shown next to a bid.
type Directory interface {
	DisplayName(ctx context.Context, userID string) string
}

// SQLDirectory reads names from the users table and keeps recent answers
// in an LRU cache. Unknown users fall back to their id and are not cached.
type SQLDirectory struct {
	db    *sql.DB
	cache *lru.Cache
}

func NewSQLDirectory(db *sql.DB, cacheSize int) (*SQLDirectory, error) {
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &SQLDirectory{db: db, cache: c}, nil
}

func (d *SQLDirectory) DisplayName(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	if v, ok := d.cache.Get(userID); ok {
		return v.(string)
	}

	var name string
	err := d.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("users.lookup", zap.String("user_id", userID), zap.Error(err))
		}
		return userID
	}
	if name == "" {
		name = userID
	}
	d.cache.Add(userID, name)
	return name
}

// StaticDirectory is a fixed id -> name map.
type StaticDirectory map[string]string

func (s StaticDirectory) DisplayName(_ context.Context, userID string) string {
	if n, ok := s[userID]; ok {
		return n
	}
	return userID
}
