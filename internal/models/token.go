// Package models defines data structures for Signum
package models

import (
	"time"
)

// TokenCache persists broker access tokens across restarts so each
// process does not burn a fresh token on startup. Rows are unique per
// (provider, cache key) where the cache key fingerprints the credential
// and environment the token was issued for.
type TokenCache struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider    string    `gorm:"size:20;uniqueIndex:idx_provider_key;not null" json:"provider"`
	CacheKey    string    `gorm:"size:32;uniqueIndex:idx_provider_key;not null" json:"cache_key"`
	AccessToken string    `gorm:"type:text;not null" json:"access_token"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TokenCache
func (TokenCache) TableName() string {
	return "token_cache"
}

// Expired reports whether the token should be considered unusable at
// the given instant. A safety margin is applied so tokens are refreshed
// shortly before the broker would reject them.
func (t *TokenCache) Expired(now time.Time, margin time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-margin))
}
