package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// TokenStore implements interfaces.TokenStore
type TokenStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewTokenStore creates a new token store
func NewTokenStore(db *gorm.DB, logger *common.Logger) *TokenStore {
	return &TokenStore{db: db, logger: logger}
}

func (s *TokenStore) GetToken(ctx context.Context, provider, cacheKey string) (*models.TokenCache, error) {
	var token models.TokenCache
	err := s.db.WithContext(ctx).
		Where("provider = ? AND cache_key = ?", provider, cacheKey).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s token: %w", provider, err)
	}
	return &token, nil
}

// SaveToken upserts on (provider, cache_key). Concurrent issuance races
// resolve last-writer-wins; any surviving token is valid.
func (s *TokenStore) SaveToken(ctx context.Context, token *models.TokenCache) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "expires_at", "updated_at"}),
		}).
		Create(token).Error
	if err != nil {
		return fmt.Errorf("failed to save %s token: %w", token.Provider, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.TokenStore = (*TokenStore)(nil)
