// Package policy provides the write-through repository binding the durable
// settings store and the ephemeral cache into one GroupPolicy view.
//
// Consistency contract: every write goes durable-store-first, then cache;
// reads prefer the cache and fall back to the store on a miss, repopulating
// the cache on the way out. The two copies may transiently disagree for the
// duration of one write; readers tolerate that window. A cache failure never
// fails the caller; the durable row is authoritative and the cache entry is
// lazily repaired on the next miss.
package policy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/cache"
	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/repo"
)

// defaultCacheTTL bounds staleness of the denormalized copy even if an
// invalidation is lost.
const defaultCacheTTL = time.Hour

// Repository is the single access path to GroupPolicy for the coordinator,
// the moderation pipeline, and the settings service.
type Repository struct {
	DB    *gorm.DB
	Cache cache.Store

	// CacheTTL overrides the lifetime of cached policy entries.
	CacheTTL time.Duration
}

// NewRepository constructs a Repository with the default cache TTL.
func NewRepository(db *gorm.DB, c cache.Store) *Repository {
	return &Repository{DB: db, Cache: c, CacheTTL: defaultCacheTTL}
}

// Get returns the policy for a group: cache first, durable store on miss
// (creating a disabled-defaults row lazily), repopulating the cache on
// fallback.
func (r *Repository) Get(ctx context.Context, groupID int64) (*domain.GroupPolicy, error) {
	key := cache.PolicyKey(groupID)

	if raw, err := r.Cache.Get(ctx, key); err == nil {
		var p domain.GroupPolicy
		if uerr := json.Unmarshal([]byte(raw), &p); uerr == nil {
			return &p, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		_ = r.Cache.Delete(ctx, key)
	} else if err != cache.ErrMiss {
		log.Warn().Err(err).Int64("group_id", groupID).Msg("policy cache read failed, using store")
	}

	p, err := repo.GetPolicy(ctx, r.DB, groupID)
	if err != nil {
		return nil, err
	}
	r.fillCache(ctx, key, p)
	return p, nil
}

// Upsert applies a partial update durable-store-first, then refreshes the
// cached copy. The returned policy reflects the store after the write.
func (r *Repository) Upsert(ctx context.Context, groupID int64, fields map[string]any) (*domain.GroupPolicy, error) {
	p, err := repo.UpsertPolicy(ctx, r.DB, groupID, fields)
	if err != nil {
		return nil, err
	}
	r.fillCache(ctx, cache.PolicyKey(groupID), p)
	return p, nil
}

// fillCache writes the denormalized copy; failures are logged, never fatal.
func (r *Repository) fillCache(ctx context.Context, key string, p *domain.GroupPolicy) {
	ttl := r.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Int64("group_id", p.GroupID).Msg("policy marshal failed")
		return
	}
	if err := r.Cache.Set(ctx, key, string(raw), ttl); err != nil {
		log.Warn().Err(err).Int64("group_id", p.GroupID).Msg("policy cache refresh failed")
	}
}
