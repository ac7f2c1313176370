package cache

import (
	"context"
	"encoding/json"
	"time"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/disq/internal/domain"
)

// SettingsStore is the authoritative source the cache falls through to.
type SettingsStore interface {
	TenantSettings(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
}

// Settings is a read-through Redis cache for tenant settings. The notifier
// hits this once per job; settings change rarely, so a short TTL is enough
// and there is no invalidation path.
type Settings struct {
	rdb   *r.Client
	store SettingsStore
	ttl   time.Duration
	log   *zap.Logger
}

func NewSettings(rdb *r.Client, store SettingsStore, ttl time.Duration, log *zap.Logger) *Settings {
	return &Settings{rdb: rdb, store: store, ttl: ttl, log: log}
}

func key(tenantID string) string { return "settings:" + tenantID }

// Get returns the tenant's settings, from Redis when fresh. Cache errors
// are logged and treated as misses; Postgres stays authoritative.
func (s *Settings) Get(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	if raw, err := s.rdb.Get(ctx, key(tenantID)).Bytes(); err == nil {
		var ts domain.TenantSettings
		if err := json.Unmarshal(raw, &ts); err == nil {
			return &ts, nil
		}
	} else if err != r.Nil {
		s.log.Warn("settings cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	ts, err := s.store.TenantSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(ts); err == nil {
		if err := s.rdb.Set(ctx, key(tenantID), raw, s.ttl).Err(); err != nil {
			s.log.Warn("settings cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return ts, nil
}
