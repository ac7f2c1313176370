package cache_test

import (
	"context"
	"testing"
	"time"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/disq/internal/cache"
	"github.com/you/disq/internal/domain"
)

type fakeSettingsStore struct {
	calls int
}

func (f *fakeSettingsStore) TenantSettings(_ context.Context, tenantID string) (*domain.TenantSettings, error) {
	f.calls++
	return &domain.TenantSettings{TenantID: tenantID, PaybillNumber: "400200"}, nil
}

// An unreachable Redis must degrade to plain store reads, never fail the
// notifier.
func TestGetFallsThroughWhenRedisIsDown(t *testing.T) {
	rdb := r.NewClient(&r.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	store := &fakeSettingsStore{}
	s := cache.NewSettings(rdb, store, time.Minute, zap.NewNop())

	ts, err := s.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ts.PaybillNumber != "400200" {
		t.Fatalf("settings = %+v", ts)
	}
	if store.calls != 1 {
		t.Fatalf("store called %d times, want 1", store.calls)
	}
}
