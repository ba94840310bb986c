package mirror

import (
	"context"
	"strconv"
	"time"

	"petcare-loyalty/pkg/errutil"
	"petcare-loyalty/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("mirror",
	fx.Provide(NewRedisSyncer),
)

// Snapshot is the client-facing view of a principal's loyalty state. It is
// derived from the ledger and holds no authority of its own.
type Snapshot struct {
	PointsBalance   int64
	Tier            string
	DiscountPercent int
	LastSyncedAt    time.Time
}

// Syncer pushes ledger state into the eventually-consistent mirror read by
// client applications.
type Syncer interface {
	// SyncSnapshot performs an idempotent upsert-with-merge: the document is
	// created if absent, otherwise only the loyalty fields are overwritten
	// and fields owned by other subsystems are preserved. It either applies
	// the whole snapshot or fails.
	SyncSnapshot(ctx context.Context, principalID string, snap Snapshot) error
	// Fetch reads the snapshot back, returning (nil, nil) when no document
	// exists yet.
	Fetch(ctx context.Context, principalID string) (*Snapshot, error)
}

type RedisSyncer struct {
	rdb *redis.Client
}

type Params struct {
	fx.In
	Redis *redis.Client
}

func NewRedisSyncer(p Params) Syncer {
	return &RedisSyncer{rdb: p.Redis}
}

// SyncSnapshot writes the snapshot into the principal's mirror hash. HSET
// with the full field set is atomic and leaves foreign fields untouched,
// which is exactly the merge contract.
func (s *RedisSyncer) SyncSnapshot(ctx context.Context, principalID string, snap Snapshot) error {
	key := rediskey.BuildMirrorKey(principalID)

	fields := map[string]any{
		"points_balance":   snap.PointsBalance,
		"tier":             snap.Tier,
		"discount_percent": snap.DiscountPercent,
		"last_synced_at":   snap.LastSyncedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return errutil.Unavailable("mirror sync failed", errutil.WithErr(err))
	}

	return nil
}

func (s *RedisSyncer) Fetch(ctx context.Context, principalID string) (*Snapshot, error) {
	values, err := s.rdb.HGetAll(ctx, rediskey.BuildMirrorKey(principalID)).Result()
	if err != nil {
		return nil, errutil.Unavailable("mirror read failed", errutil.WithErr(err))
	}
	if len(values) == 0 {
		return nil, nil
	}

	balance, _ := strconv.ParseInt(values["points_balance"], 10, 64)
	discount, _ := strconv.Atoi(values["discount_percent"])
	syncedAt, _ := time.Parse(time.RFC3339Nano, values["last_synced_at"])

	return &Snapshot{
		PointsBalance:   balance,
		Tier:            values["tier"],
		DiscountPercent: discount,
		LastSyncedAt:    syncedAt,
	}, nil
}
