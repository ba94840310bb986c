package ledger

import (
	"context"
	"time"

	"petcare-loyalty/pkg/config"
	"petcare-loyalty/pkg/db/option"
	"petcare-loyalty/pkg/errutil"
	"petcare-loyalty/pkg/repository"
	"petcare-loyalty/pkg/sequence"
	"petcare-loyalty/services/mirror"
	"petcare-loyalty/services/notifier"
	"petcare-loyalty/services/tier"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// Service coordinates a balance change across the durable ledger and the
// eventually-consistent mirror. The ledger commit is authoritative; the
// mirror write is best effort with one inline retry, and a mirror failure is
// undone by a reversing ledger transaction. The public contract is "ledger
// and mirror agree or the operation did not happen" — the one exception is a
// failed compensation, which raises an operator incident.
type Service struct {
	grpc_health_v1.UnimplementedHealthServer

	db   *gorm.DB
	node *snowflake.Node

	store    deltaCommitter
	mirror   mirror.Syncer
	notifier notifier.Notifier
	seq      sequence.Generator

	balances  repository.Repository[PrincipalBalance]
	activity  repository.Repository[ActivityEntry]
	incidents repository.Repository[Incident]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Mirror   mirror.Syncer
	Notifier notifier.Notifier  `optional:"true"`
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		store:    NewStore(p.DB, p.Node, p.Config.Loyalty.AutoProvision),
		mirror:   p.Mirror,
		notifier: p.Notifier,
		seq:      p.Sequence,

		balances:  repository.ProvideStore[PrincipalBalance](p.DB),
		activity:  repository.ProvideStore[ActivityEntry](p.DB),
		incidents: repository.ProvideStore[Incident](p.DB),
	}
}

type ApplyResult struct {
	Balance         int64  `json:"balance"`
	Tier            string `json:"tier"`
	DiscountPercent int    `json:"discount_percent"`
	// Delta is the effective delta applied after the floor-at-zero rule.
	Delta int64 `json:"delta"`
}

// ApplyDelta is the single public mutation. Flow: commit to the ledger,
// sync the mirror, compensate on mirror failure, then (on success only)
// dispatch a tier-change notification without blocking the response.
func (s *Service) ApplyDelta(ctx context.Context, principalID string, delta int64, reason string, metadata map[string]string) (*ApplyResult, error) {
	span := trace.SpanFromContext(ctx)
	fields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("principal_id", principalID),
		zap.Int64("delta", delta),
		zap.String("reason", reason),
	}

	if principalID == "" {
		return nil, errutil.BadRequest("principal_id is required")
	}
	if delta == 0 {
		return nil, errutil.BadRequest("delta must be non-zero")
	}
	if reason == "" {
		return nil, errutil.BadRequest("reason is required")
	}

	commit, err := s.store.CommitDelta(ctx, principalID, delta, reason, metadata)
	if err != nil {
		zap.L().With(fields...).Error("failed to commit ledger delta", zap.Error(err))
		return nil, err
	}

	// Past this point the ledger has committed. The remaining steps run to
	// completion even if the caller has gone away; a timed-out caller must
	// re-query via GetStatus.
	ctx = context.WithoutCancel(ctx)

	if syncErr := s.syncMirror(ctx, commit, fields); syncErr != nil {
		return nil, s.compensate(ctx, commit, syncErr, fields)
	}

	if commit.OldTier != commit.NewTier {
		s.dispatchTierChange(commit, span)
	}

	return &ApplyResult{
		Balance:         commit.NewBalance,
		Tier:            commit.NewTier.String(),
		DiscountPercent: tier.DiscountOf(commit.NewTier),
		Delta:           commit.EffectiveDelta,
	}, nil
}

// syncMirror pushes the committed snapshot with at most one inline retry;
// anything beyond that escalates to compensation to bound latency.
func (s *Service) syncMirror(ctx context.Context, commit *CommitResult, fields []zap.Field) error {
	snap := mirror.Snapshot{
		PointsBalance:   commit.NewBalance,
		Tier:            commit.NewTier.String(),
		DiscountPercent: tier.DiscountOf(commit.NewTier),
		LastSyncedAt:    time.Now(),
	}

	err := s.mirror.SyncSnapshot(ctx, commit.PrincipalID, snap)
	if err == nil {
		return nil
	}

	zap.L().With(fields...).Warn("mirror sync failed, retrying once", zap.Error(err))

	if err = s.mirror.SyncSnapshot(ctx, commit.PrincipalID, snap); err != nil {
		return err
	}
	return nil
}

func (s *Service) dispatchTierChange(commit *CommitResult, span trace.Span) {
	if s.notifier == nil {
		return
	}

	payload := notifier.TierChangedPayload{
		PrincipalID:     commit.PrincipalID,
		OldTier:         commit.OldTier.String(),
		NewTier:         commit.NewTier.String(),
		DiscountPercent: tier.DiscountOf(commit.NewTier),
		TraceID:         span.SpanContext().TraceID().String(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.notifier.NotifyTierChange(ctx, payload); err != nil {
			zap.L().Warn("tier change notification failed",
				zap.String("principal_id", payload.PrincipalID),
				zap.String("new_tier", payload.NewTier),
				zap.Error(err),
			)
		}
	}()
}

type Status struct {
	Balance          int64  `json:"balance"`
	Tier             string `json:"tier"`
	DiscountPercent  int    `json:"discount_percent"`
	NextTier         string `json:"next_tier,omitempty"`
	PointsToNextTier int64  `json:"points_to_next_tier"`
}

// GetStatus is a pure read from the ledger; it never touches the mirror.
func (s *Service) GetStatus(ctx context.Context, principalID string) (*Status, error) {
	row, err := s.balances.FindOne(ctx, &PrincipalBalance{PrincipalID: principalID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errutil.NotFound("principal not found",
			errutil.WithDetails(errutil.Detail{Field: "principal_id", Message: principalID}))
	}

	next, toNext := tier.Progress(row.PointsBalance)

	return &Status{
		Balance:          row.PointsBalance,
		Tier:             row.Tier,
		DiscountPercent:  tier.DiscountOf(tier.Tier(row.Tier)),
		NextTier:         next.String(),
		PointsToNextTier: toNext,
	}, nil
}

// ListActivity returns the principal's activity log, newest first.
func (s *Service) ListActivity(ctx context.Context, principalID string, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return s.activity.Find(ctx,
		&ActivityEntry{PrincipalID: principalID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow: map[string]bool{
				"created_at": true,
			},
		}),
		option.WithLimit(limit),
	)
}
