package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"petcare-loyalty/pkg/db/option"
	"petcare-loyalty/pkg/errutil"
	"petcare-loyalty/pkg/repository"
	"petcare-loyalty/services/tier"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CommitResult describes one committed balance change.
type CommitResult struct {
	EntryID        string
	PrincipalID    string
	Reason         string
	RequestedDelta int64
	// EffectiveDelta is the delta actually applied after the floor-at-zero
	// rule. For debits it may be less negative than requested.
	EffectiveDelta int64
	OldBalance     int64
	NewBalance     int64
	OldTier        tier.Tier
	NewTier        tier.Tier
}

// deltaCommitter is what the coordinator needs from the durable store.
type deltaCommitter interface {
	CommitDelta(ctx context.Context, principalID string, delta int64, reason string, metadata map[string]string) (*CommitResult, error)
}

// Store is the only component that mutates durable loyalty state.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node

	// autoProvision creates a zero-balance row on first use instead of
	// returning not-found. Deployment policy, see config.
	autoProvision bool

	balances repository.Repository[PrincipalBalance]
	activity repository.Repository[ActivityEntry]
}

func NewStore(db *gorm.DB, node *snowflake.Node, autoProvision bool) *Store {
	return &Store{
		db:            db,
		node:          node,
		autoProvision: autoProvision,

		balances: repository.ProvideStore[PrincipalBalance](db),
		activity: repository.ProvideStore[ActivityEntry](db),
	}
}

// CommitDelta applies a delta to a principal's balance inside one
// transaction: lock row, floor at zero, recompute tier, append exactly one
// activity entry, update the balance row. Either everything is persisted or
// nothing is.
func (s *Store) CommitDelta(ctx context.Context, principalID string, delta int64, reason string, metadata map[string]string) (*CommitResult, error) {
	var result *CommitResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		balances := s.balances.WithTrx(tx)
		activity := s.activity.WithTrx(tx)

		row, err := balances.FindOne(ctx,
			&PrincipalBalance{PrincipalID: principalID},
			option.WithLockingUpdate(),
		)
		if err != nil {
			return err
		}

		now := time.Now()
		if row == nil {
			if !s.autoProvision {
				return errutil.NotFound("principal not found",
					errutil.WithDetails(errutil.Detail{Field: "principal_id", Message: principalID}))
			}

			row = &PrincipalBalance{
				ID:            s.node.Generate().String(),
				PrincipalID:   principalID,
				PointsBalance: 0,
				Tier:          tier.Of(0).String(),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := balances.Create(ctx, row); err != nil {
				return err
			}
		}

		oldBalance := row.PointsBalance
		oldTier := tier.Tier(row.Tier)

		newBalance := oldBalance + delta
		if newBalance < 0 {
			newBalance = 0
		}
		effective := newBalance - oldBalance

		// Tier is always recomputed from the balance, never patched, so it
		// cannot drift across compensations.
		newTier := tier.Of(newBalance)

		metaBytes, _ := json.Marshal(metadata)
		entry := &ActivityEntry{
			ID:               s.node.Generate().String(),
			PrincipalID:      principalID,
			RequestedDelta:   delta,
			Delta:            effective,
			Reason:           reason,
			ResultingBalance: newBalance,
			ResultingTier:    newTier.String(),
			Metadata:         datatypes.JSON(metaBytes),
			CreatedAt:        now,
		}
		if err := activity.Create(ctx, entry); err != nil {
			return err
		}

		updates := map[string]any{
			"points_balance": newBalance,
			"tier":           newTier.String(),
			"updated_at":     now,
		}
		if err := balances.Update(ctx, row.ID, updates); err != nil {
			return err
		}

		result = &CommitResult{
			EntryID:        entry.ID,
			PrincipalID:    principalID,
			Reason:         reason,
			RequestedDelta: delta,
			EffectiveDelta: effective,
			OldBalance:     oldBalance,
			NewBalance:     newBalance,
			OldTier:        oldTier,
			NewTier:        newTier,
		}
		return nil
	})
	if err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) && be.Status() == errutil.StatusNotFound {
			return nil, err
		}
		zap.L().Error("ledger transaction rolled back",
			zap.String("principal_id", principalID),
			zap.Int64("delta", delta),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return nil, errutil.Internal("ledger commit failed", errutil.WithErr(errors.Join(ErrLedgerCommitFailed, err)))
	}

	return result, nil
}
