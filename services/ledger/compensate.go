package ledger

import (
	"context"
	"errors"

	"petcare-loyalty/pkg/errutil"

	"go.uber.org/zap"
)

// compensate reverses a committed delta after the mirror sync failed. The
// reversing transaction undoes the effective delta, so a floored original
// debit is not over-restored. Exactly one attempt: a second failure is a
// divergence incident for an operator, never an automatic retry loop.
func (s *Service) compensate(ctx context.Context, commit *CommitResult, syncErr error, fields []zap.Field) error {
	meta := map[string]string{
		"original_entry_id": commit.EntryID,
		"original_reason":   commit.Reason,
	}

	restored, compErr := s.store.CommitDelta(ctx, commit.PrincipalID, -commit.EffectiveDelta, ReasonRollbackMirrorFailure, meta)
	if compErr != nil {
		s.raiseIncident(ctx, commit, syncErr, compErr)
		return errutil.Internal(
			"points update failed and automatic rollback failed; manual reconciliation required",
			errutil.WithErr(errors.Join(ErrCompensationFailed, syncErr, compErr)),
		)
	}

	zap.L().With(fields...).Warn("ledger delta reverted after mirror sync failure",
		zap.String("original_entry_id", commit.EntryID),
		zap.String("rollback_entry_id", restored.EntryID),
		zap.Int64("restored_balance", restored.NewBalance),
		zap.Error(syncErr),
	)

	return errutil.UnprocessableEntity(
		"points update could not be completed, no balance change took effect",
		errutil.WithErr(errors.Join(ErrCompensated, syncErr)),
	)
}
