package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// raiseIncident persists an operator-facing divergence record carrying both
// failure causes and logs it at the highest severity. Persisting the
// incident is itself best effort; the log line alone must be enough for
// manual reconciliation.
func (s *Service) raiseIncident(ctx context.Context, commit *CommitResult, syncErr, compErr error) {
	code := "INC-UNASSIGNED"
	if s.seq != nil {
		if c, err := s.seq.NextIncidentCode(ctx); err == nil {
			code = c
		}
	}

	inc := &Incident{
		ID:              s.node.Generate().String(),
		Code:            code,
		PrincipalID:     commit.PrincipalID,
		OriginalEntryID: commit.EntryID,
		RequestedDelta:  commit.RequestedDelta,
		EffectiveDelta:  commit.EffectiveDelta,
		Reason:          commit.Reason,
		SyncError:       syncErr.Error(),
		CompensateError: compErr.Error(),
		Status:          "open",
		CreatedAt:       time.Now(),
	}

	if err := s.incidents.Create(ctx, inc); err != nil {
		zap.L().Error("failed to persist reconciliation incident", zap.String("incident_code", code), zap.Error(err))
	}

	zap.L().Error("ledger/mirror divergence requires manual reconciliation",
		zap.String("incident_code", code),
		zap.String("principal_id", commit.PrincipalID),
		zap.String("original_entry_id", commit.EntryID),
		zap.Int64("requested_delta", commit.RequestedDelta),
		zap.Int64("effective_delta", commit.EffectiveDelta),
		zap.String("reason", commit.Reason),
		zap.NamedError("sync_error", syncErr),
		zap.NamedError("compensate_error", compErr),
	)
}
