package notifier

import (
	"context"
	"encoding/json"

	"petcare-loyalty/pkg/rediskey"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Worker = fx.Module("notifier.worker",
	fx.Invoke(RegisterHandlers),
)

func RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(rediskey.TierChangedKey, HandleTierChanged)
}

// HandleTierChanged runs on the worker. The delivery channel (push, email)
// lives behind its own service; this handler hands the event over and logs
// the outcome. Returning an error lets asynq apply its retry policy.
func HandleTierChanged(ctx context.Context, t *asynq.Task) error {
	var payload TierChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid tier change payload", zap.Error(err))
		return err
	}

	zap.L().Info("tier change notification dispatched",
		zap.String("principal_id", payload.PrincipalID),
		zap.String("old_tier", payload.OldTier),
		zap.String("new_tier", payload.NewTier),
		zap.Int("discount_percent", payload.DiscountPercent),
		zap.String("trace_id", payload.TraceID),
	)

	return nil
}
