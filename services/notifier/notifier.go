package notifier

import (
	"context"
	"encoding/json"

	"petcare-loyalty/pkg/rediskey"
	"petcare-loyalty/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("notifier",
	fx.Provide(NewAsynqNotifier),
)

type TierChangedPayload struct {
	PrincipalID     string `json:"principal_id"`
	OldTier         string `json:"old_tier"`
	NewTier         string `json:"new_tier"`
	DiscountPercent int    `json:"discount_percent"`
	TraceID         string `json:"trace_id,omitempty"`
}

// Notifier informs downstream channels that a principal's tier actually
// changed. Delivery is best-effort; failures never reach the ledger.
type Notifier interface {
	NotifyTierChange(ctx context.Context, p TierChangedPayload) error
}

type asynqNotifier struct {
	enqueuer task.Enqueuer
}

type Params struct {
	fx.In
	Enqueuer task.Enqueuer
}

// NewAsynqNotifier hands tier-change events to the background queue so the
// caller's response never waits on a delivery channel.
func NewAsynqNotifier(p Params) Notifier {
	return &asynqNotifier{enqueuer: p.Enqueuer}
}

func (n *asynqNotifier) NotifyTierChange(ctx context.Context, p TierChangedPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}

	_, err = n.enqueuer.Enqueue(ctx,
		asynq.NewTask(rediskey.TierChangedKey, b),
		asynq.Queue("low"),
		asynq.MaxRetry(5),
	)
	return err
}
