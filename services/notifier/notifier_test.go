package notifier

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"petcare-loyalty/pkg/rediskey"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type enqueuerMock struct {
	enqueueFn func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func (m *enqueuerMock) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.enqueueFn(ctx, task, opts...)
}

func TestNotifyTierChangeEnqueuesTask(t *testing.T) {
	var got *asynq.Task
	n := &asynqNotifier{enqueuer: &enqueuerMock{
		enqueueFn: func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
			got = task
			return &asynq.TaskInfo{}, nil
		},
	}}

	payload := TierChangedPayload{
		PrincipalID:     "principal-1",
		OldTier:         "SILVER",
		NewTier:         "GOLD",
		DiscountPercent: 10,
	}
	require.NoError(t, n.NotifyTierChange(context.Background(), payload))

	require.NotNil(t, got)
	require.Equal(t, rediskey.TierChangedKey, got.Type())

	var decoded TierChangedPayload
	require.NoError(t, json.Unmarshal(got.Payload(), &decoded))
	require.Equal(t, payload, decoded)
}

func TestHandleTierChanged(t *testing.T) {
	b, err := json.Marshal(TierChangedPayload{PrincipalID: "principal-1", OldTier: "BRONZE", NewTier: "SILVER"})
	require.NoError(t, err)

	err = HandleTierChanged(context.Background(), asynq.NewTask(rediskey.TierChangedKey, b))
	require.NoError(t, err)
}

func TestHandleTierChangedInvalidPayload(t *testing.T) {
	err := HandleTierChanged(context.Background(), asynq.NewTask(rediskey.TierChangedKey, []byte("{not json")))
	require.Error(t, err)
}
