package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"petcare-loyalty/pkg/errutil"
	"petcare-loyalty/pkg/repository"
	"petcare-loyalty/services/mirror"
	"petcare-loyalty/services/notifier"
	"petcare-loyalty/services/testutil"
	"petcare-loyalty/services/tier"
)

type syncerMock struct {
	syncFn  func(ctx context.Context, principalID string, snap mirror.Snapshot) error
	fetchFn func(ctx context.Context, principalID string) (*mirror.Snapshot, error)
}

func (m *syncerMock) SyncSnapshot(ctx context.Context, principalID string, snap mirror.Snapshot) error {
	return m.syncFn(ctx, principalID, snap)
}

func (m *syncerMock) Fetch(ctx context.Context, principalID string) (*mirror.Snapshot, error) {
	if m.fetchFn == nil {
		return nil, nil
	}
	return m.fetchFn(ctx, principalID)
}

func okSyncer() *syncerMock {
	return &syncerMock{
		syncFn: func(ctx context.Context, principalID string, snap mirror.Snapshot) error {
			return nil
		},
	}
}

func failingSyncer() *syncerMock {
	return &syncerMock{
		syncFn: func(ctx context.Context, principalID string, snap mirror.Snapshot) error {
			return errutil.Unavailable("mirror sync failed", errutil.WithErr(errors.New("connection refused")))
		},
	}
}

type notifierMock struct {
	ch chan notifier.TierChangedPayload
}

func newNotifierMock() *notifierMock {
	return &notifierMock{ch: make(chan notifier.TierChangedPayload, 1)}
}

func (m *notifierMock) NotifyTierChange(ctx context.Context, p notifier.TierChangedPayload) error {
	m.ch <- p
	return nil
}

// rollbackFailingStore lets tests force the reversing transaction to fail
// while the original commit goes through the real store.
type rollbackFailingStore struct {
	inner deltaCommitter
}

func (s *rollbackFailingStore) CommitDelta(ctx context.Context, principalID string, delta int64, reason string, metadata map[string]string) (*CommitResult, error) {
	if reason == ReasonRollbackMirrorFailure {
		return nil, errutil.Internal("ledger commit failed",
			errutil.WithErr(errors.Join(ErrLedgerCommitFailed, errors.New("database connection lost"))))
	}
	return s.inner.CommitDelta(ctx, principalID, delta, reason, metadata)
}

func newTestService(t *testing.T, autoProvision bool, m mirror.Syncer, n notifier.Notifier) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &PrincipalBalance{}, &ActivityEntry{}, &Incident{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		db:   db,
		node: node,

		store:    NewStore(db, node, autoProvision),
		mirror:   m,
		notifier: n,

		balances:  repository.ProvideStore[PrincipalBalance](db),
		activity:  repository.ProvideStore[ActivityEntry](db),
		incidents: repository.ProvideStore[Incident](db),
	}
	return svc, db
}

func TestApplyDeltaEarnsPointsAndTier(t *testing.T) {
	svc, _ := newTestService(t, true, okSyncer(), nil)

	res, err := svc.ApplyDelta(context.Background(), "principal-1", 150, ReasonPurchase, nil)
	require.NoError(t, err)
	require.Equal(t, int64(150), res.Balance)
	require.Equal(t, tier.Silver.String(), res.Tier)
	require.Equal(t, 5, res.DiscountPercent)
	require.Equal(t, int64(150), res.Delta)
}

func TestApplyDeltaFlooredRedemption(t *testing.T) {
	svc, db := newTestService(t, false, okSyncer(), nil)
	seedBalance(t, db, "principal-1", 100)

	res, err := svc.ApplyDelta(context.Background(), "principal-1", -250, "redemption", nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Balance)
	require.Equal(t, tier.Bronze.String(), res.Tier)
	require.Equal(t, 0, res.DiscountPercent)
	require.Equal(t, int64(-100), res.Delta)
}

func TestApplyDeltaNotifiesOnTierChange(t *testing.T) {
	note := newNotifierMock()
	svc, db := newTestService(t, false, okSyncer(), note)
	seedBalance(t, db, "principal-1", 450)

	res, err := svc.ApplyDelta(context.Background(), "principal-1", 60, ReasonPurchase, nil)
	require.NoError(t, err)
	require.Equal(t, int64(510), res.Balance)
	require.Equal(t, tier.Gold.String(), res.Tier)
	require.Equal(t, 10, res.DiscountPercent)

	select {
	case p := <-note.ch:
		require.Equal(t, "principal-1", p.PrincipalID)
		require.Equal(t, tier.Silver.String(), p.OldTier)
		require.Equal(t, tier.Gold.String(), p.NewTier)
		require.Equal(t, 10, p.DiscountPercent)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tier change notification")
	}
}

func TestApplyDeltaNoNotificationWhenTierUnchanged(t *testing.T) {
	note := newNotifierMock()
	svc, db := newTestService(t, false, okSyncer(), note)
	seedBalance(t, db, "principal-1", 200)

	_, err := svc.ApplyDelta(context.Background(), "principal-1", 10, ReasonPurchase, nil)
	require.NoError(t, err)

	select {
	case p := <-note.ch:
		t.Fatalf("unexpected notification: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestApplyDeltaMirrorMatchesLedgerOnSuccess(t *testing.T) {
	var got mirror.Snapshot
	m := &syncerMock{
		syncFn: func(ctx context.Context, principalID string, snap mirror.Snapshot) error {
			got = snap
			return nil
		},
	}
	svc, _ := newTestService(t, true, m, nil)

	res, err := svc.ApplyDelta(context.Background(), "principal-1", 700, ReasonPurchase, nil)
	require.NoError(t, err)

	require.Equal(t, res.Balance, got.PointsBalance)
	require.Equal(t, res.Tier, got.Tier)
	require.Equal(t, res.DiscountPercent, got.DiscountPercent)
	require.False(t, got.LastSyncedAt.IsZero())
}

func TestApplyDeltaMirrorRetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	m := &syncerMock{
		syncFn: func(ctx context.Context, principalID string, snap mirror.Snapshot) error {
			if calls.Add(1) == 1 {
				return errutil.Unavailable("mirror sync failed", errutil.WithErr(errors.New("i/o timeout")))
			}
			return nil
		},
	}
	svc, db := newTestService(t, true, m, nil)

	res, err := svc.ApplyDelta(context.Background(), "principal-1", 80, ReasonPurchase, nil)
	require.NoError(t, err)
	require.Equal(t, int64(80), res.Balance)
	require.EqualValues(t, 2, calls.Load())

	var count int64
	require.NoError(t, db.Model(&ActivityEntry{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestApplyDeltaCompensatesWhenMirrorFails(t *testing.T) {
	svc, db := newTestService(t, false, failingSyncer(), nil)
	seedBalance(t, db, "principal-1", 100)

	res, err := svc.ApplyDelta(context.Background(), "principal-1", 150, ReasonPurchase, nil)
	require.Nil(t, res)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCompensated))
	require.False(t, errors.Is(err, ErrCompensationFailed))

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())

	// Net effect is zero.
	status, err := svc.GetStatus(context.Background(), "principal-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), status.Balance)
	require.Equal(t, tier.Silver.String(), status.Tier)

	// Both the original commit and the reversal are on the record.
	var entries []ActivityEntry
	require.NoError(t, db.Where("principal_id = ?", "principal-1").Order("created_at asc, id asc").Find(&entries).Error)
	require.Len(t, entries, 2)
	require.Equal(t, ReasonPurchase, entries[0].Reason)
	require.Equal(t, ReasonRollbackMirrorFailure, entries[1].Reason)
	require.Equal(t, int64(-150), entries[1].Delta)
	require.Equal(t, int64(100), entries[1].ResultingBalance)
	require.Contains(t, string(entries[1].Metadata), entries[0].ID)

	var incidents int64
	require.NoError(t, db.Model(&Incident{}).Count(&incidents).Error)
	require.Zero(t, incidents)
}

func TestApplyDeltaCompensationRestoresFlooredDebitExactly(t *testing.T) {
	svc, db := newTestService(t, false, failingSyncer(), nil)
	seedBalance(t, db, "principal-1", 100)

	_, err := svc.ApplyDelta(context.Background(), "principal-1", -250, "redemption", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCompensated))

	// The reversal undoes the effective -100, not the requested -250, so the
	// balance lands back on 100 rather than 250.
	status, err := svc.GetStatus(context.Background(), "principal-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), status.Balance)

	var entries []ActivityEntry
	require.NoError(t, db.Where("principal_id = ?", "principal-1").Order("created_at asc, id asc").Find(&entries).Error)
	require.Len(t, entries, 2)
	require.Equal(t, int64(-100), entries[0].Delta)
	require.Equal(t, int64(100), entries[1].Delta)
}

func TestApplyDeltaRaisesIncidentWhenCompensationFails(t *testing.T) {
	svc, db := newTestService(t, false, failingSyncer(), nil)
	seedBalance(t, db, "principal-1", 100)
	svc.store = &rollbackFailingStore{inner: svc.store}

	res, err := svc.ApplyDelta(context.Background(), "principal-1", 150, ReasonPurchase, nil)
	require.Nil(t, res)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCompensationFailed))
	require.False(t, errors.Is(err, ErrCompensated))

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusInternal, be.Status())

	// The ledger keeps the uncompensated update; the incident records the
	// divergence for an operator.
	status, err := svc.GetStatus(context.Background(), "principal-1")
	require.NoError(t, err)
	require.Equal(t, int64(250), status.Balance)

	var inc Incident
	require.NoError(t, db.First(&inc).Error)
	require.Equal(t, "INC-UNASSIGNED", inc.Code)
	require.Equal(t, "principal-1", inc.PrincipalID)
	require.Equal(t, int64(150), inc.RequestedDelta)
	require.Equal(t, int64(150), inc.EffectiveDelta)
	require.Equal(t, "open", inc.Status)
	require.NotEmpty(t, inc.SyncError)
	require.NotEmpty(t, inc.CompensateError)
}

func TestApplyDeltaValidation(t *testing.T) {
	svc, _ := newTestService(t, true, okSyncer(), nil)
	ctx := context.Background()

	cases := []struct {
		name        string
		principalID string
		delta       int64
		reason      string
	}{
		{"missing principal", "", 10, ReasonPurchase},
		{"zero delta", "principal-1", 0, ReasonPurchase},
		{"missing reason", "principal-1", 10, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyDelta(ctx, tc.principalID, tc.delta, tc.reason, nil)
			require.Error(t, err)

			var be errutil.BaseError
			require.True(t, errors.As(err, &be))
			require.Equal(t, errutil.StatusBadRequest, be.Status())
		})
	}
}

func TestApplyDeltaUnknownPrincipal(t *testing.T) {
	var synced atomic.Int32
	m := &syncerMock{
		syncFn: func(ctx context.Context, principalID string, snap mirror.Snapshot) error {
			synced.Add(1)
			return nil
		},
	}
	svc, db := newTestService(t, false, m, nil)

	_, err := svc.ApplyDelta(context.Background(), "ghost", 50, ReasonPurchase, nil)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
	require.Zero(t, synced.Load())

	var count int64
	require.NoError(t, db.Model(&ActivityEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetStatus(t *testing.T) {
	svc, db := newTestService(t, false, okSyncer(), nil)
	seedBalance(t, db, "principal-1", 150)

	status, err := svc.GetStatus(context.Background(), "principal-1")
	require.NoError(t, err)
	require.Equal(t, int64(150), status.Balance)
	require.Equal(t, tier.Silver.String(), status.Tier)
	require.Equal(t, 5, status.DiscountPercent)
	require.Equal(t, tier.Gold.String(), status.NextTier)
	require.Equal(t, int64(350), status.PointsToNextTier)
}

func TestGetStatusUnknownPrincipal(t *testing.T) {
	svc, _ := newTestService(t, false, okSyncer(), nil)

	_, err := svc.GetStatus(context.Background(), "ghost")
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestListActivityNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, true, okSyncer(), nil)
	ctx := context.Background()

	for _, d := range []int64{10, 20, 30} {
		_, err := svc.ApplyDelta(ctx, "principal-1", d, ReasonPurchase, nil)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	entries, err := svc.ListActivity(ctx, "principal-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(30), entries[0].Delta)
	require.Equal(t, int64(20), entries[1].Delta)
}
