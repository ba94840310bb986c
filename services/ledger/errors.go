package ledger

import "errors"

// Classification sentinels. Handlers and callers reach them through
// errors.Is; the surrounding errutil.BaseError carries the transport code.
var (
	// ErrLedgerCommitFailed: the transaction rolled back, nothing was
	// persisted, the call is safe to retry from scratch.
	ErrLedgerCommitFailed = errors.New("ledger commit failed")

	// ErrMirrorSyncFailed never reaches callers directly; it triggers
	// compensation and becomes one of the two outcomes below.
	ErrMirrorSyncFailed = errors.New("mirror sync failed")

	// ErrCompensated: the ledger update was reverted after the mirror sync
	// failed. Net effect is zero; the caller may retry.
	ErrCompensated = errors.New("points update reverted after mirror sync failure")

	// ErrCompensationFailed: the mirror sync and the reversing transaction
	// both failed. Ledger and mirror may diverge until an operator resolves
	// the recorded incident. Never retried automatically.
	ErrCompensationFailed = errors.New("mirror sync and rollback both failed")
)
