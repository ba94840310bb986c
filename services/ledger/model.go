package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// Well-known activity reasons. Reason is free-form; these are the ones this
// subsystem itself writes or documents.
const (
	ReasonPurchase              = "purchase"
	ReasonReferral              = "referral"
	ReasonRollbackMirrorFailure = "rollback_mirror_failure"
)

// PrincipalBalance is the system-of-record row for a customer's points.
// The tier column is a cache: it is recomputed from points_balance on every
// write and never patched independently.
type PrincipalBalance struct {
	ID            string    `gorm:"column:id;primaryKey"`
	PrincipalID   string    `gorm:"column:principal_id;uniqueIndex;not null"`
	PointsBalance int64     `gorm:"column:points_balance;not null"`
	Tier          string    `gorm:"column:tier;type:varchar(16);not null"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (PrincipalBalance) TableName() string {
	return "principal_balances"
}

// ActivityEntry is one append-only row per applied delta, compensations
// included. RequestedDelta is what the caller asked for; Delta is what the
// floor-at-zero rule actually applied. Compensations reverse Delta, never
// RequestedDelta.
type ActivityEntry struct {
	ID               string         `gorm:"column:id;primaryKey"`
	PrincipalID      string         `gorm:"column:principal_id;index;not null"`
	RequestedDelta   int64          `gorm:"column:requested_delta;not null"`
	Delta            int64          `gorm:"column:delta;not null"`
	Reason           string         `gorm:"column:reason;type:varchar(64);not null"`
	ResultingBalance int64          `gorm:"column:resulting_balance;not null"`
	ResultingTier    string         `gorm:"column:resulting_tier;type:varchar(16);not null"`
	Metadata         datatypes.JSON `gorm:"column:metadata"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
}

func (ActivityEntry) TableName() string {
	return "activity_entries"
}

// Incident records an unresolved ledger/mirror divergence: the mirror sync
// failed after commit and the reversing transaction failed too. Rows are
// closed by operators, never by this service.
type Incident struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Code            string    `gorm:"column:code;uniqueIndex;not null"`
	PrincipalID     string    `gorm:"column:principal_id;index;not null"`
	OriginalEntryID string    `gorm:"column:original_entry_id;not null"`
	RequestedDelta  int64     `gorm:"column:requested_delta;not null"`
	EffectiveDelta  int64     `gorm:"column:effective_delta;not null"`
	Reason          string    `gorm:"column:reason;type:varchar(64);not null"`
	SyncError       string    `gorm:"column:sync_error;type:text"`
	CompensateError string    `gorm:"column:compensate_error;type:text"`
	Status          string    `gorm:"column:status;type:varchar(20);default:'open'"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (Incident) TableName() string {
	return "reconciliation_incidents"
}
