package claimstatedb

import (
	"time"

	"gorm.io/gorm"
)

// ClaimBalance is the persisted claim state of one session
type ClaimBalance struct {
	gorm.Model
	Session        string `gorm:"uniqueIndex"`
	Owner          string `gorm:"index"`
	ClaimableUnits int64
	ClaimedUnits   int64
}

// DailyActivity is one day of the session's activity histogram
type DailyActivity struct {
	gorm.Model
	Session string `gorm:"uniqueIndex:idx_session_date"`
	Date    string `gorm:"uniqueIndex:idx_session_date"` // YYYY-MM-DD, UTC
	Count   int64
}

// ClaimAttempt records one run of the claim flow and how it ended
type ClaimAttempt struct {
	ID             string `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Session        string `gorm:"index"`
	Owner          string `gorm:"index"`
	Destination    string
	Units          int64
	BaseUnits      uint64
	CreatedAccount bool
	Signature      string `gorm:"index"`
	State          string `gorm:"index"` // BUILT, AUTHORITY_SIGNED, SUBMITTED, CONFIRMED, FAILED
	Kind           string // failure kind, empty on success
	Message        string
	Credited       bool `gorm:"index"`
}
