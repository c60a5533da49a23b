package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LoyaltyEarn   = "earn"
	LoyaltyRedeem = "redeem"
)

// LoyaltyEntry is one ledger line. Points are positive for earns and
// negative for redemptions; a user's balance is the sum of their entries.
// Only settlement writes to this ledger.
type LoyaltyEntry struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Points    int        `gorm:"not null"`
	Kind      string     `gorm:"not null"`
	IntentID  *uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (entry *LoyaltyEntry) BeforeCreate(tx *gorm.DB) (err error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return
}
