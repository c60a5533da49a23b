package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IssuedTicket is one paid admission, created only when its PurchaseIntent
// settles. Immutable after issuance except for IsUsed, flipped once by entry
// scanning. CredentialID points at the QR artifact in the credential store
// and is filled on first issuance.
type IssuedTicket struct {
	gorm.Model
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	Code         string          `gorm:"not null;unique"`
	IntentID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Intent       *PurchaseIntent `gorm:"foreignKey:IntentID"`
	EventID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	TierID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	UnitPrice    int             `gorm:"not null"`
	CredentialID *string
	IsUsed       bool `gorm:"not null;default:false"`
}

func (ticket *IssuedTicket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
