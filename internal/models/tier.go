package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketTier is one sellable ticket class of an event. Price is in minor
// currency units. A nil Quota means unlimited.
type TicketTier struct {
	gorm.Model
	ID      uuid.UUID `gorm:"type:uuid;primary_key"`
	Name    string    `gorm:"not null"`
	Price   int       `gorm:"not null"`
	Quota   *int
	EventID uuid.UUID `gorm:"type:uuid;not null;index"`
	Event   Event
}

func (tier *TicketTier) BeforeCreate(tx *gorm.DB) (err error) {
	if tier.ID == uuid.Nil {
		tier.ID = uuid.New()
	}
	return
}
