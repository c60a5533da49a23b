package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IntentStatus string

const (
	IntentDraft          IntentStatus = "draft"
	IntentSessionCreated IntentStatus = "session_created"
	IntentSucceeded      IntentStatus = "succeeded"
	IntentFailed         IntentStatus = "failed"
	IntentAbandoned      IntentStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	return s == IntentSucceeded || s == IntentFailed || s == IntentAbandoned
}

// PurchaseIntent is one checkout attempt. Amounts are frozen once a gateway
// session exists; a different cart or discount combination requires a new
// intent. GatewayRef is the gateway's opaque session id and doubles as the
// idempotency key for settlement. It stays NULL until a session exists so
// draft intents never collide under the unique index.
type PurchaseIntent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index"`
	User           *User          `gorm:"foreignKey:UserID"`
	CartSnapshot   string         `gorm:"type:jsonb;not null"`
	Signature      string         `gorm:"not null;index"`
	CouponID       *uuid.UUID     `gorm:"type:uuid"`
	Coupon         *Coupon        `gorm:"foreignKey:CouponID"`
	PromoDiscount  int            `gorm:"not null;default:0"`
	RedeemedPoints int            `gorm:"not null;default:0"`
	Subtotal       int            `gorm:"not null"`
	ServiceFee     int            `gorm:"not null"`
	FinalAmount    int            `gorm:"not null"`
	Currency       string         `gorm:"not null"`
	GatewayRef     *string        `gorm:"uniqueIndex"`
	PaymentURL     string
	Status         IntentStatus `gorm:"not null;default:'draft';index"`
	SettledAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (intent *PurchaseIntent) BeforeCreate(tx *gorm.DB) (err error) {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	return
}
