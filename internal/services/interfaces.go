package services

import (
	"context"
	"time"

	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
)

// SettlementEffects bundles everything that must land atomically with the
// intent's transition to succeeded: the issued tickets, the loyalty ledger
// writes, and the promo-code consumption.
type SettlementEffects struct {
	Tickets       []*models.IssuedTicket
	LedgerEntries []*models.LoyaltyEntry
	CouponID      *uuid.UUID
	UserID        uuid.UUID
}

// IntentRepository stores PurchaseIntents. CompleteSettlement and MarkFailed
// are guarded transitions: they only fire when the intent is not already
// terminal and report whether this call performed the transition, which is
// what makes the confirmation race safe.
type IntentRepository interface {
	Create(ctx context.Context, intent *models.PurchaseIntent) error
	Update(ctx context.Context, intent *models.PurchaseIntent) error
	ByID(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error)
	ByGatewayRef(ctx context.Context, ref string) (*models.PurchaseIntent, error)
	InFlight(ctx context.Context, userID uuid.UUID, signature string) (*models.PurchaseIntent, error)
	CompleteSettlement(ctx context.Context, gatewayRef string, effects SettlementEffects) (bool, error)
	MarkFailed(ctx context.Context, gatewayRef string) (bool, error)
	AbandonStale(ctx context.Context, before time.Time) (int64, error)
}

type TicketRepository interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.IssuedTicket, error)
	ByIntent(ctx context.Context, intentID uuid.UUID) ([]*models.IssuedTicket, error)
	ByUser(ctx context.Context, userID uuid.UUID) ([]*models.IssuedTicket, error)
	SetCredential(ctx context.Context, ticketID uuid.UUID, credentialID string) error
	MarkUsed(ctx context.Context, ticketID uuid.UUID) (bool, error)
}

// TierRepository supplies the authoritative price and availability
// consulted at checkout time.
type TierRepository interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.TicketTier, error)
	IssuedCount(ctx context.Context, tierID uuid.UUID) (int64, error)
}

// CouponRepository resolves promo codes and the per-user claims that gate
// their redemption.
type CouponRepository interface {
	ByCode(ctx context.Context, code string) (*models.Coupon, error)
	UsageCount(ctx context.Context, couponID uuid.UUID) (int64, error)
	Claim(ctx context.Context, userID, couponID uuid.UUID) (*models.UserCoupon, error)
}

type LoyaltyRepository interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Entries(ctx context.Context, userID uuid.UUID) ([]*models.LoyaltyEntry, error)
}

// Artifact is a transient handle to a fetched credential image. Callers own
// it and must Close it when done or when a newer retrieval supersedes it.
type Artifact struct {
	CredentialID string
	MIME         string
	Data         []byte
	closed       bool
}

// Close releases the artifact's contents. Safe to call more than once.
func (a *Artifact) Close() error {
	if a == nil || a.closed {
		return nil
	}
	a.closed = true
	a.Data = nil
	return nil
}

// CredentialStore issues and serves scanable credentials. Issue is
// idempotent: repeated calls for the same ticket return the same credential
// id and never regenerate or invalidate the artifact.
type CredentialStore interface {
	Issue(ctx context.Context, ticket *models.IssuedTicket) (string, error)
	Fetch(ctx context.Context, credentialID string) (*Artifact, error)
}
