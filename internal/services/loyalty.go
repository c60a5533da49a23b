package services

import (
	"context"

	"github.com/adiswara/karcis/internal/loyalty"
	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
)

// LoyaltyService exposes the server-authoritative view of the loyalty
// ledger. Clients cache balances but every redemption is re-validated here
// against live data.
type LoyaltyService struct {
	entries LoyaltyRepository
}

func NewLoyaltyService(entries LoyaltyRepository) *LoyaltyService {
	return &LoyaltyService{entries: entries}
}

func (s *LoyaltyService) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.entries.Balance(ctx, userID)
}

func (s *LoyaltyService) History(ctx context.Context, userID uuid.UUID) ([]*models.LoyaltyEntry, error) {
	return s.entries.Entries(ctx, userID)
}

// RedemptionPreview reports what a balance supports for a given purchase.
type RedemptionPreview struct {
	Balance       int `json:"balance"`
	MaxRedeemable int `json:"max_redeemable"`
	DiscountValue int `json:"discount_value"`
}

// Preview computes the redemption offer for a purchase amount. A zero
// balance short-circuits to no offer.
func (s *LoyaltyService) Preview(ctx context.Context, userID uuid.UUID, purchaseAmount int) (*RedemptionPreview, error) {
	balance, err := s.entries.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance == 0 {
		return &RedemptionPreview{Balance: 0}, nil
	}
	maxPoints := loyalty.MaxRedeemablePoints(purchaseAmount, balance)
	return &RedemptionPreview{
		Balance:       balance,
		MaxRedeemable: maxPoints,
		DiscountValue: loyalty.Discount(maxPoints),
	}, nil
}

// AuthorizeRedemption validates a proposed redemption against the live
// ledger and returns the discount value. A balance that no longer covers
// the request means the client previewed against stale data, reported as
// ErrStaleBalance; the purchase-cap check keeps its own error so the caller
// can tell an oversized request from a changed balance.
func (s *LoyaltyService) AuthorizeRedemption(ctx context.Context, userID uuid.UUID, points, purchaseAmount int) (int, error) {
	balance, err := s.entries.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := loyalty.ValidateRedemption(points, balance, purchaseAmount); err != nil {
		if err == loyalty.ErrInsufficientBalance {
			return 0, loyalty.ErrStaleBalance
		}
		return 0, err
	}
	return loyalty.Discount(points), nil
}
