package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adiswara/karcis/internal/cart"
	"github.com/adiswara/karcis/internal/clock"
	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrEmptyCart        = errors.New("checkout: cart has no line items")
	ErrInvalidPromoCode = errors.New("checkout: promo code is unknown or not currently valid")
	ErrPromoNotClaimed  = errors.New("checkout: promo code has not been claimed by this user")
	ErrTierUnavailable  = errors.New("checkout: requested quantity exceeds remaining availability")
)

// CheckoutService turns a cart plus discounts into a PurchaseIntent with a
// live gateway session. Amounts are computed once here; the gateway only
// ever sees the net final amount.
type CheckoutService struct {
	gateway    PaymentGateway
	intents    IntentRepository
	tiers      TierRepository
	coupons    CouponRepository
	loyalty    *LoyaltyService
	clk        clock.Clock
	serviceFee int
	currency   string
}

func NewCheckoutService(
	gateway PaymentGateway,
	intents IntentRepository,
	tiers TierRepository,
	coupons CouponRepository,
	loyaltySvc *LoyaltyService,
	clk clock.Clock,
	serviceFee int,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		gateway:    gateway,
		intents:    intents,
		tiers:      tiers,
		coupons:    coupons,
		loyalty:    loyaltySvc,
		clk:        clk,
		serviceFee: serviceFee,
		currency:   currency,
	}
}

// BeginCheckout validates the cart against the catalog, composes at most
// one promo discount and one loyalty redemption additively, creates the
// intent and requests a gateway session. A repeat call with the same cart
// and discount combination while a session is already in flight returns the
// existing intent instead of opening a second session.
func (s *CheckoutService) BeginCheckout(ctx context.Context, user *models.User, c cart.Cart, promoCode string, redeemPoints int) (*models.PurchaseIntent, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	signature := c.Signature(promoCode, redeemPoints)
	existing, err := s.intents.InFlight(ctx, user.ID, signature)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	subtotal, pricedLines, err := s.validateLines(ctx, c)
	if err != nil {
		return nil, err
	}

	var promo *models.Coupon
	promoDiscount := 0
	if promoCode != "" {
		coupon, err := s.resolvePromo(ctx, user.ID, promoCode)
		if err != nil {
			return nil, err
		}
		promo = coupon
		promoDiscount = coupon.Discount
	}

	loyaltyDiscount := 0
	if redeemPoints > 0 {
		loyaltyDiscount, err = s.loyalty.AuthorizeRedemption(ctx, user.ID, redeemPoints, subtotal)
		if err != nil {
			return nil, err
		}
	}

	final := subtotal - promoDiscount - loyaltyDiscount
	if final < 0 {
		final = 0
	}
	final += s.serviceFee

	// The snapshot frozen on the intent carries the validated catalog
	// prices, not the client's denormalized copy; settlement issues tickets
	// from it, so it must record what was actually charged.
	priced := cart.Cart{}
	for _, line := range pricedLines {
		priced = priced.AddItem(line)
	}
	snapshot, err := json.Marshal(priced)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot cart: %w", err)
	}

	intent := &models.PurchaseIntent{
		UserID:         user.ID,
		CartSnapshot:   string(snapshot),
		Signature:      signature,
		PromoDiscount:  promoDiscount,
		RedeemedPoints: redeemPoints,
		Subtotal:       subtotal,
		ServiceFee:     s.serviceFee,
		FinalAmount:    final,
		Currency:       s.currency,
		Status:         models.IntentDraft,
	}
	if promo != nil {
		intent.CouponID = &promo.ID
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	items := make([]SessionItem, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		items = append(items, SessionItem{
			Name:      line.TierName,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			TierRef:   line.TierID.String(),
		})
	}

	session, err := s.gateway.CreateSession(ctx, SessionRequest{
		IntentID:      intent.ID,
		Amount:        final,
		Currency:      s.currency,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
		Items:         items,
	})
	if err != nil {
		// The intent stays in draft; a retryable gateway failure lets the
		// caller re-attempt it, and the stale sweep abandons it otherwise.
		return nil, err
	}

	intent.GatewayRef = &session.Ref
	intent.PaymentURL = session.PaymentURL
	intent.Status = models.IntentSessionCreated
	if err := s.intents.Update(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// AbandonStale moves intents stuck before settlement past the TTL to
// abandoned. Abandoned intents are terminal; retrying means a new checkout.
func (s *CheckoutService) AbandonStale(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.intents.AbandonStale(ctx, s.clk.Now().Add(-ttl))
}

// validateLines checks availability and returns the subtotal plus the lines
// repriced and renamed from the catalog, which wins over the cart's
// denormalized snapshot.
func (s *CheckoutService) validateLines(ctx context.Context, c cart.Cart) (int, []cart.Line, error) {
	subtotal := 0
	priced := make([]cart.Line, 0, len(c.Lines))
	for _, line := range c.Lines {
		tier, err := s.tiers.ByID(ctx, line.TierID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, nil, ErrTierUnavailable
			}
			return 0, nil, err
		}
		if tier.Quota != nil {
			issued, err := s.tiers.IssuedCount(ctx, tier.ID)
			if err != nil {
				return 0, nil, err
			}
			if int64(line.Quantity) > int64(*tier.Quota)-issued {
				return 0, nil, ErrTierUnavailable
			}
		}
		line.UnitPrice = tier.Price
		line.TierName = tier.Name
		subtotal += tier.Price * line.Quantity
		priced = append(priced, line)
	}
	return subtotal, priced, nil
}

func (s *CheckoutService) resolvePromo(ctx context.Context, userID uuid.UUID, code string) (*models.Coupon, error) {
	coupon, err := s.coupons.ByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidPromoCode
		}
		return nil, err
	}
	now := s.clk.Now()
	if now.Before(coupon.ValidAt) || now.After(coupon.ExpiredAt) {
		return nil, ErrInvalidPromoCode
	}
	used, err := s.coupons.UsageCount(ctx, coupon.ID)
	if err != nil {
		return nil, err
	}
	if used >= int64(coupon.Limit) {
		return nil, ErrInvalidPromoCode
	}
	// Redemption rides on the claim row: settlement flips is_used on it,
	// which is what advances the usage count toward the limit.
	claim, err := s.coupons.Claim(ctx, userID, coupon.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromoNotClaimed
		}
		return nil, err
	}
	if claim.IsUsed {
		return nil, ErrInvalidPromoCode
	}
	return coupon, nil
}
