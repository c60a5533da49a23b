package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/adiswara/karcis/internal/cart"
	"github.com/adiswara/karcis/internal/clock"
	"github.com/adiswara/karcis/internal/loyalty"
	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	svc     *CheckoutService
	gateway *stubGateway
	intents *memIntentRepo
	tiers   *memTierRepo
	coupons *memCouponRepo
	ledger  *memLoyaltyRepo
	user    *models.User
	now     time.Time
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := &checkoutFixture{
		gateway: newStubGateway(),
		intents: newMemIntentRepo(),
		tiers:   newMemTierRepo(),
		coupons: newMemCouponRepo(),
		ledger:  newMemLoyaltyRepo(),
		user: &models.User{
			ID:    uuid.New(),
			Name:  "Budi Santoso",
			Email: "budi@example.com",
		},
		now: now,
	}
	f.intents.coupons = f.coupons
	f.svc = NewCheckoutService(
		f.gateway,
		f.intents,
		f.tiers,
		f.coupons,
		NewLoyaltyService(f.ledger),
		clock.NewFixed(now),
		100,
		"IDR",
	)
	return f
}

// addTier registers a catalog tier and returns a cart line priced off it.
func (f *checkoutFixture) addTier(price, qty int, quota *int) cart.Line {
	tier := &models.TicketTier{
		ID:      uuid.New(),
		Name:    "Regular",
		Price:   price,
		Quota:   quota,
		EventID: uuid.New(),
	}
	f.tiers.add(tier)
	return cart.Line{
		EventID:   tier.EventID,
		TierID:    tier.ID,
		TierName:  tier.Name,
		UnitPrice: price,
		Quantity:  qty,
	}
}

// addCoupon registers a coupon and claims it for the fixture user, the
// normal path before redemption.
func (f *checkoutFixture) addCoupon(code string, discount, limit int) *models.Coupon {
	coupon := f.addUnclaimedCoupon(code, discount, limit)
	f.coupons.claim(f.user.ID, coupon)
	return coupon
}

func (f *checkoutFixture) addUnclaimedCoupon(code string, discount, limit int) *models.Coupon {
	coupon := &models.Coupon{
		ID:        uuid.New(),
		Name:      code,
		Code:      code,
		Discount:  discount,
		Limit:     limit,
		ValidAt:   f.now.Add(-time.Hour),
		ExpiredAt: f.now.Add(time.Hour),
	}
	f.coupons.add(coupon)
	return coupon
}

func TestBeginCheckoutComposesDiscountsAndFee(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(2500, 2, nil))
	f.addCoupon("LAUNCH", 500, 10)
	f.ledger.add(f.user.ID, 800, models.LoyaltyEarn)

	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "LAUNCH", 300)
	require.NoError(t, err)

	assert.Equal(t, 5000, intent.Subtotal)
	assert.Equal(t, 500, intent.PromoDiscount)
	assert.Equal(t, 300, intent.RedeemedPoints)
	assert.Equal(t, 100, intent.ServiceFee)
	assert.Equal(t, 4300, intent.FinalAmount)
	assert.Equal(t, "IDR", intent.Currency)
	assert.Equal(t, models.IntentSessionCreated, intent.Status)
	require.NotNil(t, intent.GatewayRef)
	assert.NotEmpty(t, *intent.GatewayRef)
	assert.NotEmpty(t, intent.PaymentURL)
	require.NotNil(t, intent.CouponID)

	// The gateway sees the net amount plus display line items, nothing more.
	require.NotNil(t, f.gateway.lastRequest)
	assert.Equal(t, 4300, f.gateway.lastRequest.Amount)
	require.Len(t, f.gateway.lastRequest.Items, 1)
	assert.Equal(t, 2500, f.gateway.lastRequest.Items[0].UnitPrice)
	assert.Equal(t, 2, f.gateway.lastRequest.Items[0].Quantity)
	assert.Equal(t, c.Lines[0].TierID.String(), f.gateway.lastRequest.Items[0].TierRef)
}

func TestBeginCheckoutEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.BeginCheckout(context.Background(), f.user, cart.Cart{}, "", 0)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, f.gateway.sessionCalls)
}

func TestBeginCheckoutRepeatReusesInFlightSession(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(2000, 1, nil))

	first, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)

	second, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, first.GatewayRef)
	require.NotNil(t, second.GatewayRef)
	assert.Equal(t, *first.GatewayRef, *second.GatewayRef)
	assert.Equal(t, 1, f.gateway.sessionCalls)
}

func TestBeginCheckoutDifferentDiscountsOpenNewSession(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(2000, 1, nil))
	f.addCoupon("LAUNCH", 500, 10)

	first, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)

	second, err := f.svc.BeginCheckout(context.Background(), f.user, c, "LAUNCH", 0)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, f.gateway.sessionCalls)
}

func TestBeginCheckoutCatalogPriceWins(t *testing.T) {
	f := newCheckoutFixture(t)
	line := f.addTier(3000, 1, nil)
	line.UnitPrice = 1 // stale client-side snapshot
	c := cart.Cart{}.AddItem(line)

	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3000, intent.Subtotal)

	// The frozen snapshot must carry the price that was charged, since
	// settlement issues tickets from it.
	var frozen cart.Cart
	require.NoError(t, json.Unmarshal([]byte(intent.CartSnapshot), &frozen))
	require.Len(t, frozen.Lines, 1)
	assert.Equal(t, 3000, frozen.Lines[0].UnitPrice)
	assert.Equal(t, 3000, frozen.Total)
}

// A settled intent issues tickets at the validated catalog price even when
// the buyer checked out from a stale cart.
func TestStaleCartPriceNeverReachesIssuedTickets(t *testing.T) {
	f := newCheckoutFixture(t)
	line := f.addTier(3000, 1, nil)
	line.UnitPrice = 1
	c := cart.Cart{}.AddItem(line)

	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)
	require.NotNil(t, intent.GatewayRef)

	carts, err := cart.NewStore(t.TempDir())
	require.NoError(t, err)
	settlement := NewSettlementService(f.gateway, f.intents, carts, clock.NewFixed(f.now))
	f.gateway.statuses[*intent.GatewayRef] = PaymentSucceeded

	result, err := settlement.ConfirmClient(context.Background(), *intent.GatewayRef)
	require.NoError(t, err)
	require.True(t, result.Settled)

	require.Len(t, f.intents.issuedTickets, 1)
	assert.Equal(t, 3000, f.intents.issuedTickets[0].UnitPrice)
}

func TestBeginCheckoutUnknownTier(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(cart.Line{
		EventID:   uuid.New(),
		TierID:    uuid.New(),
		UnitPrice: 1000,
		Quantity:  1,
	})

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	assert.ErrorIs(t, err, ErrTierUnavailable)
}

func TestBeginCheckoutQuotaExhausted(t *testing.T) {
	f := newCheckoutFixture(t)
	quota := 10
	line := f.addTier(1000, 3, &quota)
	f.tiers.issued[line.TierID] = 8

	_, err := f.svc.BeginCheckout(context.Background(), f.user, cart.Cart{}.AddItem(line), "", 0)
	assert.ErrorIs(t, err, ErrTierUnavailable)
	assert.Equal(t, 0, f.gateway.sessionCalls)
}

// Draft intents carry no gateway ref, so a lingering draft from a failed
// session must never block later checkouts on the unique index.
func TestBeginCheckoutRetriesAfterGatewayFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))

	f.gateway.createErr = retryableGatewayError("create-session", errors.New("upstream 503"))
	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.Error(t, err)

	f.gateway.createErr = nil
	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)
	assert.Equal(t, models.IntentSessionCreated, intent.Status)
	require.NotNil(t, intent.GatewayRef)

	// Another user's checkout is unaffected by the lingering draft.
	other := &models.User{ID: uuid.New(), Name: "Sari", Email: "sari@example.com"}
	otherIntent, err := f.svc.BeginCheckout(context.Background(), other, c, "", 0)
	require.NoError(t, err)
	assert.NotEqual(t, intent.ID, otherIntent.ID)
}

func TestBeginCheckoutUnknownPromo(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "NOSUCH", 0)
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestBeginCheckoutExpiredPromo(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	coupon := f.addCoupon("OLD", 500, 10)
	coupon.ExpiredAt = f.now.Add(-time.Minute)

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "OLD", 0)
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestBeginCheckoutPromoUsageLimitReached(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	coupon := f.addCoupon("CAPPED", 500, 2)
	f.coupons.usage[coupon.ID] = 2

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "CAPPED", 0)
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestBeginCheckoutUnclaimedPromoRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	f.addUnclaimedCoupon("LAUNCH", 500, 10)

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "LAUNCH", 0)
	assert.ErrorIs(t, err, ErrPromoNotClaimed)
	assert.Equal(t, 0, f.gateway.sessionCalls)
}

func TestBeginCheckoutUsedClaimRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	coupon := f.addCoupon("ONCE", 500, 10)
	f.coupons.markUsed(f.user.ID, coupon.ID)

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "ONCE", 0)
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

// Settling a purchase consumes the claim and advances the usage count, so a
// coupon at its limit rejects the next claimant.
func TestPromoLimitEnforcedThroughSettlement(t *testing.T) {
	f := newCheckoutFixture(t)
	line := f.addTier(1000, 1, nil)
	coupon := f.addCoupon("SCARCE", 500, 1)
	c := cart.Cart{}.AddItem(line)

	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "SCARCE", 0)
	require.NoError(t, err)
	require.NotNil(t, intent.GatewayRef)

	carts, err := cart.NewStore(t.TempDir())
	require.NoError(t, err)
	settlement := NewSettlementService(f.gateway, f.intents, carts, clock.NewFixed(f.now))
	f.gateway.statuses[*intent.GatewayRef] = PaymentSucceeded

	result, err := settlement.ConfirmClient(context.Background(), *intent.GatewayRef)
	require.NoError(t, err)
	require.True(t, result.Settled)

	other := &models.User{ID: uuid.New(), Name: "Sari", Email: "sari@example.com"}
	f.coupons.claim(other.ID, coupon)
	_, err = f.svc.BeginCheckout(context.Background(), other, c, "SCARCE", 0)
	assert.ErrorIs(t, err, ErrInvalidPromoCode)
}

func TestBeginCheckoutInFlightLookupFailurePropagates(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	dbErr := errors.New("connection reset")
	f.intents.inFlightErr = dbErr

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, 0, f.gateway.sessionCalls)
}

func TestBeginCheckoutOverRedemption(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	f.ledger.add(f.user.ID, 1000, models.LoyaltyEarn)

	// Balance covers it, but 600 exceeds half of the 1000 purchase.
	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 600)
	assert.ErrorIs(t, err, loyalty.ErrRedemptionLimitExceeded)
	assert.Equal(t, 0, f.gateway.sessionCalls)
}

func TestBeginCheckoutStaleBalance(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	f.ledger.add(f.user.ID, 100, models.LoyaltyEarn)

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 200)
	assert.ErrorIs(t, err, loyalty.ErrStaleBalance)
}

func TestBeginCheckoutDiscountsNeverGoNegative(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(300, 1, nil))
	f.addCoupon("BIG", 10000, 10)

	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "BIG", 0)
	require.NoError(t, err)
	// Clamped to zero before the fee, never negative.
	assert.Equal(t, 100, intent.FinalAmount)
}

func TestBeginCheckoutGatewayFailureLeavesDraft(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))
	f.gateway.createErr = retryableGatewayError("create-session", errors.New("upstream 503"))

	_, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Retryable)

	// The intent exists but never reached session_created, so a retry does
	// not collide with the in-flight check.
	for _, intent := range f.intents.intents {
		assert.Equal(t, models.IntentDraft, intent.Status)
	}
}

func TestAbandonStale(t *testing.T) {
	f := newCheckoutFixture(t)
	c := cart.Cart{}.AddItem(f.addTier(1000, 1, nil))

	intent, err := f.svc.BeginCheckout(context.Background(), f.user, c, "", 0)
	require.NoError(t, err)

	stored := f.intents.intents[intent.ID]
	stored.UpdatedAt = f.now.Add(-time.Hour)

	n, err := f.svc.AbandonStale(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	after, err := f.intents.ByID(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentAbandoned, after.Status)
}
