// Package loyalty holds the point arithmetic for the rewards program. All
// functions are pure; balance lookups and ledger writes live in the services
// layer.
package loyalty

import "errors"

const (
	// EarnRate is the fraction of a settled purchase credited back as points.
	EarnRate = 0.10
	// MaxRedeemFraction caps how much of a purchase points may cover.
	MaxRedeemFraction = 0.5
	// PointValue is the discount, in minor currency units, of one point.
	PointValue = 1
)

var (
	ErrInsufficientBalance     = errors.New("loyalty: insufficient point balance")
	ErrRedemptionLimitExceeded = errors.New("loyalty: redemption exceeds purchase limit")
	ErrInvalidAmount           = errors.New("loyalty: points requested must be positive")
	ErrStaleBalance            = errors.New("loyalty: balance changed, redemption no longer valid")
)

// CalculateEarnedPoints returns the points earned on a settled purchase:
// a fixed percentage floored to whole points.
func CalculateEarnedPoints(purchaseAmount int) int {
	if purchaseAmount <= 0 {
		return 0
	}
	return int(float64(purchaseAmount) * EarnRate)
}

// MaxRedeemablePoints returns the largest redemption the purchase admits:
// min(balance, floor(amount × MaxRedeemFraction)). Always floored so a
// discount can never exceed the entitlement.
func MaxRedeemablePoints(purchaseAmount, availableBalance int) int {
	if purchaseAmount <= 0 || availableBalance <= 0 {
		return 0
	}
	limit := int(float64(purchaseAmount) * MaxRedeemFraction)
	if availableBalance < limit {
		return availableBalance
	}
	return limit
}

// ValidateRedemption checks a proposed redemption against the balance and
// the purchase cap. Domain violations come back as sentinel errors, never
// panics. A zero balance short-circuits before any limit math.
func ValidateRedemption(pointsRequested, availableBalance, purchaseAmount int) error {
	if availableBalance == 0 {
		return ErrInsufficientBalance
	}
	if pointsRequested <= 0 {
		return ErrInvalidAmount
	}
	if pointsRequested > availableBalance {
		return ErrInsufficientBalance
	}
	if pointsRequested > int(float64(purchaseAmount)*MaxRedeemFraction) {
		return ErrRedemptionLimitExceeded
	}
	return nil
}

// Discount converts points to a currency discount at the fixed exchange
// rate of one point per minor unit.
func Discount(points int) int {
	if points <= 0 {
		return 0
	}
	return points * PointValue
}
