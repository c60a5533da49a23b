package repositories

import (
	"context"

	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) ByID(ctx context.Context, id uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	if err := r.db.WithContext(ctx).First(&tier, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

// IssuedCount counts sold tickets against a tier's quota.
func (r *TierRepository) IssuedCount(ctx context.Context, tierID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IssuedTicket{}).
		Where("tier_id = ?", tierID).Count(&count).Error
	return count, err
}

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) ByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *CouponRepository) UsageCount(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserCoupon{}).
		Where("coupon_id = ? AND is_used = true", couponID).Count(&count).Error
	return count, err
}

// Claim returns the user's claim row for a coupon, used or not.
func (r *CouponRepository) Claim(ctx context.Context, userID, couponID uuid.UUID) (*models.UserCoupon, error) {
	var claim models.UserCoupon
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}
