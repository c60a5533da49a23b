package repositories

import (
	"context"

	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoyaltyRepository struct {
	db *gorm.DB
}

func NewLoyaltyRepository(db *gorm.DB) *LoyaltyRepository {
	return &LoyaltyRepository{db: db}
}

// Balance sums the user's ledger. Entries carry signed point values, so the
// sum is the live balance.
func (r *LoyaltyRepository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := r.db.WithContext(ctx).Model(&models.LoyaltyEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *LoyaltyRepository) Entries(ctx context.Context, userID uuid.UUID) ([]*models.LoyaltyEntry, error) {
	var entries []*models.LoyaltyEntry
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&entries).Error
	return entries, err
}
