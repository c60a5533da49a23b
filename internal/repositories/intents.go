package repositories

import (
	"context"
	"time"

	"github.com/adiswara/karcis/internal/models"
	"github.com/adiswara/karcis/internal/services"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var nonTerminalStatuses = []models.IntentStatus{models.IntentDraft, models.IntentSessionCreated}

type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) Create(ctx context.Context, intent *models.PurchaseIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *IntentRepository) Update(ctx context.Context, intent *models.PurchaseIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

func (r *IntentRepository) ByID(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	if err := r.db.WithContext(ctx).First(&intent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *IntentRepository) ByGatewayRef(ctx context.Context, ref string) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	if err := r.db.WithContext(ctx).First(&intent, "gateway_ref = ?", ref).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// InFlight finds an open session for the same cart and discount signature,
// backing checkout idempotency.
func (r *IntentRepository) InFlight(ctx context.Context, userID uuid.UUID, signature string) (*models.PurchaseIntent, error) {
	var intent models.PurchaseIntent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND signature = ? AND status = ?", userID, signature, models.IntentSessionCreated).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// CompleteSettlement flips a non-terminal intent to succeeded and persists
// all settlement effects in one transaction. The guarded UPDATE is the
// compare-and-set that makes concurrent confirmation signals safe: only the
// caller whose UPDATE touched a row performs the side effects.
func (r *IntentRepository) CompleteSettlement(ctx context.Context, gatewayRef string, effects services.SettlementEffects) (bool, error) {
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.PurchaseIntent{}).
			Where("gateway_ref = ? AND status IN ?", gatewayRef, nonTerminalStatuses).
			Updates(map[string]interface{}{
				"status":     models.IntentSucceeded,
				"settled_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true

		if len(effects.Tickets) > 0 {
			if err := tx.Create(&effects.Tickets).Error; err != nil {
				return err
			}
		}
		for _, entry := range effects.LedgerEntries {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		if effects.CouponID != nil {
			if err := tx.Model(&models.UserCoupon{}).
				Where("user_id = ? AND coupon_id = ?", effects.UserID, *effects.CouponID).
				Update("is_used", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// MarkFailed is the guarded failure transition.
func (r *IntentRepository) MarkFailed(ctx context.Context, gatewayRef string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PurchaseIntent{}).
		Where("gateway_ref = ? AND status IN ?", gatewayRef, nonTerminalStatuses).
		Update("status", models.IntentFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AbandonStale sweeps non-terminal intents not updated since the cutoff.
func (r *IntentRepository) AbandonStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.PurchaseIntent{}).
		Where("status IN ? AND updated_at < ?", nonTerminalStatuses, before).
		Update("status", models.IntentAbandoned)
	return res.RowsAffected, res.Error
}
