package repositories

import (
	"context"

	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) ByID(ctx context.Context, id uuid.UUID) (*models.IssuedTicket, error) {
	var ticket models.IssuedTicket
	if err := r.db.WithContext(ctx).First(&ticket, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *TicketRepository) ByIntent(ctx context.Context, intentID uuid.UUID) ([]*models.IssuedTicket, error) {
	var tickets []*models.IssuedTicket
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).Order("code").Find(&tickets).Error
	return tickets, err
}

func (r *TicketRepository) ByUser(ctx context.Context, userID uuid.UUID) ([]*models.IssuedTicket, error) {
	var tickets []*models.IssuedTicket
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&tickets).Error
	return tickets, err
}

func (r *TicketRepository) SetCredential(ctx context.Context, ticketID uuid.UUID, credentialID string) error {
	return r.db.WithContext(ctx).Model(&models.IssuedTicket{}).
		Where("id = ? AND credential_id IS NULL", ticketID).
		Update("credential_id", credentialID).Error
}

// MarkUsed flips the single-use flag; the guard makes a second scan a
// detectable no-op.
func (r *TicketRepository) MarkUsed(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.IssuedTicket{}).
		Where("id = ? AND is_used = false", ticketID).
		Update("is_used", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
