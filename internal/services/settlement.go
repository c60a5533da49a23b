package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adiswara/karcis/internal/cart"
	"github.com/adiswara/karcis/internal/clock"
	"github.com/adiswara/karcis/internal/loyalty"
	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidSignature = errors.New("settlement: webhook signature verification failed")
	ErrUnknownIntent    = errors.New("settlement: no intent for gateway reference")
)

// Webhook event types the gateway emits for invoice outcomes.
const (
	EventInvoicePaid    = "invoice.paid"
	EventInvoiceExpired = "invoice.expired"
	EventInvoiceFailed  = "invoice.failed"
)

// SettlementResult reports what a confirmation signal did.
type SettlementResult struct {
	Intent *models.PurchaseIntent
	// Settled is true when this signal performed the transition. A replay
	// or the losing side of the confirmation race sees false with a
	// terminal intent, which is a no-op, not an error.
	Settled bool
}

// SettlementService is the payment confirmation state machine. Two signal
// sources feed it with no ordering guarantee: the buyer's client posting
// the gateway's synchronous result, and the gateway's signed webhook. Both
// funnel into a guarded transition keyed by the gateway ref, so ticket
// issuance fires exactly once per intent no matter which signal lands
// first or how often either is repeated.
type SettlementService struct {
	gateway PaymentGateway
	intents IntentRepository
	carts   *cart.Store
	clk     clock.Clock
}

func NewSettlementService(gateway PaymentGateway, intents IntentRepository, carts *cart.Store, clk clock.Clock) *SettlementService {
	return &SettlementService{
		gateway: gateway,
		intents: intents,
		carts:   carts,
		clk:     clk,
	}
}

// ConfirmClient handles the client-path signal: the buyer's browser came
// back from the gateway, so we re-check the session's status with the
// gateway rather than trusting the redirect. A pending status changes
// nothing; the intent stays unresolved until the webhook or the stale
// sweep decides it.
func (s *SettlementService) ConfirmClient(ctx context.Context, gatewayRef string) (*SettlementResult, error) {
	result, err := s.gateway.Confirm(ctx, gatewayRef)
	if err != nil {
		return nil, err
	}
	switch result.Status {
	case PaymentSucceeded:
		return s.settleSuccess(ctx, gatewayRef)
	case PaymentFailed:
		return s.settleFailure(ctx, gatewayRef)
	default:
		intent, err := s.intents.ByGatewayRef(ctx, gatewayRef)
		if err != nil {
			return nil, s.mapLookupErr(err)
		}
		return &SettlementResult{Intent: intent, Settled: false}, nil
	}
}

// HandleWebhook handles the async signal. The signature is verified before
// anything else; a bad signature changes no state. Unknown event types are
// logged and ignored so new gateway events never break the endpoint.
func (s *SettlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*SettlementResult, error) {
	if !s.gateway.VerifyWebhook(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("settlement: malformed webhook payload: %w", err)
	}

	switch event.EventType {
	case EventInvoicePaid:
		return s.settleSuccess(ctx, event.IntentRef)
	case EventInvoiceExpired, EventInvoiceFailed:
		return s.settleFailure(ctx, event.IntentRef)
	default:
		log.Printf("settlement: ignoring webhook event type %q for %s", event.EventType, event.IntentRef)
		return &SettlementResult{Settled: false}, nil
	}
}

func (s *SettlementService) settleSuccess(ctx context.Context, gatewayRef string) (*SettlementResult, error) {
	intent, err := s.intents.ByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, s.mapLookupErr(err)
	}
	if intent.Status.Terminal() {
		return &SettlementResult{Intent: intent, Settled: false}, nil
	}

	effects, err := s.buildEffects(intent)
	if err != nil {
		return nil, err
	}

	won, err := s.intents.CompleteSettlement(ctx, gatewayRef, effects)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race to the other signal path; fetch the terminal state.
		intent, err = s.intents.ByGatewayRef(ctx, gatewayRef)
		if err != nil {
			return nil, s.mapLookupErr(err)
		}
		return &SettlementResult{Intent: intent, Settled: false}, nil
	}

	// Successful purchase: the cart that produced it is done.
	if err := s.carts.Clear(intent.UserID); err != nil {
		log.Printf("settlement: failed to clear cart for %s: %v", intent.UserID, err)
	}

	intent, err = s.intents.ByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, s.mapLookupErr(err)
	}
	return &SettlementResult{Intent: intent, Settled: true}, nil
}

func (s *SettlementService) settleFailure(ctx context.Context, gatewayRef string) (*SettlementResult, error) {
	won, err := s.intents.MarkFailed(ctx, gatewayRef)
	if err != nil {
		return nil, s.mapLookupErr(err)
	}
	intent, err := s.intents.ByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, s.mapLookupErr(err)
	}
	return &SettlementResult{Intent: intent, Settled: won}, nil
}

// buildEffects expands the frozen cart snapshot into the rows that must
// land with the transition: one ticket per unit of quantity, the loyalty
// earn for the final amount, and the redemption debit if any.
func (s *SettlementService) buildEffects(intent *models.PurchaseIntent) (SettlementEffects, error) {
	var snapshot cart.Cart
	if err := json.Unmarshal([]byte(intent.CartSnapshot), &snapshot); err != nil {
		return SettlementEffects{}, fmt.Errorf("settlement: corrupt cart snapshot on intent %s: %w", intent.ID, err)
	}

	now := s.clk.Now()
	var tickets []*models.IssuedTicket
	seq := 0
	for _, line := range snapshot.Lines {
		for i := 0; i < line.Quantity; i++ {
			seq++
			tickets = append(tickets, &models.IssuedTicket{
				ID:        uuid.New(),
				Code:      ticketCode(now, intent.ID, seq),
				IntentID:  intent.ID,
				EventID:   line.EventID,
				TierID:    line.TierID,
				UserID:    intent.UserID,
				UnitPrice: line.UnitPrice,
			})
		}
	}

	var entries []*models.LoyaltyEntry
	if earned := loyalty.CalculateEarnedPoints(intent.FinalAmount); earned > 0 {
		entries = append(entries, &models.LoyaltyEntry{
			UserID:   intent.UserID,
			Points:   earned,
			Kind:     models.LoyaltyEarn,
			IntentID: &intent.ID,
		})
	}
	if intent.RedeemedPoints > 0 {
		entries = append(entries, &models.LoyaltyEntry{
			UserID:   intent.UserID,
			Points:   -intent.RedeemedPoints,
			Kind:     models.LoyaltyRedeem,
			IntentID: &intent.ID,
		})
	}

	return SettlementEffects{
		Tickets:       tickets,
		LedgerEntries: entries,
		CouponID:      intent.CouponID,
		UserID:        intent.UserID,
	}, nil
}

func (s *SettlementService) mapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnknownIntent
	}
	return err
}

func ticketCode(t time.Time, intentID uuid.UUID, seq int) string {
	return fmt.Sprintf("TKT-%d-%s-%03d", t.Unix(), shortRef(intentID), seq)
}

func shortRef(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}
