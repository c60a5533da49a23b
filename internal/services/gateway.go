package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// SessionItem is one display line forwarded onto the gateway invoice. The
// gateway never recomputes from these; Amount stays authoritative.
type SessionItem struct {
	Name      string
	UnitPrice int
	Quantity  int
	TierRef   string
}

// SessionRequest carries the net final amount and only that amount; line
// items travel as opaque display data the gateway echoes back untouched.
type SessionRequest struct {
	IntentID      uuid.UUID
	Amount        int
	Currency      string
	CustomerName  string
	CustomerEmail string
	Items         []SessionItem
}

type Session struct {
	Ref        string
	PaymentURL string
}

type ConfirmResult struct {
	Status PaymentStatus
}

// WebhookEvent is the gateway's asynchronous signed notification.
type WebhookEvent struct {
	EventType string            `json:"event_type"`
	IntentRef string            `json:"intent_ref"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PaymentGateway is the collaborator contract for the payment provider.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	Confirm(ctx context.Context, ref string) (*ConfirmResult, error)
	VerifyWebhook(payload []byte, signature string) bool
}

// GatewayError distinguishes retryable failures (network, timeout, provider
// 5xx) from terminal ones (declined payment). Retryable errors allow the
// same intent to be re-attempted; terminal errors require a fresh intent.
type GatewayError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("gateway %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func retryableGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Retryable: true, Err: err}
}

func terminalGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Retryable: false, Err: err}
}
