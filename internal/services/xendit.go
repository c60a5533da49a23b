package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/adiswara/karcis/internal/helpers"
	xendit "github.com/xendit/xendit-go/v6"
	"github.com/xendit/xendit-go/v6/invoice"
)

// XenditGateway implements PaymentGateway on top of Xendit invoices. One
// invoice is one payment session; its id is the gateway ref used as the
// settlement idempotency key.
type XenditGateway struct {
	client        *xendit.APIClient
	webhookSecret string
	successURL    string
	failureURL    string
}

func NewXenditGateway(client *xendit.APIClient, webhookSecret, successURL, failureURL string) *XenditGateway {
	return &XenditGateway{
		client:        client,
		webhookSecret: webhookSecret,
		successURL:    successURL,
		failureURL:    failureURL,
	}
}

func (g *XenditGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	body := *invoice.NewCreateInvoiceRequest(req.IntentID.String(), float64(req.Amount))
	body.SetCurrency(req.Currency)
	body.SetDescription(fmt.Sprintf("Ticket purchase %s", req.IntentID))
	body.SetPayerEmail(req.CustomerEmail)
	if g.successURL != "" {
		body.SetSuccessRedirectUrl(g.successURL)
	}
	if g.failureURL != "" {
		body.SetFailureRedirectUrl(g.failureURL)
	}
	if len(req.Items) > 0 {
		items := make([]invoice.InvoiceItem, 0, len(req.Items))
		for _, it := range req.Items {
			item := invoice.NewInvoiceItem(it.Name, float32(it.UnitPrice), float32(it.Quantity))
			item.SetReferenceId(it.TierRef)
			items = append(items, *item)
		}
		body.SetItems(items)
	}

	inv, resp, errx := g.client.InvoiceApi.CreateInvoice(ctx).CreateInvoiceRequest(body).Execute()
	if errx != nil {
		if resp == nil || resp.StatusCode >= 500 {
			return nil, retryableGatewayError("create session", errx)
		}
		return nil, terminalGatewayError("create session", errx)
	}
	if inv.Id == nil {
		return nil, terminalGatewayError("create session", errors.New("invoice response missing id"))
	}

	return &Session{
		Ref:        inv.GetId(),
		PaymentURL: inv.GetInvoiceUrl(),
	}, nil
}

func (g *XenditGateway) Confirm(ctx context.Context, ref string) (*ConfirmResult, error) {
	inv, resp, errx := g.client.InvoiceApi.GetInvoiceById(ctx, ref).Execute()
	if errx != nil {
		if resp == nil || resp.StatusCode >= 500 {
			return nil, retryableGatewayError("confirm", errx)
		}
		return nil, terminalGatewayError("confirm", errx)
	}

	var status PaymentStatus
	switch string(inv.GetStatus()) {
	case "PAID", "SETTLED":
		status = PaymentSucceeded
	case "EXPIRED":
		status = PaymentFailed
	default:
		status = PaymentPending
	}
	return &ConfirmResult{Status: status}, nil
}

func (g *XenditGateway) VerifyWebhook(payload []byte, signature string) bool {
	return helpers.VerifyWebhookSignature(payload, signature, g.webhookSecret)
}
