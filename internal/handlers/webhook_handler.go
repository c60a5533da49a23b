package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/services"
)

// SignatureHeader carries the gateway's HMAC over the raw webhook body.
const SignatureHeader = "X-Callback-Signature"

type WebhookHandler struct {
	settlement *services.SettlementService
}

func NewWebhookHandler(settlement *services.SettlementService) *WebhookHandler {
	return &WebhookHandler{settlement: settlement}
}

// HandlePaymentWebhook receives the gateway's async notification. The
// response codes matter to the gateway's redelivery logic: signature
// failures are rejected outright, while an unknown intent ref answers 200
// so the gateway stops retrying something we will never recognize.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to read webhook payload.")
		return
	}

	result, err := h.settlement.HandleWebhook(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			log.Printf("webhook: rejected notification with invalid signature")
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid signature.")
		case errors.Is(err, services.ErrUnknownIntent):
			log.Printf("webhook: notification for unknown intent ref")
			c.JSON(http.StatusOK, gin.H{"received": true})
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process notification.")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"settled":  result.Settled,
	})
}
