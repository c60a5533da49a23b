package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adiswara/karcis/internal/cart"
	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/loyalty"
	"github.com/adiswara/karcis/internal/middleware"
	"github.com/adiswara/karcis/internal/models"
	"github.com/adiswara/karcis/internal/services"
)

type CheckoutHandler struct {
	checkout   *services.CheckoutService
	settlement *services.SettlementService
	carts      *cart.Store
}

func NewCheckoutHandler(checkout *services.CheckoutService, settlement *services.SettlementService, carts *cart.Store) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:   checkout,
		settlement: settlement,
		carts:      carts,
	}
}

type BeginCheckoutRequest struct {
	PromoCode    string `json:"promo_code"`
	RedeemPoints int    `json:"redeem_points"`
}

func (h *CheckoutHandler) BeginCheckout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	var req BeginCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var user models.User
	if err := gormDB.First(&user, "id = ?", userID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "User not found.")
		return
	}

	intent, err := h.checkout.BeginCheckout(c.Request.Context(), &user, h.carts.Load(userID), req.PromoCode, req.RedeemPoints)
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"intent_id":       intent.ID,
		"gateway_ref":     intent.GatewayRef,
		"payment_url":     intent.PaymentURL,
		"subtotal":        intent.Subtotal,
		"promo_discount":  intent.PromoDiscount,
		"redeemed_points": intent.RedeemedPoints,
		"service_fee":     intent.ServiceFee,
		"final_amount":    intent.FinalAmount,
		"currency":        intent.Currency,
		"status":          intent.Status,
	})
}

// ConfirmPayment is the client-path confirmation: the buyer returned from
// the gateway and asks us to reconcile. The settlement service re-verifies
// with the gateway; a pending result leaves the intent open for the webhook.
func (h *CheckoutHandler) ConfirmPayment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	intentID, err := uuid.Parse(c.Param("intentId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid intent ID.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var intent models.PurchaseIntent
	if err := gormDB.First(&intent, "id = ?", intentID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Purchase intent not found.")
		return
	}
	if intent.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to confirm this purchase.")
		return
	}
	if intent.GatewayRef == nil {
		helpers.RespondWithError(c, http.StatusConflict, "No payment session exists for this purchase yet.")
		return
	}

	result, err := h.settlement.ConfirmClient(c.Request.Context(), *intent.GatewayRef)
	if err != nil {
		var gerr *services.GatewayError
		if errors.As(err, &gerr) && gerr.Retryable {
			helpers.RespondWithError(c, http.StatusBadGateway, "Payment provider is unreachable. Please try again.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to confirm payment.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"intent_id": result.Intent.ID,
		"status":    result.Intent.Status,
		"settled":   result.Settled,
	})
}

func (h *CheckoutHandler) GetIntent(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	intentID, err := uuid.Parse(c.Param("intentId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid intent ID.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var intent models.PurchaseIntent
	if err := gormDB.First(&intent, "id = ? AND user_id = ?", intentID, userID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Purchase intent not found.")
		return
	}

	c.JSON(http.StatusOK, intent)
}

func (h *CheckoutHandler) respondCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		helpers.RespondWithError(c, http.StatusBadRequest, "Your cart is empty.")
	case errors.Is(err, services.ErrInvalidPromoCode):
		helpers.RespondWithError(c, http.StatusBadRequest, "Promo code is invalid or expired.")
	case errors.Is(err, services.ErrPromoNotClaimed):
		helpers.RespondWithError(c, http.StatusForbidden, "Claim this promo code before using it.")
	case errors.Is(err, services.ErrTierUnavailable):
		helpers.RespondWithError(c, http.StatusConflict, "One or more tickets are no longer available.")
	case errors.Is(err, loyalty.ErrStaleBalance):
		helpers.RespondWithError(c, http.StatusConflict, "Your point balance has changed. Please review the redemption.")
	case errors.Is(err, loyalty.ErrRedemptionLimitExceeded):
		helpers.RespondWithError(c, http.StatusBadRequest, "Points may cover at most half of the purchase.")
	case errors.Is(err, loyalty.ErrInvalidAmount), errors.Is(err, loyalty.ErrInsufficientBalance):
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid point redemption request.")
	default:
		var gerr *services.GatewayError
		if errors.As(err, &gerr) {
			if gerr.Retryable {
				helpers.RespondWithError(c, http.StatusBadGateway, "Payment provider is unreachable. Please try again.")
			} else {
				helpers.RespondWithError(c, http.StatusUnprocessableEntity, "Payment session was declined by the provider.")
			}
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to begin checkout.")
	}
}
