package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/loyalty"
	"github.com/adiswara/karcis/internal/middleware"
	"github.com/adiswara/karcis/internal/services"
)

type LoyaltyHandler struct {
	loyalty *services.LoyaltyService
}

func NewLoyaltyHandler(loyaltySvc *services.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{loyalty: loyaltySvc}
}

func (h *LoyaltyHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	balance, err := h.loyalty.Balance(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving point balance.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":        balance,
		"discount_value": loyalty.Discount(balance),
	})
}

func (h *LoyaltyHandler) GetHistory(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	entries, err := h.loyalty.History(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving point history.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type RedemptionPreviewRequest struct {
	PurchaseAmount int `json:"purchase_amount" binding:"required,min=1"`
	Points         int `json:"points"`
}

// PreviewRedemption reports the maximum redeemable points for a purchase
// and, when a specific point amount is proposed, validates it against the
// cached-balance rules. The authoritative check still happens at checkout.
func (h *LoyaltyHandler) PreviewRedemption(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	var req RedemptionPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	preview, err := h.loyalty.Preview(c.Request.Context(), userID, req.PurchaseAmount)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error computing redemption preview.")
		return
	}

	response := gin.H{
		"balance":        preview.Balance,
		"max_redeemable": preview.MaxRedeemable,
		"discount_value": preview.DiscountValue,
	}

	if req.Points > 0 {
		err := loyalty.ValidateRedemption(req.Points, preview.Balance, req.PurchaseAmount)
		response["requested_points"] = req.Points
		response["valid"] = err == nil
		if err != nil {
			response["reason"] = err.Error()
		}
	}

	c.JSON(http.StatusOK, response)
}
