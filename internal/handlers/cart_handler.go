package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adiswara/karcis/internal/cart"
	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/middleware"
	"github.com/adiswara/karcis/internal/models"
)

// CartHandler exposes the client-owned cart. Each user session is the sole
// writer of its own cart; the store just makes it survive restarts.
type CartHandler struct {
	carts *cart.Store
}

func NewCartHandler(carts *cart.Store) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequest struct {
	EventID  uuid.UUID `json:"event_id" binding:"required"`
	TierID   uuid.UUID `json:"tier_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required,min=1"`
}

type UpdateQuantityRequest struct {
	EventID  uuid.UUID `json:"event_id" binding:"required"`
	TierID   uuid.UUID `json:"tier_id" binding:"required"`
	Quantity int       `json:"quantity"`
}

func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}
	c.JSON(http.StatusOK, h.carts.Load(userID))
}

func (h *CartHandler) AddItem(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	var req AddItemRequest
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

	var tier models.TicketTier
	if err := gormDB.Preload("Event").Where("id = ? AND event_id = ?", req.TierID, req.EventID).First(&tier).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket tier not found.")
		return
	}

	current := h.carts.Load(userID)
	updated := current.AddItem(cart.Line{
		EventID:    tier.EventID,
		TierID:     tier.ID,
		EventTitle: tier.Event.Title,
		TierName:   tier.Name,
		UnitPrice:  tier.Price,
		Quantity:   req.Quantity,
	})
	if err := h.carts.Save(userID, updated); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to persist cart.")
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	updated := h.carts.Load(userID).UpdateQuantity(req.EventID, req.TierID, req.Quantity)
	if err := h.carts.Save(userID, updated); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to persist cart.")
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}
	tierID, err := uuid.Parse(c.Param("tierId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid tier ID.")
		return
	}

	updated := h.carts.Load(userID).RemoveItem(eventID, tierID)
	if err := h.carts.Save(userID, updated); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to persist cart.")
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	if err := h.carts.Clear(userID); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to clear cart.")
		return
	}

	c.JSON(http.StatusOK, cart.Cart{})
}
