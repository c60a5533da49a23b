package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/models"
)

type TierRequest struct {
	Name    string    `json:"name" binding:"required"`
	Price   int       `json:"price" binding:"required"`
	Quota   *int      `json:"quota"`
	EventID uuid.UUID `json:"event_id" binding:"required"`
}

func CreateTier(c *gin.Context) {
	var req TierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", req.EventID, userID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission to modify it.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error verifying event ownership.")
		return
	}

	tier := models.TicketTier{
		ID:      uuid.New(),
		Name:    req.Name,
		Price:   req.Price,
		Quota:   req.Quota,
		EventID: req.EventID,
	}

	if err := gormDB.Create(&tier).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create ticket tier.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Ticket tier created successfully.",
		"tier_id": tier.ID,
	})
}

func GetTier(c *gin.Context) {
	tierID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var tier models.TicketTier
	if err := gormDB.Where("id = ?", tierID).First(&tier).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket tier not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket tier.")
		return
	}

	c.JSON(http.StatusOK, tier)
}

func UpdateTier(c *gin.Context) {
	tierID := c.Param("id")
	var req TierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var tier models.TicketTier
	if err := gormDB.Where("id = ?", tierID).First(&tier).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket tier not found.")
		return
	}

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", tier.EventID, userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to modify this ticket tier.")
		return
	}

	tier.Name = req.Name
	tier.Price = req.Price
	tier.Quota = req.Quota

	if err := gormDB.Save(&tier).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update ticket tier.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket tier updated successfully.",
		"tier":    tier,
	})
}

func DeleteTier(c *gin.Context) {
	tierID := c.Param("id")

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var tier models.TicketTier
	if err := gormDB.Where("id = ?", tierID).First(&tier).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket tier not found.")
		return
	}

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", tier.EventID, userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to delete this ticket tier.")
		return
	}

	if err := gormDB.Delete(&tier).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete ticket tier.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket tier deleted successfully.",
	})
}
