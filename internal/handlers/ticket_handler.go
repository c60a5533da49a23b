package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/middleware"
	"github.com/adiswara/karcis/internal/models"
	"github.com/adiswara/karcis/internal/services"
)

type TicketHandler struct {
	credentials *services.CredentialService
	tickets     services.TicketRepository
	qrSecret    string
}

func NewTicketHandler(credentials *services.CredentialService, tickets services.TicketRepository, qrSecret string) *TicketHandler {
	return &TicketHandler{
		credentials: credentials,
		tickets:     tickets,
		qrSecret:    qrSecret,
	}
}

func (h *TicketHandler) ListMyTickets(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	tickets, err := h.tickets.ByUser(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// GetCredential serves the ticket's QR artifact, retrying transient store
// failures with backoff. The attempt count goes back in a header so the
// client can show progress on slow retrievals.
func (h *TicketHandler) GetCredential(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	ticket, err := h.tickets.ByID(c.Request.Context(), ticketID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}
	if ticket.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this ticket.")
		return
	}

	attempts := 0
	artifact, err := h.credentials.FetchWithRetry(c.Request.Context(), ticketID, func(attempt int) {
		attempts = attempt
	})
	if err != nil {
		if errors.Is(err, services.ErrCredentialUnavailable) {
			helpers.RespondWithError(c, http.StatusServiceUnavailable,
				fmt.Sprintf("Ticket credential is temporarily unavailable. Please contact support with ticket %s.", ticketID))
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve ticket credential.")
		return
	}
	defer artifact.Close()

	c.Header("X-Fetch-Attempts", fmt.Sprintf("%d", attempts))
	c.Data(http.StatusOK, artifact.MIME, artifact.Data)
}

type ValidateTicketRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// ValidateTicket is the entry-scan path: the organizer posts scanned QR
// data, we check the embedded signature and flip the single-use flag.
func (h *TicketHandler) ValidateTicket(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	var req ValidateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	ticketID, err := helpers.DecodeCredentialPayload(req.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format.")
		return
	}

	ticket, err := h.tickets.ByID(c.Request.Context(), ticketID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	if !helpers.VerifyCredentialPayload(req.QRData, ticket.ID, ticket.IntentID, ticket.UserID, h.qrSecret) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", ticket.EventID, userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to validate this ticket.")
		return
	}

	flipped, err := h.tickets.MarkUsed(c.Request.Context(), ticket.ID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to validate ticket.")
		return
	}
	if !flipped {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket already used.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket validated successfully.",
		"ticket": gin.H{
			"code":        ticket.Code,
			"event_title": event.Title,
		},
	})
}
