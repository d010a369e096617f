package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/dto"
	"github.com/tcgbazaar/escrow-backend/internal/http/handlers/common"
	"github.com/tcgbazaar/escrow-backend/internal/service"
)

type EscrowHandler struct {
	svc *service.EscrowService
}

func NewEscrowHandler(s *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{svc: s}
}

// InitiatePayment POST /escrow
func (h *EscrowHandler) InitiatePayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		TransactionID uuid.UUID       `json:"transaction_id" binding:"required"`
		Amount        decimal.Decimal `json:"amount" binding:"required"`
		Method        string          `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.svc.Initiate(c.Request.Context(), req.TransactionID, userID, req.Amount, req.Method)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// HoldPayment POST /escrow/:id/hold
func (h *EscrowHandler) HoldPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.svc.Hold(c.Request.Context(), id, userID, role)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// GetPayment GET /escrow/:id — платёж вместе с журналом движений.
func (h *EscrowHandler) GetPayment(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.svc.GetPayment(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	entries, err := h.svc.ListEntries(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PaymentWithEntriesResponse{EscrowPayment: payment, Entries: entries})
}

// GetActivePayment GET /escrow/transactions/:id — активный платёж сделки.
func (h *EscrowHandler) GetActivePayment(c *gin.Context) {
	transactionID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.svc.GetActivePayment(c.Request.Context(), transactionID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
