package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tcgbazaar/escrow-backend/internal/http/handlers/common"
	"github.com/tcgbazaar/escrow-backend/internal/service"
)

type RevenueHandler struct {
	svc *service.RevenueService
}

func NewRevenueHandler(s *service.RevenueService) *RevenueHandler {
	return &RevenueHandler{svc: s}
}

// CreateSplit POST /revenue/splits — консигнационная продажа.
// Мерчант (хаб-магазин) регистрирует разбиение выручки 70/20/10.
func (h *RevenueHandler) CreateSplit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		TransactionID uuid.UUID       `json:"transaction_id" binding:"required"`
		OwnerID       uuid.UUID       `json:"owner_id" binding:"required"`
		Gross         decimal.Decimal `json:"gross" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	split, err := h.svc.CreateSplit(c.Request.Context(), req.TransactionID, req.OwnerID, userID, req.Gross)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, split)
}

// GetSplit GET /revenue/splits/:id
func (h *RevenueHandler) GetSplit(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	split, err := h.svc.GetSplit(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, split)
}

// ListSplits GET /revenue/splits
func (h *RevenueHandler) ListSplits(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	splits, err := h.svc.ListUserSplits(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, splits)
}

// AdvanceShare POST /revenue/splits/:id/payout — продвижение доли
// по статусам выплаты.
func (h *RevenueHandler) AdvanceShare(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Share  string `json:"share" binding:"required"`
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	split, err := h.svc.AdvanceShare(c.Request.Context(), id, req.Share, req.Status)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, split)
}
