package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tcgbazaar/escrow-backend/internal/dto"
	"github.com/tcgbazaar/escrow-backend/internal/http/handlers/common"
	"github.com/tcgbazaar/escrow-backend/internal/service"
)

type ReleaseHandler struct {
	svc *service.ReleaseService
}

func NewReleaseHandler(s *service.ReleaseService) *ReleaseHandler {
	return &ReleaseHandler{svc: s}
}

// GetRelease GET /releases/:id
func (h *ReleaseHandler) GetRelease(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rel, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// ListPending GET /releases — очередь ожидающих заявок.
func (h *ReleaseHandler) ListPending(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	releases, err := h.svc.ListPending(c.Request.Context(), limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, releases)
}

// InitiateApproval POST /releases/:id/initiate-approval
// Первая фаза: выпуск одноразового токена. Деньги не двигаются.
func (h *ReleaseHandler) InitiateApproval(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	token, err := h.svc.InitiateApproval(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ApprovalInitiatedResponse{ReleaseID: id.String(), ApprovalToken: token})
}

// ConfirmApproval POST /releases/:id/confirm
// Вторая фаза: проверка токена и атомарное исполнение заявки.
func (h *ReleaseHandler) ConfirmApproval(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Token string  `json:"token" binding:"required"`
		Notes *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rel, err := h.svc.ConfirmApproval(c.Request.Context(), id, userID, req.Token, req.Notes)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// RejectRelease POST /releases/:id/reject
func (h *ReleaseHandler) RejectRelease(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	rel, err := h.svc.Reject(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}
