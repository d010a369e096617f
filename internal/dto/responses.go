package dto

import (
	"github.com/tcgbazaar/escrow-backend/internal/models"
	"github.com/tcgbazaar/escrow-backend/internal/service"
)

// ErrorResponse стандартный ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse стандартный успешный ответ
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthResponse возвращается при регистрации и входе.
type AuthResponse struct {
	User   *models.User       `json:"user"`
	Tokens *service.TokenPair `json:"tokens"`
}

// PackageResponse посылка вместе с журналом переходов.
type PackageResponse struct {
	*models.Package
	Audit []models.PackageAuditEntry `json:"audit"`
}

// PaymentWithEntriesResponse платёж вместе с журналом движений.
type PaymentWithEntriesResponse struct {
	*models.EscrowPayment
	Entries []models.EscrowEntry `json:"entries"`
}

// ApprovalInitiatedResponse возвращается при инициации подтверждения
// заявки: одноразовый токен показывается ровно один раз.
type ApprovalInitiatedResponse struct {
	ReleaseID string `json:"release_id"`
	*service.ApprovalToken
}
