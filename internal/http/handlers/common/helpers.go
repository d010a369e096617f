package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tcgbazaar/escrow-backend/internal/dto"
	"github.com/tcgbazaar/escrow-backend/internal/http/middleware"
	"github.com/tcgbazaar/escrow-backend/internal/pkg/apperror"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
	"github.com/tcgbazaar/escrow-backend/internal/service"
)

var (
	// ErrUserNotFound возвращается, когда пользователь отсутствует в контексте
	ErrUserNotFound = errors.New("пользователь не найден в контексте")

	// ErrInvalidUUID возвращается при ошибке разбора UUID
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

// CurrentUserID извлекает идентификатор пользователя из контекста gin.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}

	return userID, nil
}

// CurrentUserRole извлекает роль пользователя из контекста gin.
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", ErrUserNotFound
	}

	role, ok := raw.(string)
	if !ok {
		return "", ErrUserNotFound
	}

	return role, nil
}

// ParseUUIDParam разбирает UUID из параметра пути.
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", paramName)
	}

	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return parsed, nil
}

// RespondError отправляет стандартизированный ответ с ошибкой.
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, dto.ErrorResponse{Error: message})
}

// RespondSuccess отправляет стандартизированный успешный ответ.
func RespondSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, dto.SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// RespondUnauthorized отправляет 401.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	RespondError(c, http.StatusUnauthorized, message)
}

// RespondBadRequest отправляет 400.
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "некорректный запрос"
	}
	RespondError(c, http.StatusBadRequest, message)
}

// RespondServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Контракт кодов: 400 валидация, 401 авторизация, 403 доступ,
// 404 не найдено, 409 конфликт состояния или токена, 410 токен истёк.
func RespondServiceError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, dto.ErrorResponse{Error: appErr.Message, Code: string(appErr.Code)})
		return
	}

	status := serviceErrorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Внутренние детали наружу не уходят.
		message = "внутренняя ошибка сервера"
		_ = c.Error(err)
	}
	c.JSON(status, dto.ErrorResponse{Error: message})
}

func serviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrPaymentNotFound),
		errors.Is(err, repository.ErrDisputeNotFound),
		errors.Is(err, repository.ErrReleaseNotFound),
		errors.Is(err, repository.ErrPackageNotFound),
		errors.Is(err, repository.ErrSplitNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		return http.StatusNotFound

	case errors.Is(err, repository.ErrStateConflict),
		errors.Is(err, repository.ErrDuplicateActive),
		errors.Is(err, repository.ErrDuplicateDispute),
		errors.Is(err, repository.ErrEmailTaken),
		errors.Is(err, service.ErrAlreadyResolved),
		errors.Is(err, service.ErrTokenMismatch),
		errors.Is(err, service.ErrShareNotAdvancable):
		return http.StatusConflict

	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusGone

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUserInactive):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotSeller),
		errors.Is(err, service.ErrNotBuyer),
		errors.Is(err, service.ErrNotHubForPayment),
		errors.Is(err, service.ErrNotHubForPackage),
		errors.Is(err, service.ErrInternalNotAllowed):
		return http.StatusForbidden

	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidMethod),
		errors.Is(err, service.ErrInvalidDisputeType),
		errors.Is(err, service.ErrInvalidResolution),
		errors.Is(err, service.ErrInvalidPartialAmount),
		errors.Is(err, service.ErrInvalidRelease),
		errors.Is(err, service.ErrInvalidGross),
		errors.Is(err, service.ErrUnknownShare),
		errors.Is(err, service.ErrTokenNotIssued),
		errors.Is(err, service.ErrEmptyRejectReason),
		errors.Is(err, service.ErrMissingEvidence),
		errors.Is(err, service.ErrMissingTracking),
		errors.Is(err, service.ErrEmptyReturn),
		errors.Is(err, service.ErrHubNotAssigned),
		errors.Is(err, service.ErrSameParty),
		errors.Is(err, service.ErrNotHubUser),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrOpenDispute),
		errors.Is(err, service.ErrPackageNotDelivered),
		errors.Is(err, service.ErrNotHeldForComplete),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrPaymentNotHeld),
		errors.Is(err, service.ErrDisputeClosed):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// ParseIntQuery безопасно читает целочисленный query-параметр.
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination извлекает limit и offset из query-параметров.
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
