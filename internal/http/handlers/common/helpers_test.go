package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcgbazaar/escrow-backend/internal/dto"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
	"github.com/tcgbazaar/escrow-backend/internal/service"
	"github.com/tcgbazaar/escrow-backend/internal/validation"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondServiceError(c, err)

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondServiceError_ValidationError(t *testing.T) {
	err := validation.ValidateLength("описание", "коротко", validation.MinDisputeDescriptionLength, validation.MaxDisputeDescriptionLength)
	require.Error(t, err)

	w, body := respond(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code, "ошибка валидации должна отдавать 400")
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestRespondServiceError_DomainErrors(t *testing.T) {
	w, _ := respond(t, repository.ErrDisputeNotFound)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = respond(t, repository.ErrStateConflict)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = respond(t, service.ErrTokenExpired)
	assert.Equal(t, http.StatusGone, w.Code)

	w, _ = respond(t, service.ErrNotParticipant)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRespondServiceError_MasksInternal(t *testing.T) {
	w, body := respond(t, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "внутренняя ошибка сервера", body.Error,
		"внутренние детали не должны уходить наружу")
}
