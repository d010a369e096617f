package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestEscrowHandler_InitiatePayment_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &EscrowHandler{svc: nil}
	r.POST("/escrow", handler.InitiatePayment)

	req, _ := http.NewRequest("POST", "/escrow", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEscrowHandler_HoldPayment_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &EscrowHandler{svc: nil}
	r.POST("/escrow/:id/hold", handler.HoldPayment)

	req, _ := http.NewRequest("POST", "/escrow/invalid-uuid/hold", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReleaseHandler_GetRelease_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ReleaseHandler{svc: nil}
	r.GET("/releases/:id", handler.GetRelease)

	req, _ := http.NewRequest("GET", "/releases/invalid-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisputeHandler_OpenDispute_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &DisputeHandler{svc: nil}
	r.POST("/disputes", handler.OpenDispute)

	req, _ := http.NewRequest("POST", "/disputes", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPackageHandler_RegisterPackage_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &PackageHandler{svc: nil}
	r.POST("/packages", handler.RegisterPackage)

	req, _ := http.NewRequest("POST", "/packages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevenueHandler_CreateSplit_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &RevenueHandler{svc: nil}
	r.POST("/revenue/splits", handler.CreateSplit)

	req, _ := http.NewRequest("POST", "/revenue/splits", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
