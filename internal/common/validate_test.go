package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/common"
)

type samplePayload struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

func TestDecodeJSON(t *testing.T) {
	var p samplePayload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Gula Pasir","quantity":2}`))
	require.NoError(t, common.DecodeJSON(req, &p))
	require.Equal(t, "Gula Pasir", p.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	err := common.DecodeJSON(req, &p)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	details := appErr.Details.(map[string]string)
	require.Equal(t, "is required", details["name"])
	require.Equal(t, "must be at least 1", details["quantity"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err = common.DecodeJSON(req, &p)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("VALIDATION_FAILED", "validation failed", http.StatusBadRequest, nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":{"code":"VALIDATION_FAILED","message":"validation failed"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	require.Equal(t, "192.0.2.10", common.ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.1")
	require.Equal(t, "198.51.100.1", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")
	require.Equal(t, "203.0.113.5", common.ClientIP(req))
}
