package response_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/response"
)

func record(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestSuccessEnvelope(t *testing.T) {
	w, env := record(t, func(c *gin.Context) {
		response.Success(c, gin.H{"hello": "world"})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "ok", env.Msg)
}

func TestCreatedEnvelope(t *testing.T) {
	w, env := record(t, func(c *gin.Context) {
		response.Created(c, gin.H{"id": "p_1"})
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, env.Code)
}

func TestErrorEnvelopeCarriesCodeAndStatus(t *testing.T) {
	w, env := record(t, func(c *gin.Context) {
		response.Error(c, domainerrors.Conflict(4090, "idempotency key reused"))
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 4090, env.Code)
	assert.Equal(t, "idempotency key reused", env.Msg)
}

func TestErrorEnvelopeWrapsPlainError(t *testing.T) {
	w, env := record(t, func(c *gin.Context) {
		response.Error(c, fmt.Errorf("boom"))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 5000, env.Code)
}

func TestErrorEnvelopeIncludesDetails(t *testing.T) {
	_, env := record(t, func(c *gin.Context) {
		response.Error(c, domainerrors.Conflict(4090, "mismatch").WithDetails(map[string]interface{}{"stored": "a"}))
	})
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a", data["stored"])
}
