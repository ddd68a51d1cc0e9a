package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duocall/internal/core/domain"
	"duocall/internal/core/services"
	"duocall/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := services.DemoCredentialStore(bcrypt.MinCost)
	require.NoError(t, err)
	auth := services.NewAuthService("test-secret", time.Hour, store)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	NewAuthHandler(auth).SetupRoutes(router)
	return router, auth
}

func postJSON(router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_IssueToken(t *testing.T) {
	router, auth := setupAuthRouter(t)

	w := postJSON(router, TokenRequest{Username: "alice", Password: "password123", RoomID: "room1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := auth.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.Username("alice"), claims.Username)
	assert.Equal(t, domain.RoomID("room1"), claims.Room())
}

func TestAuthHandler_Rejections(t *testing.T) {
	router, _ := setupAuthRouter(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "missing room",
			body:   TokenRequest{Username: "alice", Password: "password123"},
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "wrong password",
			body:   TokenRequest{Username: "alice", Password: "nope", RoomID: "room1"},
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "unknown user",
			body:   TokenRequest{Username: "mallory", Password: "password123", RoomID: "room1"},
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "invalid username",
			body:   TokenRequest{Username: "a b", Password: "password123", RoomID: "room1"},
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "not json",
			body:   "plain string",
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, tt.body)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}
