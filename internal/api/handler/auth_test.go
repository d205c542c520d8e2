package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/response"
)

func TestAuthHandler_Register_Success(t *testing.T) {
	env := setupEnv(t)

	w := performRequest(env.router, "POST", "/auth/register", dto.RegisterRequest{
		Email:    "test@example.com",
		Password: "password123",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.NotEmpty(t, data["token"])
	profile := data["profile"].(map[string]interface{})
	assert.Equal(t, float64(5), profile["credits"])
	assert.Equal(t, false, profile["guest"])
}

func TestAuthHandler_Register_DuplicateEmail(t *testing.T) {
	env := setupEnv(t)
	req := dto.RegisterRequest{Email: "test@example.com", Password: "password123"}

	w := performRequest(env.router, "POST", "/auth/register", req)
	assert.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	w = performRequest(env.router, "POST", "/auth/register", req)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestAuthHandler_Register_InvalidRequest(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"invalid email", map[string]string{"email": "invalid-email", "password": "password123"}},
		{"short password", map[string]string{"email": "a@example.com", "password": "short"}},
		{"missing password", map[string]string{"email": "a@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(env.router, "POST", "/auth/register", tt.body)
			assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	env := setupEnv(t)
	performRequest(env.router, "POST", "/auth/register", dto.RegisterRequest{
		Email:    "login@example.com",
		Password: "password123",
	})

	w := performRequest(env.router, "POST", "/auth/login", dto.LoginRequest{
		Email:    "login@example.com",
		Password: "password123",
	})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.NotEmpty(t, dataMap(t, resp)["token"])

	w = performRequest(env.router, "POST", "/auth/login", dto.LoginRequest{
		Email:    "login@example.com",
		Password: "wrong-password",
	})
	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
}
