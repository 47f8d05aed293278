package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/pkg/jwt"
	"bluegreen-cd/internal/pkg/logger"
	"bluegreen-cd/pkg/responses"
)

func setupAuthTest(t *testing.T) *gin.Engine {
	t.Helper()
	logger.InitNop()
	old := config.GlobalConfig
	config.GlobalConfig = &config.Config{
		Auth: config.AuthConfig{
			JWT: config.JWTConfig{
				Secret:             "test-secret-for-unit-tests-only",
				AccessTokenExpire:  3600,
				RefreshTokenExpire: 7200,
			},
		},
	}
	t.Cleanup(func() { config.GlobalConfig = old })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/refresh", NewAuthHandler().Refresh)
	return r
}

func postRefresh(t *testing.T, r *gin.Engine, body any) (*httptest.ResponseRecorder, *responses.Response) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp responses.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, &resp
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	r := setupAuthTest(t)

	refresh, err := jwt.GenerateRefreshToken("alice", "approver")
	require.NoError(t, err)

	_, resp := postRefresh(t, r, gin.H{"refresh_token": refresh})
	require.Equal(t, 200, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)

	claims, err := jwt.ValidateToken(data["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, "approver", claims.Role)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	r := setupAuthTest(t)

	// 访问Token不能当刷新Token用
	access, err := jwt.GenerateAccessToken("alice", "approver")
	require.NoError(t, err)

	_, resp := postRefresh(t, r, gin.H{"refresh_token": access})
	assert.NotEqual(t, 200, resp.Code)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	r := setupAuthTest(t)

	_, resp := postRefresh(t, r, gin.H{"refresh_token": "not-a-jwt"})
	assert.NotEqual(t, 200, resp.Code)
}
