package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bluegreen-cd/internal/pkg/jwt"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
	"bluegreen-cd/pkg/responses"
	"bluegreen-cd/pkg/utils"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// RefreshRequest Token刷新请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshResponse Token刷新响应
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh 刷新访问Token
// @Summary 用刷新Token换取新的访问Token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "刷新Token"
// @Success 200 {object} responses.Response{data=RefreshResponse}
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	claims, err := jwt.ValidateToken(req.RefreshToken)
	if err != nil {
		responses.Error(c, err)
		return
	}
	if claims.Type != constants.JWTTypeRefresh {
		responses.Error(c, pkgErrors.ErrInvalidToken)
		return
	}

	access, err := jwt.GenerateAccessToken(claims.Operator, claims.Role)
	if err != nil {
		responses.Error(c, pkgErrors.Wrap(pkgErrors.CodeInternalError, "签发Token失败", err))
		return
	}
	refresh, err := jwt.GenerateRefreshToken(claims.Operator, claims.Role)
	if err != nil {
		responses.Error(c, pkgErrors.Wrap(pkgErrors.CodeInternalError, "签发Token失败", err))
		return
	}

	responses.Success(c, RefreshResponse{AccessToken: access, RefreshToken: refresh})
}
