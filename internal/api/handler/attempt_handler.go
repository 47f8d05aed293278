package handler

import (
	"github.com/gin-gonic/gin"

	"bluegreen-cd/internal/service"
	"bluegreen-cd/pkg/responses"
)

type AttemptHandler struct {
	deployService *service.DeployService
}

func NewAttemptHandler(deployService *service.DeployService) *AttemptHandler {
	return &AttemptHandler{
		deployService: deployService,
	}
}

// GetByAttemptID 发布记录详情
// @Summary 发布记录详情(含阶段/健康采样历史)
// @Tags Attempt
// @Produce json
// @Param attempt_id path string true "发布编号"
// @Success 200 {object} responses.Response{data=model.DeploymentAttempt}
// @Router /api/v1/attempt/{attempt_id} [get]
func (h *AttemptHandler) GetByAttemptID(c *gin.Context) {
	attempt, err := h.deployService.GetAttempt(c.Request.Context(), c.Param("attempt_id"))
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, attempt)
}
