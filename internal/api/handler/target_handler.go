package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bluegreen-cd/internal/service"
	"bluegreen-cd/pkg/responses"
	"bluegreen-cd/pkg/utils"
)

type TargetHandler struct {
	targetService *service.TargetService
}

func NewTargetHandler(targetService *service.TargetService) *TargetHandler {
	return &TargetHandler{
		targetService: targetService,
	}
}

// Create 创建部署目标
// @Summary 创建部署目标(含blue/green槽位)
// @Tags Target
// @Accept json
// @Produce json
// @Param request body service.CreateTargetRequest true "创建目标请求"
// @Success 200 {object} responses.Response{data=model.DeploymentTarget}
// @Router /api/v1/target [post]
func (h *TargetHandler) Create(c *gin.Context) {
	var req service.CreateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	target, err := h.targetService.CreateTarget(c.Request.Context(), &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, target)
}

// List 目标列表
// @Summary 目标列表
// @Tags Target
// @Produce json
// @Success 200 {object} responses.Response{data=[]model.DeploymentTarget}
// @Router /api/v1/targets [get]
func (h *TargetHandler) List(c *gin.Context) {
	targets, err := h.targetService.List(c.Request.Context())
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, targets)
}

// GetByID 目标详情
// @Summary 目标详情(含槽位)
// @Tags Target
// @Produce json
// @Param id path int64 true "目标ID"
// @Success 200 {object} responses.Response{data=model.DeploymentTarget}
// @Router /api/v1/target/{id} [get]
func (h *TargetHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "无效的目标ID", err.Error())
		return
	}

	target, err := h.targetService.Get(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, target)
}

// History 目标的发布历史
// @Summary 目标的发布历史
// @Tags Target
// @Produce json
// @Param id path int64 true "目标ID"
// @Param limit query int false "返回条数"
// @Success 200 {object} responses.Response{data=[]model.DeploymentAttempt}
// @Router /api/v1/target/{id}/attempts [get]
func (h *TargetHandler) History(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "无效的目标ID", err.Error())
		return
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	attempts, err := h.targetService.History(c.Request.Context(), id, limit)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, attempts)
}
