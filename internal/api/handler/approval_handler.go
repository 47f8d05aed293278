package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bluegreen-cd/internal/service"
	"bluegreen-cd/pkg/responses"
	"bluegreen-cd/pkg/utils"
)

type ApprovalHandler struct {
	approvalService *service.ApprovalService
}

func NewApprovalHandler(approvalService *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{
		approvalService: approvalService,
	}
}

// Decide 审批切流
// @Summary 批准或拒绝一次待审批的切流
// @Tags Approval
// @Accept json
// @Produce json
// @Param attempt_id path string true "发布编号"
// @Param request body service.DecideRequest true "审批决定"
// @Success 200 {object} responses.Response{data=model.ApprovalRequest}
// @Security BearerAuth
// @Router /api/v1/approval/{attempt_id}/decide [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req service.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, http.StatusBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	operator := c.GetString("operator")
	approval, err := h.approvalService.Decide(c.Request.Context(), c.Param("attempt_id"), operator, &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, approval)
}

// Get 审批详情
// @Summary 查询一次发布的审批状态
// @Tags Approval
// @Produce json
// @Param attempt_id path string true "发布编号"
// @Success 200 {object} responses.Response{data=model.ApprovalRequest}
// @Router /api/v1/approval/{attempt_id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	approval, err := h.approvalService.Get(c.Request.Context(), c.Param("attempt_id"))
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, approval)
}
