package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/crypto"
	"bluegreen-cd/internal/pkg/logger"
	"bluegreen-cd/internal/repository"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// ApprovalService 审批服务
type ApprovalService struct {
	approvalRepo repository.ApprovalRepository
	attemptRepo  repository.AttemptRepository
	targetRepo   repository.TargetRepository
}

// NewApprovalService 创建审批服务
func NewApprovalService(db *gorm.DB) *ApprovalService {
	return &ApprovalService{
		approvalRepo: repository.NewApprovalRepository(db),
		attemptRepo:  repository.NewAttemptRepository(db),
		targetRepo:   repository.NewTargetRepository(db),
	}
}

// DecideRequest 审批决策请求
type DecideRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment"`
	Secret  string `json:"secret"` // 目标配置了回调密钥时必填
}

// Decide 写入审批决策, 只允许对等待审批中的发布决策一次
func (s *ApprovalService) Decide(ctx context.Context, attemptID, approver string, req *DecideRequest) (*model.ApprovalRequest, error) {
	attempt, err := s.attemptRepo.FindByAttemptID(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.CurrentPhase != constants.PhaseAwaitingApproval {
		return nil, pkgErrors.Wrap(pkgErrors.CodeConflict, "发布不在等待审批阶段", nil)
	}

	target, err := s.targetRepo.FindByID(attempt.TargetID)
	if err != nil {
		return nil, err
	}
	if target.WebhookSecretHash != nil && !crypto.CheckSecret(req.Secret, *target.WebhookSecretHash) {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUnauthorized, "审批回调密钥校验失败", nil)
	}

	state := constants.ApprovalStateDenied
	if req.Approve {
		state = constants.ApprovalStateApproved
	}
	if err := s.approvalRepo.Decide(ctx, attemptID, state, approver, req.Comment); err != nil {
		return nil, err
	}

	logger.Info("审批决策已写入",
		zap.String("attempt_id", attemptID),
		zap.String("state", state),
		zap.String("approver", approver))

	return s.approvalRepo.FindByAttemptID(ctx, attemptID)
}

// Get 查询发布的审批请求
func (s *ApprovalService) Get(ctx context.Context, attemptID string) (*model.ApprovalRequest, error) {
	return s.approvalRepo.FindByAttemptID(ctx, attemptID)
}
