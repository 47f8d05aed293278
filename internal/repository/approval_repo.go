package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// ApprovalRepository 审批请求仓储接口
type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByAttemptID(ctx context.Context, attemptID string) (*model.ApprovalRequest, error)

	// Decide 写入审批决策, 仅允许从pending流转一次
	Decide(ctx context.Context, attemptID, state, approver, comment string) error
}

type approvalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository 创建审批请求仓储实例
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

// Create 创建审批请求, 重复创建返回已存在
func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ApprovalRequest{}).
		Where("attempt_id = ?", req.AttemptID).Count(&count).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询审批请求失败", err)
	}
	if count > 0 {
		return pkgErrors.ErrRecordExists
	}

	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建审批请求失败", err)
	}
	return nil
}

// FindByAttemptID 根据发布ID查询审批请求
func (r *approvalRepository) FindByAttemptID(ctx context.Context, attemptID string) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		First(&req).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询审批请求失败", err)
	}
	return &req, nil
}

// Decide 写入审批决策
func (r *approvalRepository) Decide(ctx context.Context, attemptID, state, approver, comment string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.ApprovalRequest{}).
		Where("attempt_id = ? AND state = ?", attemptID, constants.ApprovalStatePending).
		Updates(map[string]interface{}{
			"state":      state,
			"approver":   approver,
			"comment":    comment,
			"decided_at": now,
		})
	if res.Error != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "写入审批决策失败", res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgErrors.Wrap(pkgErrors.CodeConflict, "审批请求不存在或已决策", nil)
	}
	return nil
}
