package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// AttemptRepository 发布记录仓储接口
type AttemptRepository interface {
	Create(attempt *model.DeploymentAttempt) error
	FindByAttemptID(attemptID string) (*model.DeploymentAttempt, error)
	ListByTarget(targetID int64, limit int) ([]*model.DeploymentAttempt, error)
	ListStale(olderThan time.Time) ([]*model.DeploymentAttempt, error)
	Save(ctx context.Context, attempt *model.DeploymentAttempt) error
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository 创建发布记录仓储实例
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

// Create 创建发布记录
func (r *attemptRepository) Create(attempt *model.DeploymentAttempt) error {
	if err := r.db.Create(attempt).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建发布记录失败", err)
	}
	return nil
}

// FindByAttemptID 根据发布ID查询
func (r *attemptRepository) FindByAttemptID(attemptID string) (*model.DeploymentAttempt, error) {
	var attempt model.DeploymentAttempt
	err := r.db.Preload("Target").
		Where("attempt_id = ?", attemptID).
		First(&attempt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询发布记录失败", err)
	}
	return &attempt, nil
}

// ListByTarget 查询目标的发布历史
func (r *attemptRepository) ListByTarget(targetID int64, limit int) ([]*model.DeploymentAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	var attempts []*model.DeploymentAttempt
	err := r.db.Where("target_id = ?", targetID).
		Order("started_at DESC").Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询发布历史失败", err)
	}
	return attempts, nil
}

// ListStale 查询长时间未到终态的发布(疑似中断)
func (r *attemptRepository) ListStale(olderThan time.Time) ([]*model.DeploymentAttempt, error) {
	var attempts []*model.DeploymentAttempt
	err := r.db.Where("outcome = ? AND started_at < ?", constants.OutcomeInProgress, olderThan).
		Find(&attempts).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询滞留发布失败", err)
	}
	return attempts, nil
}

// Save 保存发布记录全量字段. 终态记录不允许再修改.
func (r *attemptRepository) Save(ctx context.Context, attempt *model.DeploymentAttempt) error {
	var current model.DeploymentAttempt
	err := r.db.WithContext(ctx).
		Select("outcome").
		Where("attempt_id = ?", attempt.AttemptID).
		First(&current).Error
	if err == nil && current.Outcome != constants.OutcomeInProgress {
		return pkgErrors.Wrap(pkgErrors.CodeConflict, "发布记录已归档", nil)
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询发布记录失败", err)
	}

	if err := r.db.WithContext(ctx).Save(attempt).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "保存发布记录失败", err)
	}
	return nil
}
