package repository

import (
	"context"

	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// TargetRepository 部署目标仓储接口
type TargetRepository interface {
	Create(target *model.DeploymentTarget) error
	FindByID(id int64, opts ...QueryOption) (*model.DeploymentTarget, error)
	FindByKindEnv(kind, environment string) (*model.DeploymentTarget, error)
	List() ([]*model.DeploymentTarget, error)

	// Commit 提交持久化目标记录, 以Version做乐观并发控制.
	// 版本不匹配返回 ErrConflict, 成功后target.Version自增.
	Commit(ctx context.Context, target *model.DeploymentTarget) error
}

type targetRepository struct {
	db *gorm.DB
}

// NewTargetRepository 创建部署目标仓储实例
func NewTargetRepository(db *gorm.DB) TargetRepository {
	return &targetRepository{db: db}
}

// Create 创建部署目标
func (r *targetRepository) Create(target *model.DeploymentTarget) error {
	if err := r.db.Create(target).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建部署目标失败", err)
	}
	return nil
}

// FindByID 根据ID查询部署目标
func (r *targetRepository) FindByID(id int64, opts ...QueryOption) (*model.DeploymentTarget, error) {
	db := r.db
	for _, opt := range opts {
		db = opt(db)
	}

	var target model.DeploymentTarget
	if err := db.First(&target, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署目标失败", err)
	}
	return &target, nil
}

// FindByKindEnv 按类型+环境查询目标, 预加载槽位
func (r *targetRepository) FindByKindEnv(kind, environment string) (*model.DeploymentTarget, error) {
	var target model.DeploymentTarget
	err := r.db.Preload("Slots").
		Where("kind = ? AND environment = ?", kind, environment).
		First(&target).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署目标失败", err)
	}
	return &target, nil
}

// List 查询全部目标
func (r *targetRepository) List() ([]*model.DeploymentTarget, error) {
	var targets []*model.DeploymentTarget
	if err := r.db.Preload("Slots").Order("id").Find(&targets).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署目标列表失败", err)
	}
	return targets, nil
}

// Commit 乐观并发提交目标记录
func (r *targetRepository) Commit(ctx context.Context, target *model.DeploymentTarget) error {
	res := r.db.WithContext(ctx).Model(&model.DeploymentTarget{}).
		Where("id = ? AND version = ?", target.ID, target.Version).
		Updates(map[string]interface{}{
			"active_slot_id":       target.ActiveSlotID,
			"last_attempt_id":      target.LastAttemptID,
			"last_attempt_outcome": target.LastAttemptOutcome,
			"version":              gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "提交目标记录失败", res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgErrors.ErrConflict
	}
	target.Version++
	return nil
}
