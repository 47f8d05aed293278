package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// LeaseRepository 目标租约仓储接口
type LeaseRepository interface {
	// Acquire 获取目标租约. 已被他人持有且未过期返回 ErrAttemptInProgress;
	// 持有者重复获取视为续约(resume 场景); 过期租约可被接管.
	Acquire(ctx context.Context, targetID int64, attemptID string, ttl time.Duration) error

	// Release 释放租约, 仅持有者可释放. 已不存在视为成功(幂等).
	Release(ctx context.Context, targetID int64, attemptID string) error

	// SweepExpired 清理过期租约, 返回清理数量
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type leaseRepository struct {
	db *gorm.DB
}

// NewLeaseRepository 创建租约仓储实例
func NewLeaseRepository(db *gorm.DB) LeaseRepository {
	return &leaseRepository{db: db}
}

// Acquire 获取租约
func (r *leaseRepository) Acquire(ctx context.Context, targetID int64, attemptID string, ttl time.Duration) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease model.TargetLease
		err := tx.Where("target_id = ?", targetID).First(&lease).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			lease = model.TargetLease{
				TargetID:        targetID,
				HolderAttemptID: attemptID,
				ExpiresAt:       now.Add(ttl),
			}
			if err := tx.Create(&lease).Error; err != nil {
				// 并发插入撞唯一索引, 视为他人持有
				return pkgErrors.ErrAttemptInProgress
			}
			return nil

		case err != nil:
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询租约失败", err)

		case lease.HolderAttemptID == attemptID:
			// 持有者续约. 进程中断后 Release 未执行, resume 需拿回原租约
			err := tx.Model(&model.TargetLease{}).
				Where("target_id = ? AND holder_attempt_id = ?", targetID, attemptID).
				Update("expires_at", now.Add(ttl)).Error
			if err != nil {
				return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "续约失败", err)
			}
			return nil

		case lease.Expired(now):
			// 接管过期租约
			res := tx.Model(&model.TargetLease{}).
				Where("target_id = ? AND holder_attempt_id = ?", targetID, lease.HolderAttemptID).
				Updates(map[string]interface{}{
					"holder_attempt_id": attemptID,
					"expires_at":        now.Add(ttl),
				})
			if res.Error != nil {
				return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "接管租约失败", res.Error)
			}
			if res.RowsAffected == 0 {
				return pkgErrors.ErrAttemptInProgress
			}
			return nil

		default:
			return pkgErrors.ErrAttemptInProgress
		}
	})
}

// Release 释放租约
func (r *leaseRepository) Release(ctx context.Context, targetID int64, attemptID string) error {
	err := r.db.WithContext(ctx).
		Where("target_id = ? AND holder_attempt_id = ?", targetID, attemptID).
		Delete(&model.TargetLease{}).Error
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "释放租约失败", err)
	}
	return nil
}

// SweepExpired 清理过期租约
func (r *leaseRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.TargetLease{})
	if res.Error != nil {
		return 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "清理过期租约失败", res.Error)
	}
	return res.RowsAffected, nil
}
