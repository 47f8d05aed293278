package repository

import (
	"context"

	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// SlotRepository 槽位仓储接口
type SlotRepository interface {
	Create(slot *model.Slot) error
	FindByTarget(targetID int64) ([]*model.Slot, error)
	Save(ctx context.Context, slot *model.Slot) error
}

type slotRepository struct {
	db *gorm.DB
}

// NewSlotRepository 创建槽位仓储实例
func NewSlotRepository(db *gorm.DB) SlotRepository {
	return &slotRepository{db: db}
}

// Create 创建槽位
func (r *slotRepository) Create(slot *model.Slot) error {
	if err := r.db.Create(slot).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建槽位失败", err)
	}
	return nil
}

// FindByTarget 查询目标下的槽位
func (r *slotRepository) FindByTarget(targetID int64) ([]*model.Slot, error) {
	var slots []*model.Slot
	err := r.db.Where("target_id = ?", targetID).Order("slot_name").Find(&slots).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询槽位失败", err)
	}
	return slots, nil
}

// Save 保存槽位全量字段
func (r *slotRepository) Save(ctx context.Context, slot *model.Slot) error {
	if err := r.db.WithContext(ctx).Save(slot).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "保存槽位失败", err)
	}
	return nil
}
