package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/crypto"
	"bluegreen-cd/internal/pkg/logger"
	"bluegreen-cd/internal/repository"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// TargetService 部署目标服务
type TargetService struct {
	db          *gorm.DB
	targetRepo  repository.TargetRepository
	slotRepo    repository.SlotRepository
	attemptRepo repository.AttemptRepository
}

// NewTargetService 创建部署目标服务
func NewTargetService(db *gorm.DB) *TargetService {
	return &TargetService{
		db:          db,
		targetRepo:  repository.NewTargetRepository(db),
		slotRepo:    repository.NewSlotRepository(db),
		attemptRepo: repository.NewAttemptRepository(db),
	}
}

// CreateTargetRequest 创建目标请求
type CreateTargetRequest struct {
	Name        string `json:"name" binding:"required"`
	Kind        string `json:"kind" binding:"required,oneof=static workload mock"`
	Environment string `json:"environment" binding:"required"`

	// 两个槽位的后端资源标识(桶前缀/helm release名)
	BlueResourceID  string `json:"blue_resource_id" binding:"required"`
	GreenResourceID string `json:"green_resource_id" binding:"required"`

	// 审批回调密钥, 可选. 设置后该目标的审批决策必须携带此密钥
	WebhookSecret string `json:"webhook_secret" binding:"omitempty,min=8"`
}

// CreateTarget 创建部署目标与固定的blue/green槽位.
// 初始blue为活动槽位承接全部流量, green空闲.
func (s *TargetService) CreateTarget(ctx context.Context, req *CreateTargetRequest) (*model.DeploymentTarget, error) {
	if exist, err := s.targetRepo.FindByKindEnv(req.Kind, req.Environment); err == nil && exist != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeConflict,
			fmt.Sprintf("目标 %s/%s 已存在", req.Kind, req.Environment), nil)
	}

	target := &model.DeploymentTarget{
		Name:        req.Name,
		Kind:        req.Kind,
		Environment: req.Environment,
	}
	if req.WebhookSecret != "" {
		hash, err := crypto.HashSecret(req.WebhookSecret)
		if err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "回调密钥哈希失败", err)
		}
		target.WebhookSecretHash = &hash
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(target).Error; err != nil {
			return err
		}

		blue := &model.Slot{
			TargetID:          target.ID,
			SlotName:          constants.SlotBlue,
			BackingResourceID: req.BlueResourceID,
			TrafficWeight:     constants.WeightFull,
			Enabled:           true,
			Status:            constants.SlotStatusActive,
		}
		green := &model.Slot{
			TargetID:          target.ID,
			SlotName:          constants.SlotGreen,
			BackingResourceID: req.GreenResourceID,
			TrafficWeight:     constants.WeightNone,
			Enabled:           true,
			Status:            constants.SlotStatusIdle,
		}
		if err := tx.Create(blue).Error; err != nil {
			return err
		}
		if err := tx.Create(green).Error; err != nil {
			return err
		}

		return tx.Model(target).Update("active_slot_id", blue.ID).Error
	})
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建部署目标失败", err)
	}

	logger.Info("部署目标已创建",
		zap.String("name", target.Name),
		zap.String("kind", target.Kind),
		zap.String("env", target.Environment))

	return s.targetRepo.FindByID(target.ID, repository.WithPreload("Slots"))
}

// List 查询全部目标
func (s *TargetService) List(ctx context.Context) ([]*model.DeploymentTarget, error) {
	return s.targetRepo.List()
}

// Get 查询单个目标(含槽位)
func (s *TargetService) Get(ctx context.Context, id int64) (*model.DeploymentTarget, error) {
	return s.targetRepo.FindByID(id, repository.WithPreload("Slots"))
}

// History 查询目标的发布历史
func (s *TargetService) History(ctx context.Context, targetID int64, limit int) ([]*model.DeploymentAttempt, error) {
	if _, err := s.targetRepo.FindByID(targetID); err != nil {
		return nil, err
	}
	return s.attemptRepo.ListByTarget(targetID, limit)
}
