package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bluegreen-cd/internal/adapter/deploy"
	"bluegreen-cd/internal/adapter/metrics"
	"bluegreen-cd/internal/adapter/notification"
	"bluegreen-cd/internal/core/orchestrator"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/pkg/crypto"
	"bluegreen-cd/internal/pkg/logger"
	"bluegreen-cd/internal/repository"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
	"bluegreen-cd/pkg/utils"
)

// DeployService 发布服务: 组装驱动/指标源/状态机, 驱动单次蓝绿发布
type DeployService struct {
	db  *gorm.DB
	cfg *config.Config

	targetRepo   repository.TargetRepository
	slotRepo     repository.SlotRepository
	attemptRepo  repository.AttemptRepository
	approvalRepo repository.ApprovalRepository
	leaseRepo    repository.LeaseRepository
}

// NewDeployService 创建发布服务
func NewDeployService(db *gorm.DB, cfg *config.Config) *DeployService {
	return &DeployService{
		db:           db,
		cfg:          cfg,
		targetRepo:   repository.NewTargetRepository(db),
		slotRepo:     repository.NewSlotRepository(db),
		attemptRepo:  repository.NewAttemptRepository(db),
		approvalRepo: repository.NewApprovalRepository(db),
		leaseRepo:    repository.NewLeaseRepository(db),
	}
}

// DeployRequest 发布请求
type DeployRequest struct {
	Kind            string                 `json:"kind" binding:"required"`        // static/workload
	Environment     string                 `json:"environment" binding:"required"` // dev/test/staging/prod
	ArtifactVersion string                 `json:"artifact_version" binding:"required"`
	ArtifactPath    string                 `json:"artifact_path"` // 静态制品目录
	Values          map[string]interface{} `json:"values"`        // 工作负载helm values
}

// DeployResult 发布结果
type DeployResult struct {
	AttemptID       string `json:"attempt_id"`
	TargetName      string `json:"target_name"`
	Environment     string `json:"environment"`
	ArtifactVersion string `json:"artifact_version"`
	FromSlot        string `json:"from_slot"`
	ToSlot          string `json:"to_slot"`
	Outcome         string `json:"outcome"`
	ExitCode        int    `json:"exit_code"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Deploy 执行一次蓝绿发布, 同步阻塞到终态.
// 租约先于发布记录获取, 同目标并发发布在不留任何痕迹的情况下被拒.
func (s *DeployService) Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error) {
	target, err := s.targetRepo.FindByKindEnv(req.Kind, req.Environment)
	if err != nil {
		return nil, err
	}

	// 静态制品带本地目录时先做清单预检, 拿租约前失败
	if target.Kind == constants.TargetKindStatic && req.ArtifactPath != "" {
		m, err := deploy.LoadManifest(req.ArtifactPath)
		if err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "制品清单预检失败", err)
		}
		if m.Version != req.ArtifactVersion {
			return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest,
				fmt.Sprintf("制品清单版本 %s 与请求版本 %s 不一致", m.Version, req.ArtifactVersion), nil)
		}
	}

	attemptID := uuid.NewString()
	leaseTTL := utils.ParseDurationOr(s.cfg.Orchestrator.LeaseTTL, time.Hour)
	if err := s.leaseRepo.Acquire(ctx, target.ID, attemptID, leaseTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.leaseRepo.Release(context.Background(), target.ID, attemptID); err != nil {
			logger.Warn("释放目标租约失败", zap.Error(err))
		}
	}()

	// 切流计划来自配置, 入库前先校验
	stepPlan := make(model.Int64List, 0, len(s.cfg.Orchestrator.Steps))
	for _, step := range s.cfg.Orchestrator.Steps {
		stepPlan = append(stepPlan, int64(step))
	}
	if err := orchestrator.ValidateStepPlan(stepPlan); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "切流计划非法", err)
	}

	attempt := &model.DeploymentAttempt{
		AttemptID:       attemptID,
		TargetID:        target.ID,
		ArtifactVersion: req.ArtifactVersion,
		CurrentPhase:    constants.PhasePending,
		ApprovalState:   constants.ApprovalStatePending,
		StepPlan:        stepPlan,
		Outcome:         constants.OutcomeInProgress,
		StartedAt:       time.Now(),
	}
	if err := s.attemptRepo.Create(attempt); err != nil {
		return nil, err
	}

	logger.Info("发布开始",
		zap.String("attempt_id", attemptID),
		zap.String("target", target.Name),
		zap.String("env", target.Environment),
		zap.String("artifact_version", req.ArtifactVersion))

	return s.run(ctx, target, attempt, orchestrator.RunOptions{
		ArtifactPath: req.ArtifactPath,
		Values:       req.Values,
	})
}

// Resume 恢复一次未到终态的发布(进程中断后重入).
// 重新获取租约, 从中断阶段继续驱动.
func (s *DeployService) Resume(ctx context.Context, attemptID string, opts orchestrator.RunOptions) (*DeployResult, error) {
	attempt, err := s.attemptRepo.FindByAttemptID(attemptID)
	if err != nil {
		return nil, err
	}
	if constants.IsTerminalPhase(attempt.CurrentPhase) {
		return nil, pkgErrors.Wrap(pkgErrors.CodeConflict, "发布已到终态, 无法恢复", nil)
	}
	target, err := s.targetRepo.FindByID(attempt.TargetID, repository.WithPreload("Slots"))
	if err != nil {
		return nil, err
	}

	leaseTTL := utils.ParseDurationOr(s.cfg.Orchestrator.LeaseTTL, time.Hour)
	if err := s.leaseRepo.Acquire(ctx, target.ID, attempt.AttemptID, leaseTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.leaseRepo.Release(context.Background(), target.ID, attempt.AttemptID); err != nil {
			logger.Warn("释放目标租约失败", zap.Error(err))
		}
	}()

	logger.Info("恢复发布",
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("phase", attempt.CurrentPhase))

	return s.run(ctx, target, attempt, opts)
}

// GetAttempt 按发布编号查询发布记录.
func (s *DeployService) GetAttempt(ctx context.Context, attemptID string) (*model.DeploymentAttempt, error) {
	return s.attemptRepo.FindByAttemptID(attemptID)
}

func (s *DeployService) run(ctx context.Context, target *model.DeploymentTarget, attempt *model.DeploymentAttempt, opts orchestrator.RunOptions) (*DeployResult, error) {
	driver, err := s.buildDriver(target)
	if err != nil {
		return nil, err
	}
	source, err := s.buildMetricsSource()
	if err != nil {
		return nil, err
	}
	notifier := s.buildNotifier()

	orch := orchestrator.NewOrchestrator(
		logger.Log, driver, source, notifier,
		s.cfg.Orchestrator, s.cfg.Metrics,
		s.attemptRepo, s.slotRepo, s.targetRepo, s.approvalRepo,
	)

	if notifier != nil {
		msg := fmt.Sprintf("制品版本 %s 开始发布到 %s/%s", attempt.ArtifactVersion, target.Name, target.Environment)
		if err := notifier.SendAttemptNotification(ctx, attempt, notification.NotifyAttemptStart, msg); err != nil {
			logger.Warn("发送开始通知失败", zap.Error(err))
		}
	}

	outcome, runErr := orch.Run(ctx, target, attempt, opts)

	result := &DeployResult{
		AttemptID:       attempt.AttemptID,
		TargetName:      target.Name,
		Environment:     target.Environment,
		ArtifactVersion: attempt.ArtifactVersion,
		FromSlot:        attempt.FromSlot,
		ToSlot:          attempt.ToSlot,
		Outcome:         outcome,
		ExitCode:        constants.OutcomeToExitCode(outcome),
	}
	if attempt.ErrorMessage != nil {
		result.ErrorMessage = *attempt.ErrorMessage
	}
	if runErr != nil {
		logger.Error("发布未成功",
			zap.String("attempt_id", attempt.AttemptID),
			zap.String("outcome", outcome),
			zap.Error(runErr))
	}
	return result, nil
}

// buildDriver 按目标类型组装槽位驱动, 支持mock覆盖做本地联调
func (s *DeployService) buildDriver(target *model.DeploymentTarget) (deploy.Driver, error) {
	kind := target.Kind
	if s.cfg.Driver.Override != "" {
		kind = s.cfg.Driver.Override
	}

	switch kind {
	case constants.TargetKindStatic:
		bucketCfg := s.cfg.Driver.Bucket
		bucketCfg.SecretKey = s.decryptSecret(bucketCfg.SecretKey)
		return deploy.NewBucketDriver(bucketCfg)
	case constants.TargetKindWorkload:
		helmCfg := s.cfg.Driver.Helm
		helmCfg.Password = s.decryptSecret(helmCfg.Password)
		return deploy.NewHelmDriver(helmCfg), nil
	case constants.TargetKindMock:
		// 内存驱动按库表槽位预置实况
		mock := deploy.NewMockDriver()
		slots, err := s.slotRepo.FindByTarget(target.ID)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			mock.SetSlotState(slot.SlotName, slot.Enabled, slot.TrafficWeight)
		}
		return mock, nil
	default:
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, fmt.Sprintf("不支持的目标类型: %s", kind), nil)
	}
}

func (s *DeployService) buildMetricsSource() (metrics.Source, error) {
	switch s.cfg.Metrics.Backend {
	case "prometheus":
		return metrics.NewPromSource(s.cfg.Metrics.Address)
	case "mock", "":
		return metrics.NewMockSource(), nil
	default:
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, fmt.Sprintf("不支持的指标后端: %s", s.cfg.Metrics.Backend), nil)
	}
}

func (s *DeployService) buildNotifier() notification.Notifier {
	if !s.cfg.Notification.Enabled {
		return notification.NewLogNotifier(logger.Log)
	}
	switch s.cfg.Notification.Provider {
	case "lark":
		return notification.NewLarkNotifier(s.cfg.Notification.LarkWebhook, true, logger.Log)
	default:
		return notification.NewLogNotifier(logger.Log)
	}
}

// decryptSecret 配置中的密钥密文解密, 明文配置原样返回
func (s *DeployService) decryptSecret(value string) string {
	if value == "" {
		return value
	}
	plain, err := crypto.Decrypt(value)
	if err != nil {
		return value
	}
	return plain
}
