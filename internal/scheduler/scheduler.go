package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/repository"
	"bluegreen-cd/pkg/utils"
)

// Scheduler 后台清理任务调度器.
// 周期清理过期的目标租约, 并上报长时间未到终态的发布(疑似进程中断, 需人工resume).
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	leaseRepo     repository.LeaseRepository
	attemptRepo   repository.AttemptRepository
	staleAfter    time.Duration
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// NewScheduler 创建调度器
func NewScheduler(db *gorm.DB, logger *zap.Logger, cfg *config.Config) *Scheduler {
	// 创建 cron 实例（带秒级支持）
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:          c,
		logger:        logger,
		leaseRepo:     repository.NewLeaseRepository(db),
		attemptRepo:   repository.NewAttemptRepository(db),
		staleAfter:    utils.ParseDurationOr(cfg.Janitor.StaleAfter, 2*time.Hour),
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(cfg *config.Config) error {
	log := s.logger.Sugar()

	log.Info("启动后台清理任务调度器...")

	// cron 表达式格式: 秒 分 时 日 月 周
	cronExpr := cfg.Janitor.Cron
	if cronExpr == "" {
		cronExpr = "0 */5 * * * *" // 默认: 每5分钟
		log.Warnf("未配置janitor.cron，使用默认值: %s", cronExpr)
	}

	entryID, err := s.cron.AddFunc(cronExpr, s.runJanitor)
	if err != nil {
		log.Errorf("注册清理任务: %v 失败: %v", cronExpr, err)
		return err
	}

	s.cronSchedules["janitor"] = entryID
	log.Infof("清理任务已注册: %s entry_id=%d", cronExpr, entryID)

	// 启动 cron
	s.cron.Start()
	log.Info("后台清理任务调度器启动成功")

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止后台清理任务调度器...")

	// 停止 cron（等待正在执行的任务完成）
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("后台清理任务调度器已停止")
}

// runJanitor 执行一轮清理
func (s *Scheduler) runJanitor() {
	log := s.logger.Sugar()

	swept, err := s.leaseRepo.SweepExpired(context.Background(), time.Now())
	if err != nil {
		log.Errorf("清理过期租约失败: %v", err)
	} else if swept > 0 {
		log.Infof("已清理过期租约: %d 条", swept)
	}

	stale, err := s.attemptRepo.ListStale(time.Now().Add(-s.staleAfter))
	if err != nil {
		log.Errorf("查询疑似中断发布失败: %v", err)
		return
	}
	if len(stale) > 0 {
		ids := lo.Map(stale, func(a *model.DeploymentAttempt, _ int) string { return a.AttemptID })
		log.Warnw("发现疑似中断的发布, 请人工确认后resume",
			"count", len(stale),
			"attempt_ids", ids)
	}
}

// TriggerJanitor 手动触发一轮清理（用于测试或手动触发）
func (s *Scheduler) TriggerJanitor() {
	s.logger.Info("手动触发清理任务")
	s.runJanitor()
}
