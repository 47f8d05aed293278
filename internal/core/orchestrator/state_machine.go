package orchestrator

import (
	"context"
	"fmt"
	"time"

	"bluegreen-cd/internal/adapter/deploy"
	"bluegreen-cd/internal/adapter/metrics"
	"bluegreen-cd/internal/adapter/notification"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/repository"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"

	"go.uber.org/zap"
)

// Orchestrator 蓝绿发布状态机.
// 每个阶段一个处理器, Run同步驱动到终态. 调用方必须已持有目标租约.
type Orchestrator struct {
	logger   *zap.Logger
	driver   deploy.Driver
	metrics  metrics.Source
	notifier notification.Notifier

	cfg   config.OrchestratorConfig
	gates config.MetricsConfig

	attemptRepo  repository.AttemptRepository
	slotRepo     repository.SlotRepository
	targetRepo   repository.TargetRepository
	approvalRepo repository.ApprovalRepository

	handlers map[string]Handler
}

func NewOrchestrator(
	logger *zap.Logger,
	driver deploy.Driver,
	source metrics.Source,
	notifier notification.Notifier,
	cfg config.OrchestratorConfig,
	gates config.MetricsConfig,
	attemptRepo repository.AttemptRepository,
	slotRepo repository.SlotRepository,
	targetRepo repository.TargetRepository,
	approvalRepo repository.ApprovalRepository,
) *Orchestrator {
	o := &Orchestrator{
		logger:       logger,
		driver:       driver,
		metrics:      source,
		notifier:     notifier,
		cfg:          cfg,
		gates:        gates,
		attemptRepo:  attemptRepo,
		slotRepo:     slotRepo,
		targetRepo:   targetRepo,
		approvalRepo: approvalRepo,
		handlers:     make(map[string]Handler),
	}
	o.registerHandlers()
	return o
}

// RunOptions 单次发布的制品输入
type RunOptions struct {
	ArtifactPath string                 // 静态制品目录
	Values       map[string]interface{} // 工作负载helm values
}

// runState 单次Run内的共享状态, 槽位解析结果在阶段间传递
type runState struct {
	target  *model.DeploymentTarget
	attempt *model.DeploymentAttempt
	from    *model.Slot // 发布前活动槽位
	to      *model.Slot // 发布目标槽位
	opts    RunOptions
}

// ref 槽位定位信息
func (st *runState) ref(slot *model.Slot) deploy.SlotRef {
	return deploy.SlotRef{
		TargetName:        st.target.Name,
		Environment:       st.target.Environment,
		Kind:              st.target.Kind,
		SlotName:          slot.SlotName,
		BackingResourceID: slot.BackingResourceID,
	}
}

// Run 同步驱动发布到终态, 返回发布结果.
// 可从任意非终态恢复(进程中断后重入).
func (o *Orchestrator) Run(ctx context.Context, target *model.DeploymentTarget, attempt *model.DeploymentAttempt, opts RunOptions) (string, error) {
	st := &runState{target: target, attempt: attempt, opts: opts}
	log := o.logger.With(
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("target", target.Name),
		zap.String("env", target.Environment),
	)

	var runErr error
	for !constants.IsTerminalPhase(attempt.CurrentPhase) {
		handler, ok := o.handlers[attempt.CurrentPhase]
		if !ok {
			runErr = fmt.Errorf("未知发布阶段: %s", attempt.CurrentPhase)
			attempt.SetErrorMessage(runErr.Error())
			attempt.CurrentPhase = o.routeFailure(st, runErr)
			o.finishIfTerminal(attempt)
			_ = o.attemptRepo.Save(ctx, attempt)
			break
		}

		from := attempt.CurrentPhase
		next, updateFunc, err := handler.Handle(ctx, st)
		if err != nil {
			if runErr == nil {
				runErr = err
				attempt.SetErrorMessage(err.Error())
			} else if attempt.ErrorMessage != nil {
				// 回滚阶段的错误不覆盖首因, 追加记录
				attempt.SetErrorMessage(fmt.Sprintf("%s; 回滚失败: %v", *attempt.ErrorMessage, err))
			}
			next = o.routeFailure(st, err)
			log.Error("阶段处理失败",
				zap.String("phase", from),
				zap.String("next", next),
				zap.Error(err))
		}

		if updateFunc != nil {
			updateFunc(attempt)
		}
		if next != "" && next != attempt.CurrentPhase {
			attempt.CurrentPhase = next
			log.Info(fmt.Sprintf("[Attempt SM] %s 阶段变更: %v -> %v", attempt.AttemptID, from, next))
		}
		o.finishIfTerminal(attempt)

		if saveErr := o.attemptRepo.Save(ctx, attempt); saveErr != nil {
			log.Error("保存发布记录失败", zap.Error(saveErr))
			if runErr == nil {
				runErr = saveErr
			}
			break
		}
	}

	o.notifyOutcome(ctx, attempt)
	return attempt.Outcome, runErr
}

// routeFailure 错误路由: 流量已动走回滚, 否则直接终止.
// 槽位二义与回滚自身失败永不自动处置.
func (o *Orchestrator) routeFailure(st *runState, err error) string {
	if st.attempt.CurrentPhase == constants.PhaseRollingBack {
		return constants.PhaseFailed
	}
	if pkgErrors.IsAmbiguousState(err) {
		return constants.PhaseFailed
	}
	if st.attempt.TrafficMoved {
		return constants.PhaseRollingBack
	}
	return constants.PhaseFailed
}

// finishIfTerminal 终态落定结果与结束时间
func (o *Orchestrator) finishIfTerminal(attempt *model.DeploymentAttempt) {
	if !constants.IsTerminalPhase(attempt.CurrentPhase) {
		return
	}
	switch attempt.CurrentPhase {
	case constants.PhaseSucceeded:
		attempt.Outcome = constants.OutcomeSucceeded
	case constants.PhaseRolledBack:
		attempt.Outcome = constants.OutcomeRolledBack
	default:
		attempt.Outcome = constants.OutcomeFailed
	}
	if attempt.FinishedAt == nil {
		now := time.Now()
		attempt.FinishedAt = &now
	}
}

// ensureSlots 恢复运行时按发布记录回填槽位解析结果
func (o *Orchestrator) ensureSlots(st *runState) error {
	if st.from != nil && st.to != nil {
		return nil
	}
	if st.attempt.FromSlot == "" || st.attempt.ToSlot == "" {
		return pkgErrors.NewAmbiguousState(st.target.ID, "发布记录缺少槽位解析结果")
	}
	slots, err := o.slotRepo.FindByTarget(st.target.ID)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		switch slot.SlotName {
		case st.attempt.FromSlot:
			st.from = slot
		case st.attempt.ToSlot:
			st.to = slot
		}
	}
	if st.from == nil || st.to == nil {
		return pkgErrors.NewAmbiguousState(st.target.ID,
			fmt.Sprintf("槽位 %s/%s 不存在", st.attempt.FromSlot, st.attempt.ToSlot))
	}
	return nil
}

func (o *Orchestrator) notifyOutcome(ctx context.Context, attempt *model.DeploymentAttempt) {
	if o.notifier == nil {
		return
	}
	var notifyType notification.NotificationType
	var message string
	switch attempt.Outcome {
	case constants.OutcomeSucceeded:
		notifyType = notification.NotifyAttemptSucceeded
		message = "发布成功, 新槽位已承接全部流量"
	case constants.OutcomeRolledBack:
		notifyType = notification.NotifyRolledBack
		message = "健康检查未通过, 流量已回退到原槽位"
	case constants.OutcomeFailed:
		notifyType = notification.NotifyAttemptFailed
		message = "发布失败"
	default:
		return
	}
	if attempt.ErrorMessage != nil {
		message = fmt.Sprintf("%s: %s", message, *attempt.ErrorMessage)
	}
	if err := o.notifier.SendAttemptNotification(ctx, attempt, notifyType, message); err != nil {
		o.logger.Warn("发送结果通知失败", zap.Error(err))
	}
}
