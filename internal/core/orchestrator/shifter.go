package orchestrator

import (
	"context"
	"fmt"
	"time"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
	"bluegreen-cd/pkg/retry"
	"bluegreen-cd/pkg/utils"

	"go.uber.org/zap"
)

// ValidateStepPlan 校验切流计划: 严格递增, 以0开始, 以100结束
func ValidateStepPlan(steps []int64) error {
	if len(steps) < 2 {
		return fmt.Errorf("切流计划至少包含2步")
	}
	if steps[0] != constants.WeightNone {
		return fmt.Errorf("切流计划必须以0开始, 实际为 %d", steps[0])
	}
	if steps[len(steps)-1] != constants.WeightFull {
		return fmt.Errorf("切流计划必须以100结束, 实际为 %d", steps[len(steps)-1])
	}
	for i := 1; i < len(steps); i++ {
		if steps[i] <= steps[i-1] {
			return fmt.Errorf("切流计划必须严格递增: %d -> %d", steps[i-1], steps[i])
		}
		if steps[i] > constants.WeightFull {
			return fmt.Errorf("切流步长越界: %d", steps[i])
		}
	}
	return nil
}

// HandleShifting 逐步切流: shifting -> finalizing.
// 每步写入互补权重(新槽位s, 旧槽位100-s), 静置后健康采样, 未通过即失败.
// 首次非零权重写入前先落库TrafficMoved, 保证中断后失败路由正确.
func (o *Orchestrator) HandleShifting(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	if err := o.ensureSlots(st); err != nil {
		return "", nil, err
	}
	steps := st.attempt.StepPlan
	if err := ValidateStepPlan(steps); err != nil {
		return "", nil, err
	}

	settle := utils.ParseDurationOr(o.cfg.SettleInterval, 30*time.Second)
	log := o.logger.With(
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("from", st.from.SlotName),
		zap.String("to", st.to.SlotName))

	// 恢复运行: 已采样的步跳过
	start := len(st.attempt.HealthHistory)
	if start > 0 {
		log.Info("从中断处继续切流", zap.Int("completed_steps", start))
	}

	for i := start; i < len(steps); i++ {
		step := int(steps[i])

		if step > constants.WeightNone && !st.attempt.TrafficMoved {
			st.attempt.TrafficMoved = true
			if err := o.attemptRepo.Save(ctx, st.attempt); err != nil {
				return "", nil, err
			}
		}

		weights := map[string]int{
			st.to.SlotName:   step,
			st.from.SlotName: constants.WeightFull - step,
		}
		if err := o.driver.SetWeights(ctx, st.target.Name, st.target.Environment, weights); err != nil {
			return "", nil, fmt.Errorf("切流到 %d%% 失败: %w", step, err)
		}
		log.Info("流量权重已写入", zap.Int("to_weight", step), zap.Int("from_weight", constants.WeightFull-step))

		if err := retry.Sleep(ctx, settle); err != nil {
			return "", nil, err
		}

		sample, err := o.verifySlot(ctx, st, step)
		if err != nil {
			return "", nil, fmt.Errorf("健康采样失败: %w", err)
		}
		st.attempt.HealthHistory = append(st.attempt.HealthHistory, *sample)
		if err := o.attemptRepo.Save(ctx, st.attempt); err != nil {
			return "", nil, err
		}

		if !sample.Passed {
			return "", nil, fmt.Errorf("%w: 权重 %d%% 时错误率 %.4f P95 %.1fms",
				pkgErrors.ErrHealthCheckFailed, step, sample.ErrorRate, sample.LatencyP95Ms)
		}
	}

	return constants.PhaseFinalizing, nil, nil
}
