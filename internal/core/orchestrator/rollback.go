package orchestrator

import (
	"context"
	"fmt"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"

	"go.uber.org/zap"
)

// HandleRollingBack 回滚: rolling_back -> rolled_back.
// 幂等: 先读实况, 旧槽位已承接全部流量时不再重复写权重.
// 回滚自身失败不再自动处置, 由状态机按失败终止交人工介入.
func (o *Orchestrator) HandleRollingBack(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	if err := o.ensureSlots(st); err != nil {
		return "", nil, err
	}

	log := o.logger.With(
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("restore_slot", st.from.SlotName))

	live, err := o.driver.SlotState(ctx, st.ref(st.from))
	if err != nil {
		return "", nil, fmt.Errorf("读取旧槽位实况失败: %w", err)
	}

	if live.Enabled && live.Weight == constants.WeightFull {
		log.Info("旧槽位已承接全部流量, 跳过权重恢复")
	} else {
		if !live.Enabled {
			if err := o.driver.SetEnabled(ctx, st.ref(st.from), true); err != nil {
				return "", nil, fmt.Errorf("重新启用旧槽位失败: %w", err)
			}
		}
		weights := map[string]int{
			st.from.SlotName: constants.WeightFull,
			st.to.SlotName:   constants.WeightNone,
		}
		if err := o.driver.SetWeights(ctx, st.target.Name, st.target.Environment, weights); err != nil {
			return "", nil, fmt.Errorf("恢复流量权重失败: %w", err)
		}
		log.Info("流量已恢复到旧槽位")
	}

	// 槽位行: 旧槽位继续活动, 新槽位标记失败待排查
	st.from.TrafficWeight = constants.WeightFull
	st.from.Status = constants.SlotStatusActive
	st.to.TrafficWeight = constants.WeightNone
	st.to.Status = constants.SlotStatusFailed

	if err := o.slotRepo.Save(ctx, st.from); err != nil {
		return "", nil, err
	}
	if err := o.slotRepo.Save(ctx, st.to); err != nil {
		return "", nil, err
	}

	// 目标记录: 活动槽位不变, 只记录本次发布结果
	st.target.LastAttemptID = &st.attempt.AttemptID
	outcome := constants.OutcomeRolledBack
	st.target.LastAttemptOutcome = &outcome
	if err := o.targetRepo.Commit(ctx, st.target); err != nil {
		return "", nil, fmt.Errorf("提交目标记录失败: %w", err)
	}

	return constants.PhaseRolledBack, nil, nil
}
