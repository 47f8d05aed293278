package orchestrator

import (
	"context"
	"fmt"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"

	"go.uber.org/zap"
)

// HandlePending 槽位解析: pending -> deploying.
// 活动槽位以驱动实况为准: 启用且权重100. 恰好一个活动且另一个权重为0
// 才允许发布, 其余一律判定二义, 不做任何写操作.
func (o *Orchestrator) HandlePending(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	slots, err := o.slotRepo.FindByTarget(st.target.ID)
	if err != nil {
		return "", nil, err
	}
	if len(slots) != 2 {
		return "", nil, pkgErrors.NewAmbiguousState(st.target.ID,
			fmt.Sprintf("槽位数量为 %d, 预期恰好2个", len(slots)))
	}

	var active, standby *model.Slot
	var standbyWeight int
	for _, slot := range slots {
		live, err := o.driver.SlotState(ctx, st.ref(slot))
		if err != nil {
			return "", nil, fmt.Errorf("读取槽位 %s 实况失败: %w", slot.SlotName, err)
		}
		o.logger.Debug("槽位实况",
			zap.String("slot", slot.SlotName),
			zap.Bool("enabled", live.Enabled),
			zap.Int("weight", live.Weight))

		if live.Enabled && live.Weight == constants.WeightFull {
			if active != nil {
				return "", nil, pkgErrors.NewAmbiguousState(st.target.ID, "两个槽位同时承接全部流量")
			}
			active = slot
		} else {
			if standby != nil {
				return "", nil, pkgErrors.NewAmbiguousState(st.target.ID, "没有槽位承接全部流量")
			}
			standby = slot
			standbyWeight = live.Weight
		}
	}
	if active == nil || standby == nil {
		return "", nil, pkgErrors.NewAmbiguousState(st.target.ID, "无法确定活动槽位")
	}
	if standbyWeight != constants.WeightNone {
		return "", nil, pkgErrors.NewAmbiguousState(st.target.ID,
			fmt.Sprintf("非活动槽位 %s 残留权重 %d", standby.SlotName, standbyWeight))
	}

	// 恢复运行: 已有解析结果必须与实况一致
	if st.attempt.FromSlot != "" && (st.attempt.FromSlot != active.SlotName || st.attempt.ToSlot != standby.SlotName) {
		return "", nil, pkgErrors.NewAmbiguousState(st.target.ID,
			fmt.Sprintf("发布记录槽位 %s->%s 与实况 %s->%s 不符",
				st.attempt.FromSlot, st.attempt.ToSlot, active.SlotName, standby.SlotName))
	}

	st.from = active
	st.to = standby

	o.logger.Info("槽位解析完成",
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("from", active.SlotName),
		zap.String("to", standby.SlotName))

	return constants.PhaseDeploying, func(a *model.DeploymentAttempt) {
		a.FromSlot = active.SlotName
		a.ToSlot = standby.SlotName
	}, nil
}
