package orchestrator

import (
	"context"
	"fmt"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"

	"go.uber.org/zap"
)

// HandleFinalizing 角色互换提交: finalizing -> succeeded.
// 守卫: 必须存在权重100且通过的末次采样, 且驱动实况一致.
// 槽位行与目标记录到这里才落库, 目标记录走乐观并发提交.
func (o *Orchestrator) HandleFinalizing(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	if err := o.ensureSlots(st); err != nil {
		return "", nil, err
	}

	last := st.attempt.HealthHistory.Last()
	if last == nil || last.Step != constants.WeightFull || !last.Passed {
		return "", nil, fmt.Errorf("缺少权重100的通过采样, 拒绝提交角色互换")
	}

	live, err := o.driver.SlotState(ctx, st.ref(st.to))
	if err != nil {
		return "", nil, fmt.Errorf("复核槽位实况失败: %w", err)
	}
	if !live.Enabled || live.Weight != constants.WeightFull {
		return "", nil, fmt.Errorf("槽位 %s 实况(enabled=%v weight=%d)与预期不符, 拒绝提交",
			st.to.SlotName, live.Enabled, live.Weight)
	}

	// 槽位行翻转
	st.to.TrafficWeight = constants.WeightFull
	st.to.Status = constants.SlotStatusActive
	version := st.attempt.ArtifactVersion
	st.to.LastArtifactVersion = &version
	st.from.TrafficWeight = constants.WeightNone
	st.from.Status = constants.SlotStatusIdle

	if err := o.slotRepo.Save(ctx, st.to); err != nil {
		return "", nil, err
	}
	if err := o.slotRepo.Save(ctx, st.from); err != nil {
		return "", nil, err
	}

	// 目标记录乐观提交. 版本冲突说明有并发写入者,
	// 此时流量归属已不可判定, 按二义终止交人工处理.
	st.target.ActiveSlotID = &st.to.ID
	st.target.LastAttemptID = &st.attempt.AttemptID
	outcome := constants.OutcomeSucceeded
	st.target.LastAttemptOutcome = &outcome
	if err := o.targetRepo.Commit(ctx, st.target); err != nil {
		if err == pkgErrors.ErrConflict {
			return "", nil, pkgErrors.NewAmbiguousState(st.target.ID, "目标记录版本冲突, 存在并发写入者")
		}
		return "", nil, err
	}

	o.logger.Info("角色互换已提交",
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("active_slot", st.to.SlotName),
		zap.Int64("target_version", st.target.Version))

	return constants.PhaseSucceeded, func(a *model.DeploymentAttempt) {
		a.SetErrorMessage("")
	}, nil
}
