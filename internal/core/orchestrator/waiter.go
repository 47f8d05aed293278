package orchestrator

import (
	"context"
	"errors"
	"time"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
	"bluegreen-cd/pkg/retry"
	"bluegreen-cd/pkg/utils"

	"go.uber.org/zap"
)

// HandleAwaitingPropagation 传播等待: awaiting_propagation -> awaiting_approval.
// 固定间隔探测制品是否可服务, 超时按传播超时终止(此时流量未动).
func (o *Orchestrator) HandleAwaitingPropagation(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	if err := o.ensureSlots(st); err != nil {
		return "", nil, err
	}

	cfg := retry.Config{
		Interval: utils.ParseDurationOr(o.cfg.Propagation.Interval, 5*time.Second),
		Timeout:  utils.ParseDurationOr(o.cfg.Propagation.Timeout, 5*time.Minute),
	}

	log := o.logger.With(
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("slot", st.to.SlotName))

	err := retry.Poll(ctx, cfg, func(ctx context.Context) (bool, error) {
		if err := o.driver.Ready(ctx, st.ref(st.to)); err != nil {
			log.Debug("制品尚未可服务", zap.Error(err))
			return false, nil
		}
		return true, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return "", nil, pkgErrors.ErrPropagationTimeout
	}
	if err != nil {
		return "", nil, err
	}

	log.Info("制品已可服务")
	return constants.PhaseAwaitingApproval, nil, nil
}
