package orchestrator

import (
	"context"
	"time"

	"bluegreen-cd/internal/adapter/deploy"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
	"bluegreen-cd/pkg/retry"
	"bluegreen-cd/pkg/utils"

	"go.uber.org/zap"
)

// HandleDeploying 制品部署: deploying -> awaiting_propagation.
// 仅可重试类错误做指数退避重试, 鉴权失败/制品损坏立即终止.
func (o *Orchestrator) HandleDeploying(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	if err := o.ensureSlots(st); err != nil {
		return "", nil, err
	}

	param := &deploy.DeployParam{
		Slot:            st.ref(st.to),
		ArtifactVersion: st.attempt.ArtifactVersion,
		ArtifactPath:    st.opts.ArtifactPath,
		Values:          st.opts.Values,
	}

	cfg := retry.Config{
		Interval:    utils.ParseDurationOr(o.cfg.Deploy.InitialBackoff, 2*time.Second),
		MaxAttempts: o.cfg.Deploy.MaxRetries + 1,
	}
	attempts := 0
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		attempts++
		return o.driver.Deploy(ctx, param)
	}, pkgErrors.IsRetryableDeploy)
	if err != nil {
		return "", nil, err
	}

	o.logger.Info("制品部署完成",
		zap.String("attempt_id", st.attempt.AttemptID),
		zap.String("slot", st.to.SlotName),
		zap.String("artifact_version", st.attempt.ArtifactVersion),
		zap.Int("attempts", attempts))

	return constants.PhaseAwaitingPropagation, nil, nil
}
