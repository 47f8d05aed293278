package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bluegreen-cd/internal/adapter/notification"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
	"bluegreen-cd/pkg/retry"
	"bluegreen-cd/pkg/utils"

	"go.uber.org/zap"
)

// HandleAwaitingApproval 审批闸门: awaiting_approval -> shifting.
// 拒绝与超时等同处理, 都在流量未动的情况下直接终止.
func (o *Orchestrator) HandleAwaitingApproval(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	if o.cfg.SkipApproval {
		o.logger.Info("免审批放行", zap.String("attempt_id", st.attempt.AttemptID))
		return constants.PhaseShifting, func(a *model.DeploymentAttempt) {
			a.ApprovalState = constants.ApprovalStateSkipped
		}, nil
	}

	// 幂等创建审批请求
	req := &model.ApprovalRequest{
		AttemptID:   st.attempt.AttemptID,
		TargetID:    st.target.ID,
		State:       constants.ApprovalStatePending,
		RequestedAt: time.Now(),
	}
	if err := o.approvalRepo.Create(ctx, req); err != nil && err != pkgErrors.ErrRecordExists {
		return "", nil, err
	}

	if o.notifier != nil {
		msg := fmt.Sprintf("目标 %s/%s 等待审批放行", st.target.Name, st.target.Environment)
		if err := o.notifier.SendAttemptNotification(ctx, st.attempt, notification.NotifyApprovalPending, msg); err != nil {
			o.logger.Warn("发送审批通知失败", zap.Error(err))
		}
	}

	cfg := retry.Config{
		Interval: utils.ParseDurationOr(o.cfg.Approval.Interval, 10*time.Second),
		Timeout:  utils.ParseDurationOr(o.cfg.Approval.Timeout, 30*time.Minute),
	}

	var decided *model.ApprovalRequest
	err := retry.Poll(ctx, cfg, func(ctx context.Context) (bool, error) {
		cur, err := o.approvalRepo.FindByAttemptID(ctx, st.attempt.AttemptID)
		if err != nil {
			return false, err
		}
		if cur.State == constants.ApprovalStatePending {
			return false, nil
		}
		decided = cur
		return true, nil
	})

	if errors.Is(err, retry.ErrExhausted) {
		// 超时落库, 压哨决策竞争时以已写入的决策为准
		if derr := o.approvalRepo.Decide(ctx, st.attempt.AttemptID,
			constants.ApprovalStateTimedOut, "system", "审批等待超时"); derr != nil {
			cur, ferr := o.approvalRepo.FindByAttemptID(ctx, st.attempt.AttemptID)
			if ferr == nil && cur.State == constants.ApprovalStateApproved {
				decided = cur
			}
		}
		if decided == nil {
			return "", func(a *model.DeploymentAttempt) {
				a.ApprovalState = constants.ApprovalStateTimedOut
			}, pkgErrors.ErrApprovalTimeout
		}
	} else if err != nil {
		return "", nil, err
	}

	switch decided.State {
	case constants.ApprovalStateApproved:
		o.logger.Info("审批通过",
			zap.String("attempt_id", st.attempt.AttemptID),
			zap.Stringp("approver", decided.Approver))
		return constants.PhaseShifting, func(a *model.DeploymentAttempt) {
			a.ApprovalState = constants.ApprovalStateApproved
		}, nil
	case constants.ApprovalStateDenied:
		return "", func(a *model.DeploymentAttempt) {
			a.ApprovalState = constants.ApprovalStateDenied
		}, pkgErrors.ErrApprovalDenied
	default:
		return "", func(a *model.DeploymentAttempt) {
			a.ApprovalState = decided.State
		}, pkgErrors.ErrApprovalTimeout
	}
}
