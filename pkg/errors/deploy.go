package errors

import (
	"errors"
	"fmt"
)

// 发布编排错误分类.
// 在第一次非零流量切换之前发生的错误直接终止, 不需要回滚;
// 之后发生的错误一律走回滚路径.

// AmbiguousStateError 槽位状态二义: 两个槽位同时活动或都不活动.
// 不允许自动修复, 必须人工介入.
type AmbiguousStateError struct {
	TargetID int64
	Detail   string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("目标 %d 槽位状态二义: %s", e.TargetID, e.Detail)
}

// NewAmbiguousState 创建槽位二义错误
func NewAmbiguousState(targetID int64, detail string) *AmbiguousStateError {
	return &AmbiguousStateError{TargetID: targetID, Detail: detail}
}

// IsAmbiguousState 是否槽位二义错误
func IsAmbiguousState(err error) bool {
	var e *AmbiguousStateError
	return errors.As(err, &e)
}

// DeployError 制品部署失败, Retryable 标记是否值得退避重试
// (限流/网络抖动可重试, 鉴权失败/制品损坏不可).
type DeployError struct {
	Retryable bool
	Err       error
}

func (e *DeployError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("部署失败(可重试): %v", e.Err)
	}
	return fmt.Sprintf("部署失败(不可重试): %v", e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// NewDeployError 包装部署错误
func NewDeployError(retryable bool, err error) *DeployError {
	return &DeployError{Retryable: retryable, Err: err}
}

// IsRetryableDeploy 部署错误是否可重试
func IsRetryableDeploy(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// 编排哨兵错误
var (
	// ErrPropagationTimeout 制品在超时内未达到可服务状态
	ErrPropagationTimeout = errors.New("制品传播等待超时")

	// ErrApprovalDenied 审批被明确拒绝
	ErrApprovalDenied = errors.New("审批被拒绝")

	// ErrApprovalTimeout 审批超时, 视同拒绝
	ErrApprovalTimeout = errors.New("审批等待超时")

	// ErrHealthCheckFailed 某一步流量下健康检查未通过
	ErrHealthCheckFailed = errors.New("健康检查未通过")

	// ErrAttemptInProgress 目标上已有发布在进行(租约被持有)
	ErrAttemptInProgress = errors.New("目标上已有发布进行中")
)

// IsPreTraffic 错误是否属于切流量之前的失败类别.
// 这类失败(部署失败/传播超时/审批拒绝或超时/槽位二义)无需回滚.
func IsPreTraffic(err error) bool {
	switch {
	case errors.Is(err, ErrPropagationTimeout),
		errors.Is(err, ErrApprovalDenied),
		errors.Is(err, ErrApprovalTimeout),
		errors.Is(err, ErrAttemptInProgress):
		return true
	}
	if IsAmbiguousState(err) {
		return true
	}
	var de *DeployError
	return errors.As(err, &de)
}
