package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableDeploy(t *testing.T) {
	retryable := NewDeployError(true, errors.New("503 SlowDown"))
	fatal := NewDeployError(false, errors.New("403 AccessDenied"))

	assert.True(t, IsRetryableDeploy(retryable))
	assert.False(t, IsRetryableDeploy(fatal))
	assert.False(t, IsRetryableDeploy(errors.New("plain")))
	assert.False(t, IsRetryableDeploy(nil))

	// 包装后仍可判定
	wrapped := fmt.Errorf("部署槽位失败: %w", retryable)
	assert.True(t, IsRetryableDeploy(wrapped))
}

func TestAmbiguousState(t *testing.T) {
	err := NewAmbiguousState(7, "两个槽位同时承接全部流量")
	assert.True(t, IsAmbiguousState(err))
	assert.Contains(t, err.Error(), "两个槽位同时承接全部流量")

	wrapped := fmt.Errorf("槽位解析: %w", err)
	assert.True(t, IsAmbiguousState(wrapped))
	assert.False(t, IsAmbiguousState(errors.New("other")))
}

func TestIsPreTraffic(t *testing.T) {
	pre := []error{
		ErrPropagationTimeout,
		ErrApprovalDenied,
		ErrApprovalTimeout,
		ErrAttemptInProgress,
		NewAmbiguousState(1, "detail"),
		NewDeployError(false, errors.New("corrupt artifact")),
		fmt.Errorf("wrapped: %w", ErrApprovalDenied),
	}
	for _, err := range pre {
		assert.True(t, IsPreTraffic(err), "%v", err)
	}

	assert.False(t, IsPreTraffic(ErrHealthCheckFailed))
	assert.False(t, IsPreTraffic(errors.New("db down")))
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeDatabaseError, "查询租约失败", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "查询租约失败")
}
