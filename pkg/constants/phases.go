package constants

import "fmt"

// AttemptPhase 单次发布的阶段
const (
	PhasePending             = "pending"              // 已创建, 未解析槽位
	PhaseDeploying           = "deploying"            // 制品部署到非活动槽位
	PhaseAwaitingPropagation = "awaiting_propagation" // 等待制品可服务
	PhaseAwaitingApproval    = "awaiting_approval"    // 等待人工审批
	PhaseShifting            = "shifting"             // 逐步切流量
	PhaseFinalizing          = "finalizing"           // 提交新活动槽位
	PhaseRollingBack         = "rolling_back"         // 回滚中
	PhaseSucceeded           = "succeeded"            // 终态: 成功
	PhaseRolledBack          = "rolled_back"          // 终态: 已回滚
	PhaseFailed              = "failed"               // 终态: 切流量前失败
)

// IsTerminalPhase 是否终态
func IsTerminalPhase(phase string) bool {
	switch phase {
	case PhaseSucceeded, PhaseRolledBack, PhaseFailed:
		return true
	}
	return false
}

// AttemptOutcome 发布结果
const (
	OutcomeInProgress = "in_progress"
	OutcomeSucceeded  = "succeeded"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// SlotStatus 槽位状态
const (
	SlotStatusIdle        = "idle"
	SlotStatusDeploying   = "deploying"
	SlotStatusVerifying   = "verifying"
	SlotStatusActive      = "active"
	SlotStatusRollingBack = "rolling_back"
	SlotStatusFailed      = "failed"
)

var phaseOrder = map[string]int{
	PhasePending:             0,
	PhaseDeploying:           10,
	PhaseAwaitingPropagation: 20,
	PhaseAwaitingApproval:    30,
	PhaseShifting:            40,
	PhaseFinalizing:          50,
	PhaseSucceeded:           60,
	PhaseRollingBack:         90,
	PhaseRolledBack:          91,
	PhaseFailed:              92,
}

// PhaseOrder 阶段序号, 未知阶段返回 -1
func PhaseOrder(phase string) int {
	if n, ok := phaseOrder[phase]; ok {
		return n
	}
	return -1
}

// OutcomeToExitCode 发布结果 → CLI 退出码
func OutcomeToExitCode(outcome string) int {
	switch outcome {
	case OutcomeSucceeded:
		return ExitSuccess
	case OutcomeRolledBack:
		return ExitRolledBack
	default:
		return ExitFatal
	}
}

// NormalizeOutcome 校验发布结果取值
func NormalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomeInProgress, OutcomeSucceeded, OutcomeRolledBack, OutcomeFailed:
		return outcome
	}
	return fmt.Sprintf("Unknown(%s)", outcome)
}
