package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bluegreen-cd/internal/adapter/deploy"
	"bluegreen-cd/internal/adapter/metrics"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/repository"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
)

// === 内存仓储, 状态机测试不依赖数据库 ===

type memAttemptRepo struct {
	mu    sync.Mutex
	saves int
}

func (f *memAttemptRepo) Create(attempt *model.DeploymentAttempt) error { return nil }
func (f *memAttemptRepo) FindByAttemptID(attemptID string) (*model.DeploymentAttempt, error) {
	return nil, pkgErrors.ErrRecordNotFound
}
func (f *memAttemptRepo) ListByTarget(targetID int64, limit int) ([]*model.DeploymentAttempt, error) {
	return nil, nil
}
func (f *memAttemptRepo) ListStale(olderThan time.Time) ([]*model.DeploymentAttempt, error) {
	return nil, nil
}
func (f *memAttemptRepo) Save(ctx context.Context, attempt *model.DeploymentAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

type memSlotRepo struct {
	mu    sync.Mutex
	slots []*model.Slot
	saved []string
}

func (f *memSlotRepo) Create(slot *model.Slot) error { return nil }
func (f *memSlotRepo) FindByTarget(targetID int64) ([]*model.Slot, error) {
	return f.slots, nil
}
func (f *memSlotRepo) Save(ctx context.Context, slot *model.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, slot.SlotName)
	return nil
}

type memTargetRepo struct {
	commitErr error
	commits   int
}

func (f *memTargetRepo) Create(target *model.DeploymentTarget) error { return nil }
func (f *memTargetRepo) FindByID(id int64, opts ...repository.QueryOption) (*model.DeploymentTarget, error) {
	return nil, pkgErrors.ErrRecordNotFound
}
func (f *memTargetRepo) FindByKindEnv(kind, environment string) (*model.DeploymentTarget, error) {
	return nil, pkgErrors.ErrRecordNotFound
}
func (f *memTargetRepo) List() ([]*model.DeploymentTarget, error) { return nil, nil }
func (f *memTargetRepo) Commit(ctx context.Context, target *model.DeploymentTarget) error {
	f.commits++
	if f.commitErr != nil {
		return f.commitErr
	}
	target.Version++
	return nil
}

type memApprovalRepo struct {
	mu  sync.Mutex
	req *model.ApprovalRequest

	// 创建后立即落定的决策, 模拟审批人已操作
	autoState string
	decided   []string
}

func (f *memApprovalRepo) Create(ctx context.Context, req *model.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.req != nil {
		return pkgErrors.ErrRecordExists
	}
	cp := *req
	if f.autoState != "" {
		cp.State = f.autoState
		approver := "alice"
		cp.Approver = &approver
		now := time.Now()
		cp.DecidedAt = &now
	}
	f.req = &cp
	return nil
}

func (f *memApprovalRepo) FindByAttemptID(ctx context.Context, attemptID string) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.req == nil {
		return nil, pkgErrors.ErrRecordNotFound
	}
	cp := *f.req
	return &cp, nil
}

func (f *memApprovalRepo) Decide(ctx context.Context, attemptID, state, approver, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.req == nil || f.req.State != constants.ApprovalStatePending {
		return pkgErrors.ErrConflict
	}
	f.req.State = state
	f.req.Approver = &approver
	f.req.Comment = &comment
	now := time.Now()
	f.req.DecidedAt = &now
	f.decided = append(f.decided, state)
	return nil
}

// === 测试脚手架 ===

type smFixture struct {
	driver    *deploy.MockDriver
	source    *metrics.MockSource
	target    *model.DeploymentTarget
	blue      *model.Slot
	green     *model.Slot
	attempt   *model.DeploymentAttempt
	attempts  *memAttemptRepo
	slots     *memSlotRepo
	targets   *memTargetRepo
	approvals *memApprovalRepo
	cfg       config.OrchestratorConfig
	gates     config.MetricsConfig
}

func newFixture() *smFixture {
	blue := &model.Slot{
		BaseModel:         model.BaseModel{ID: 11},
		TargetID:          1,
		SlotName:          constants.SlotBlue,
		BackingResourceID: "web-prod-blue",
		TrafficWeight:     constants.WeightFull,
		Enabled:           true,
		Status:            constants.SlotStatusActive,
	}
	green := &model.Slot{
		BaseModel:         model.BaseModel{ID: 12},
		TargetID:          1,
		SlotName:          constants.SlotGreen,
		BackingResourceID: "web-prod-green",
		TrafficWeight:     constants.WeightNone,
		Enabled:           true,
		Status:            constants.SlotStatusIdle,
	}
	target := &model.DeploymentTarget{
		BaseModel:   model.BaseModel{ID: 1},
		Name:        "web",
		Kind:        constants.TargetKindMock,
		Environment: constants.EnvTypeProd,
		Version:     3,
	}
	attempt := &model.DeploymentAttempt{
		AttemptID:       "att-0001",
		TargetID:        1,
		ArtifactVersion: "v2.0.0",
		CurrentPhase:    constants.PhasePending,
		ApprovalState:   constants.ApprovalStatePending,
		StepPlan:        model.Int64List{0, 25, 50, 75, 100},
		Outcome:         constants.OutcomeInProgress,
		StartedAt:       time.Now(),
	}

	driver := deploy.NewMockDriver().
		SetSlotState(constants.SlotBlue, true, constants.WeightFull).
		SetSlotState(constants.SlotGreen, true, constants.WeightNone)

	return &smFixture{
		driver:    driver,
		source:    metrics.NewMockSource(),
		target:    target,
		blue:      blue,
		green:     green,
		attempt:   attempt,
		attempts:  &memAttemptRepo{},
		slots:     &memSlotRepo{slots: []*model.Slot{blue, green}},
		targets:   &memTargetRepo{},
		approvals: &memApprovalRepo{},
		cfg: config.OrchestratorConfig{
			Steps:          []int{0, 25, 50, 75, 100},
			SettleInterval: "1ms",
			Propagation:    config.PollConfig{Timeout: "200ms", Interval: "1ms"},
			Approval:       config.PollConfig{Timeout: "100ms", Interval: "1ms"},
			Deploy:         config.DeployRetryConfig{MaxRetries: 2, InitialBackoff: "1ms"},
			SkipApproval:   true,
		},
		gates: config.MetricsConfig{
			Window:             "1m",
			ErrorRateThreshold: 0.01,
			LatencyP95MsMax:    500,
			CacheHitRateFloor:  0.8,
		},
	}
}

func (f *smFixture) run(t *testing.T) (string, error) {
	t.Helper()
	o := NewOrchestrator(zap.NewNop(), f.driver, f.source, nil,
		f.cfg, f.gates, f.attempts, f.slots, f.targets, f.approvals)
	return o.Run(context.Background(), f.target, f.attempt, RunOptions{})
}

// === 场景: 完整成功 ===

func TestRunFullCutoverSucceeds(t *testing.T) {
	f := newFixture()

	outcome, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeSucceeded, outcome)
	assert.Equal(t, constants.PhaseSucceeded, f.attempt.CurrentPhase)
	require.NotNil(t, f.attempt.FinishedAt)
	assert.Equal(t, 0, constants.OutcomeToExitCode(outcome))

	// 制品部署到非活动槽位
	assert.Equal(t, "v2.0.0", f.driver.DeployedVersion(constants.SlotGreen))
	f.driver.AssertDeployCalled(t, 1)

	// 每次权重写入都互补, 按计划逐步推进到100
	history := f.driver.WeightHistory()
	require.Len(t, history, 5)
	wantGreen := []int{0, 25, 50, 75, 100}
	for i, snap := range history {
		assert.Equal(t, wantGreen[i], snap[constants.SlotGreen], "第%d步新槽位权重", i)
		assert.Equal(t, 100, snap[constants.SlotGreen]+snap[constants.SlotBlue], "第%d步权重之和", i)
	}

	// 每步一条健康采样, 全部通过
	require.Len(t, f.attempt.HealthHistory, 5)
	for _, s := range f.attempt.HealthHistory {
		assert.True(t, s.Passed)
	}

	// 槽位角色互换
	assert.Equal(t, constants.WeightFull, f.green.TrafficWeight)
	assert.Equal(t, constants.SlotStatusActive, f.green.Status)
	require.NotNil(t, f.green.LastArtifactVersion)
	assert.Equal(t, "v2.0.0", *f.green.LastArtifactVersion)
	assert.Equal(t, constants.WeightNone, f.blue.TrafficWeight)
	assert.Equal(t, constants.SlotStatusIdle, f.blue.Status)

	// 目标记录乐观提交, 版本自增
	assert.Equal(t, int64(4), f.target.Version)
	require.NotNil(t, f.target.ActiveSlotID)
	assert.Equal(t, f.green.ID, *f.target.ActiveSlotID)
	require.NotNil(t, f.target.LastAttemptOutcome)
	assert.Equal(t, constants.OutcomeSucceeded, *f.target.LastAttemptOutcome)
	assert.Nil(t, f.attempt.ErrorMessage)
}

func TestRunDeployRetriesTransientFailures(t *testing.T) {
	f := newFixture()
	f.driver.SetDeployFailures(2)

	outcome, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeSucceeded, outcome)
	f.driver.AssertDeployCalled(t, 3)
}

func TestRunDeployFatalFailsWithoutRollback(t *testing.T) {
	f := newFixture()
	f.driver.SetDeployFatal()

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.Equal(t, constants.OutcomeFailed, outcome)
	assert.Equal(t, constants.PhaseFailed, f.attempt.CurrentPhase)
	assert.False(t, f.attempt.TrafficMoved)

	// 不可重试错误不重试, 也不触碰流量
	f.driver.AssertDeployCalled(t, 1)
	assert.Empty(t, f.driver.WeightHistory())
	assert.Equal(t, 1, constants.OutcomeToExitCode(outcome))
}

func TestRunPropagationTimeoutFails(t *testing.T) {
	f := newFixture()
	f.driver.SetReadyAfter(100000)

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgErrors.ErrPropagationTimeout))
	assert.Equal(t, constants.OutcomeFailed, outcome)
	assert.Empty(t, f.driver.WeightHistory())
}

// === 场景: 中途健康检查失败后回滚 ===

func TestRunHealthFailureAt75RollsBack(t *testing.T) {
	f := newFixture()
	// 前三步健康, 75%时错误率越线(之后重复最后一条)
	f.source.PushHealthy().PushHealthy().PushHealthy().
		PushSample(0.05, 120, nil)

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgErrors.ErrHealthCheckFailed))
	assert.Equal(t, constants.OutcomeRolledBack, outcome)
	assert.Equal(t, constants.PhaseRolledBack, f.attempt.CurrentPhase)
	assert.True(t, f.attempt.TrafficMoved)
	assert.Equal(t, 2, constants.OutcomeToExitCode(outcome))

	// 切流只推进到75, 随后恢复旧槽位
	history := f.driver.WeightHistory()
	require.Len(t, history, 5)
	wantGreen := []int{0, 25, 50, 75, 0}
	for i, snap := range history {
		assert.Equal(t, wantGreen[i], snap[constants.SlotGreen], "第%d次写入新槽位权重", i)
	}
	last := history[len(history)-1]
	assert.Equal(t, constants.WeightFull, last[constants.SlotBlue])

	// 采样史: 3通过 + 1未通过
	require.Len(t, f.attempt.HealthHistory, 4)
	assert.False(t, f.attempt.HealthHistory.Last().Passed)
	assert.Equal(t, 75, f.attempt.HealthHistory.Last().Step)

	// 槽位行: 旧槽位继续活动, 新槽位标记失败
	assert.Equal(t, constants.SlotStatusActive, f.blue.Status)
	assert.Equal(t, constants.WeightFull, f.blue.TrafficWeight)
	assert.Equal(t, constants.SlotStatusFailed, f.green.Status)
	assert.Equal(t, constants.WeightNone, f.green.TrafficWeight)

	// 目标记录: 活动槽位不变, 只记录结果
	assert.Nil(t, f.target.ActiveSlotID)
	require.NotNil(t, f.target.LastAttemptOutcome)
	assert.Equal(t, constants.OutcomeRolledBack, *f.target.LastAttemptOutcome)
	require.NotNil(t, f.attempt.ErrorMessage)
}

func TestRunWeightWriteFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.driver.SetWeightFailAt(constants.SlotGreen, 75)

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.Equal(t, constants.OutcomeRolledBack, outcome)
	assert.True(t, f.attempt.TrafficMoved)

	// 75%写入失败未记录, 最后一次是回滚恢复
	history := f.driver.WeightHistory()
	require.Len(t, history, 4)
	// 25%步from侧恰为75, 不应误触发注入的失败
	assert.Equal(t, 75, history[1][constants.SlotBlue])
	assert.Equal(t, 25, history[1][constants.SlotGreen])
	last := history[len(history)-1]
	assert.Equal(t, constants.WeightFull, last[constants.SlotBlue])
	assert.Equal(t, constants.WeightNone, last[constants.SlotGreen])
}

// === 场景: 审批闸门 ===

func TestRunApprovalApprovedProceeds(t *testing.T) {
	f := newFixture()
	f.cfg.SkipApproval = false
	f.approvals.autoState = constants.ApprovalStateApproved

	outcome, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeSucceeded, outcome)
	assert.Equal(t, constants.ApprovalStateApproved, f.attempt.ApprovalState)
}

func TestRunApprovalDeniedFailsWithoutTraffic(t *testing.T) {
	f := newFixture()
	f.cfg.SkipApproval = false
	f.approvals.autoState = constants.ApprovalStateDenied

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgErrors.ErrApprovalDenied))
	assert.Equal(t, constants.OutcomeFailed, outcome)
	assert.Equal(t, constants.ApprovalStateDenied, f.attempt.ApprovalState)

	// 拒绝发生在切流之前, 不触碰流量也不回滚
	assert.False(t, f.attempt.TrafficMoved)
	assert.Empty(t, f.driver.WeightHistory())
	assert.Equal(t, 1, constants.OutcomeToExitCode(outcome))
}

func TestRunApprovalTimeoutFailsAndRecordsDecision(t *testing.T) {
	f := newFixture()
	f.cfg.SkipApproval = false
	f.cfg.Approval = config.PollConfig{Timeout: "30ms", Interval: "5ms"}

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgErrors.ErrApprovalTimeout))
	assert.Equal(t, constants.OutcomeFailed, outcome)
	assert.Equal(t, constants.ApprovalStateTimedOut, f.attempt.ApprovalState)
	assert.Empty(t, f.driver.WeightHistory())

	// 超时决策落库
	require.Len(t, f.approvals.decided, 1)
	assert.Equal(t, constants.ApprovalStateTimedOut, f.approvals.decided[0])
}

// === 场景: 槽位解析二义 ===

func TestRunAmbiguousBothSlotsFullWeight(t *testing.T) {
	f := newFixture()
	f.driver.SetSlotState(constants.SlotGreen, true, constants.WeightFull)

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, pkgErrors.IsAmbiguousState(err))
	assert.Equal(t, constants.OutcomeFailed, outcome)

	// 二义判定不做任何写操作
	f.driver.AssertDeployCalled(t, 0)
	assert.Empty(t, f.driver.WeightHistory())
	assert.Empty(t, f.slots.saved)
	assert.Equal(t, 0, f.targets.commits)
}

func TestRunAmbiguousStandbyResidualWeight(t *testing.T) {
	f := newFixture()
	f.driver.SetSlotState(constants.SlotGreen, true, 30)

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, pkgErrors.IsAmbiguousState(err))
	assert.Equal(t, constants.OutcomeFailed, outcome)
	f.driver.AssertDeployCalled(t, 0)
}

func TestRunAmbiguousNoActiveSlot(t *testing.T) {
	f := newFixture()
	f.driver.SetSlotState(constants.SlotBlue, true, 50)
	f.driver.SetSlotState(constants.SlotGreen, true, 50)

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, pkgErrors.IsAmbiguousState(err))
	assert.Equal(t, constants.OutcomeFailed, outcome)
}

// === 场景: 提交冲突与回滚幂等 ===

func TestRunFinalizeConflictFailsWithoutAutoRollback(t *testing.T) {
	f := newFixture()
	f.targets.commitErr = pkgErrors.ErrConflict

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.True(t, pkgErrors.IsAmbiguousState(err))

	// 并发写入者已出现, 流量归属不可判定, 不自动回滚
	assert.Equal(t, constants.OutcomeFailed, outcome)
	assert.Equal(t, constants.PhaseFailed, f.attempt.CurrentPhase)
	history := f.driver.WeightHistory()
	require.Len(t, history, 5)
	assert.Equal(t, constants.WeightFull, history[len(history)-1][constants.SlotGreen])
}

func TestRollbackIdempotentWhenWeightsRestored(t *testing.T) {
	f := newFixture()
	// 进程中断后重入: 权重已在上次回滚中恢复
	f.attempt.CurrentPhase = constants.PhaseRollingBack
	f.attempt.FromSlot = constants.SlotBlue
	f.attempt.ToSlot = constants.SlotGreen
	f.attempt.TrafficMoved = true
	f.attempt.SetErrorMessage("健康检查未通过")

	outcome, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeRolledBack, outcome)

	// 旧槽位已承接全部流量, 不重复写权重
	assert.Empty(t, f.driver.WeightHistory())
	assert.Equal(t, constants.SlotStatusActive, f.blue.Status)
	assert.Equal(t, constants.SlotStatusFailed, f.green.Status)
}

func TestResumeShiftingSkipsCompletedSteps(t *testing.T) {
	f := newFixture()
	// 中断前已完成0/25/50三步采样, 且已写入50权重
	f.attempt.CurrentPhase = constants.PhaseShifting
	f.attempt.FromSlot = constants.SlotBlue
	f.attempt.ToSlot = constants.SlotGreen
	f.attempt.TrafficMoved = true
	for _, step := range []int{0, 25, 50} {
		f.attempt.HealthHistory = append(f.attempt.HealthHistory, model.HealthSample{
			Timestamp: time.Now(), Step: step, Passed: true,
		})
	}
	f.driver.SetSlotState(constants.SlotBlue, true, 50)
	f.driver.SetSlotState(constants.SlotGreen, true, 50)

	outcome, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeSucceeded, outcome)

	// 只补写剩余两步
	history := f.driver.WeightHistory()
	require.Len(t, history, 2)
	assert.Equal(t, 75, history[0][constants.SlotGreen])
	assert.Equal(t, 100, history[1][constants.SlotGreen])
	require.Len(t, f.attempt.HealthHistory, 5)
}

func TestRunUnknownPhaseFails(t *testing.T) {
	f := newFixture()
	f.attempt.CurrentPhase = "verifying"

	outcome, err := f.run(t)
	require.Error(t, err)
	assert.Equal(t, constants.OutcomeFailed, outcome)
	assert.Equal(t, constants.PhaseFailed, f.attempt.CurrentPhase)
}
