package deploy

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgErrors "bluegreen-cd/pkg/errors"

	"github.com/stretchr/testify/mock"
)

// MockDriver 模拟驱动, 在内存中维护槽位实况
type MockDriver struct {
	mock.Mock

	// 槽位实况
	states map[string]*SlotState // slotName -> 状态

	// 可控行为
	deployFailures  int           // 前N次Deploy返回可重试错误
	deployFatal     bool          // Deploy直接返回不可重试错误
	readyAfter      int           // 第N次Ready探测才就绪
	weightFailAt    int           // 指定槽位权重被推到该值时SetWeights报错, -1表示不触发
	weightFailSlot  string        // 触发权重写失败的槽位名
	weightFailErr   error         // 权重写失败时返回的错误, 默认普通错误
	stateErr        error         // SlotState是否返回错误
	deployDelay     time.Duration // 部署延迟
	deployedVersion map[string]string

	// 调用记录
	deployCalled  int
	readyCalled   int
	weightHistory []map[string]int // 每次SetWeights写入的权重快照
	mu            sync.Mutex
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		states:          make(map[string]*SlotState),
		deployedVersion: make(map[string]string),
		weightFailAt:    -1,
	}
}

// === 配置方法 ===

// SetSlotState 预置槽位实况
func (m *MockDriver) SetSlotState(slotName string, enabled bool, weight int) *MockDriver {
	m.states[slotName] = &SlotState{Enabled: enabled, Weight: weight}
	return m
}

// SetDeployFailures 前n次Deploy返回可重试错误
func (m *MockDriver) SetDeployFailures(n int) *MockDriver {
	m.deployFailures = n
	return m
}

// SetDeployFatal Deploy直接返回不可重试错误
func (m *MockDriver) SetDeployFatal() *MockDriver {
	m.deployFatal = true
	return m
}

// SetReadyAfter 第n次Ready探测才就绪
func (m *MockDriver) SetReadyAfter(n int) *MockDriver {
	m.readyAfter = n
	return m
}

// SetWeightFailAt 槽位slotName的权重被推到weight时SetWeights报错.
// 按槽位名匹配, 避免误触发另一侧的互补权重(如25%步的from侧恰为75)
func (m *MockDriver) SetWeightFailAt(slotName string, weight int) *MockDriver {
	m.weightFailSlot = slotName
	m.weightFailAt = weight
	return m
}

func (m *MockDriver) SetWeightFailErr(err error) *MockDriver {
	m.weightFailErr = err
	return m
}

func (m *MockDriver) SetStateError(err error) *MockDriver {
	m.stateErr = err
	return m
}

func (m *MockDriver) SetDeployDelay(d time.Duration) *MockDriver {
	m.deployDelay = d
	return m
}

// === 接口实现 ===

func (m *MockDriver) Deploy(ctx context.Context, param *DeployParam) error {
	m.mu.Lock()
	m.deployCalled++
	called := m.deployCalled
	m.mu.Unlock()

	if m.deployDelay > 0 {
		select {
		case <-time.After(m.deployDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if m.deployFatal {
		return pkgErrors.NewDeployError(false, fmt.Errorf("模拟不可重试部署失败"))
	}
	if called <= m.deployFailures {
		return pkgErrors.NewDeployError(true, fmt.Errorf("模拟瞬时部署失败(第%d次)", called))
	}

	m.mu.Lock()
	m.deployedVersion[param.Slot.SlotName] = param.ArtifactVersion
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) Ready(ctx context.Context, slot SlotRef) error {
	m.mu.Lock()
	m.readyCalled++
	called := m.readyCalled
	m.mu.Unlock()

	if called < m.readyAfter {
		return fmt.Errorf("槽位 %s 尚未就绪", slot.SlotName)
	}
	return nil
}

func (m *MockDriver) SlotState(ctx context.Context, slot SlotRef) (SlotState, error) {
	if m.stateErr != nil {
		return SlotState{}, m.stateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[slot.SlotName]
	if !ok {
		return SlotState{}, fmt.Errorf("槽位 %s 不存在", slot.SlotName)
	}
	return *st, nil
}

func (m *MockDriver) SetWeights(ctx context.Context, targetName, environment string, weights map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.weightFailAt >= 0 {
		if w, ok := weights[m.weightFailSlot]; ok && w == m.weightFailAt {
			if m.weightFailErr != nil {
				return m.weightFailErr
			}
			return fmt.Errorf("模拟权重写入失败(slot=%s, weight=%d)", m.weightFailSlot, m.weightFailAt)
		}
	}

	snapshot := make(map[string]int, len(weights))
	for name, w := range weights {
		snapshot[name] = w
		if st, ok := m.states[name]; ok {
			st.Weight = w
		} else {
			m.states[name] = &SlotState{Enabled: true, Weight: w}
		}
	}
	m.weightHistory = append(m.weightHistory, snapshot)
	return nil
}

func (m *MockDriver) SetEnabled(ctx context.Context, slot SlotRef, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[slot.SlotName]; ok {
		st.Enabled = enabled
	} else {
		m.states[slot.SlotName] = &SlotState{Enabled: enabled}
	}
	return nil
}

// === 验证方法 ===

func (m *MockDriver) AssertDeployCalled(t mock.TestingT, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deployCalled != times {
		t.Errorf("Deploy called %d times, want %d", m.deployCalled, times)
	}
}

// WeightHistory 返回历次SetWeights写入的权重快照
func (m *MockDriver) WeightHistory() []map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]int, len(m.weightHistory))
	for i, snap := range m.weightHistory {
		cp := make(map[string]int, len(snap))
		for k, v := range snap {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// DeployedVersion 返回槽位上最近一次部署的制品版本
func (m *MockDriver) DeployedVersion(slotName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deployedVersion[slotName]
}

// CurrentWeight 返回槽位当前权重
func (m *MockDriver) CurrentWeight(slotName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[slotName]; ok {
		return st.Weight
	}
	return 0
}
