package metrics

import (
	"context"
	"sync"
)

// MockSource 模拟指标源, 按脚本顺序吐采样
type MockSource struct {
	samples []*Sample
	err     error
	cursor  int
	called  int
	mu      sync.Mutex
}

func NewMockSource() *MockSource {
	return &MockSource{}
}

// === 配置方法 ===

// PushSample 追加一条脚本采样, 依次消费, 耗尽后重复最后一条
func (m *MockSource) PushSample(errorRate, latencyP95Ms float64, cacheHitRate *float64) *MockSource {
	m.samples = append(m.samples, &Sample{
		ErrorRate:    errorRate,
		LatencyP95Ms: latencyP95Ms,
		CacheHitRate: cacheHitRate,
	})
	return m
}

// PushHealthy 追加一条各项达标的采样
func (m *MockSource) PushHealthy() *MockSource {
	hit := 0.95
	return m.PushSample(0.001, 80, &hit)
}

func (m *MockSource) SetError(err error) *MockSource {
	m.err = err
	return m
}

// === 接口实现 ===

func (m *MockSource) Sample(ctx context.Context, target SampleTarget) (*Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.called++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.samples) == 0 {
		hit := 0.99
		return &Sample{ErrorRate: 0, LatencyP95Ms: 50, CacheHitRate: &hit}, nil
	}
	s := m.samples[m.cursor]
	if m.cursor < len(m.samples)-1 {
		m.cursor++
	}
	cp := *s
	return &cp, nil
}

// Called 返回采样次数
func (m *MockSource) Called() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}
