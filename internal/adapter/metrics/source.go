package metrics

import (
	"context"
	"time"
)

// SampleTarget 采样对象: 指定槽位在指定时间窗内的表现
type SampleTarget struct {
	TargetName  string
	Environment string
	SlotName    string
	Window      time.Duration
}

// Sample 一次健康采样结果.
// CacheHitRate对工作负载可能无意义, 缺失时为nil.
type Sample struct {
	ErrorRate    float64  // 0-1
	LatencyP95Ms float64  // 毫秒
	CacheHitRate *float64 // 0-1, 可缺失
}

// Source 指标源接口
type Source interface {
	// Sample 读取目标槽位在时间窗内的聚合指标
	Sample(ctx context.Context, target SampleTarget) (*Sample, error)
}
