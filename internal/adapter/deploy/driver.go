package deploy

import (
	"context"
)

// SlotRef 槽位定位信息, 驱动据此找到后端资源
type SlotRef struct {
	TargetName        string
	Environment       string
	Kind              string // static/workload
	SlotName          string // blue/green
	BackingResourceID string // 桶前缀 / helm release名
}

// SlotState 后端资源上观测到的槽位状态.
// 解析器只信任这里的实况, 不信任库表快照.
type SlotState struct {
	Enabled bool
	Weight  int // 0-100
}

// DeployParam 制品部署参数
type DeployParam struct {
	Slot            SlotRef
	ArtifactVersion string
	ArtifactPath    string                 // 静态制品目录
	Values          map[string]interface{} // 工作负载helm values
}

// Driver 槽位驱动接口, 屏蔽后端资源差异(桶/helm release/mock)
type Driver interface {

	// Deploy 把制品部署到指定槽位.
	// 错误须用 pkgErrors.DeployError 分类(可重试/不可重试).
	Deploy(ctx context.Context, param *DeployParam) error

	// Ready 就绪探测: 制品是否已可服务
	Ready(ctx context.Context, slot SlotRef) error

	// SlotState 读取槽位实况(启用/权重)
	SlotState(ctx context.Context, slot SlotRef) (SlotState, error)

	// SetWeights 原子写入目标下各槽位的流量权重
	SetWeights(ctx context.Context, targetName, environment string, weights map[string]int) error

	// SetEnabled 启停槽位
	SetEnabled(ctx context.Context, slot SlotRef, enabled bool) error
}
