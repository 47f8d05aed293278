package model

import (
	"bluegreen-cd/pkg/constants"
)

const TargetTableName = "deployment_targets"

// DeploymentTarget 部署目标: 一组资源族(如 api/cdn), 固定拥有两个槽位.
// ActiveSlotID/LastAttempt* 构成持久化目标记录, 仅由
// SwapFinalizer/RollbackController 在终态写入, Version 做乐观并发控制.
type DeploymentTarget struct {
	BaseModel

	Name        string `gorm:"size:63;not null;uniqueIndex:idx_target_kind_env" json:"name"`
	Kind        string `gorm:"size:20;not null;uniqueIndex:idx_target_kind_env" json:"kind"` // static/workload
	Environment string `gorm:"size:20;not null;uniqueIndex:idx_target_kind_env" json:"environment"`

	// 持久化目标记录
	ActiveSlotID       *int64  `gorm:"column:active_slot_id" json:"active_slot_id"`
	LastAttemptID      *string `gorm:"size:36" json:"last_attempt_id"`
	LastAttemptOutcome *string `gorm:"size:20" json:"last_attempt_outcome"`

	// 审批回调密钥哈希(bcrypt), 为空表示该目标不校验回调密钥
	WebhookSecretHash *string `gorm:"size:100" json:"-"`

	// 乐观并发版本号
	Version int64 `gorm:"not null;default:0" json:"version"`

	// Relations
	Slots []Slot `gorm:"foreignKey:TargetID" json:"slots,omitempty"`
}

// TableName 指定表名
func (DeploymentTarget) TableName() string {
	return TargetTableName
}

const SlotTableName = "slots"

// Slot 蓝/绿槽位, 槽位记录长期存在, 每次成功发布后角色互换
type Slot struct {
	BaseModel

	TargetID int64  `gorm:"column:target_id;not null;uniqueIndex:idx_target_slot" json:"target_id"`
	SlotName string `gorm:"size:10;not null;uniqueIndex:idx_target_slot" json:"slot_name"` // blue/green

	// 后端资源标识(桶前缀/helm release名等)
	BackingResourceID string `gorm:"size:255;not null" json:"backing_resource_id"`

	TrafficWeight       int     `gorm:"not null;default:0" json:"traffic_weight"` // 0-100
	Enabled             bool    `gorm:"not null;default:true" json:"enabled"`
	LastArtifactVersion *string `gorm:"size:100" json:"last_artifact_version"`

	Status string `gorm:"size:20;not null;default:idle" json:"status"` // idle/deploying/verifying/active/rolling_back/failed
}

// TableName 指定表名
func (Slot) TableName() string {
	return SlotTableName
}

// IsActive 静止态判定: 启用且承接全部流量
func (s *Slot) IsActive() bool {
	return s.Enabled && s.TrafficWeight == constants.WeightFull
}
