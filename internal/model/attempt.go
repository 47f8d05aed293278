package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const AttemptTableName = "deployment_attempts"

// DeploymentAttempt 单次发布记录, 达到终态后归档不再修改
type DeploymentAttempt struct {
	BaseModel

	AttemptID string `gorm:"size:36;not null;uniqueIndex" json:"attempt_id"`
	TargetID  int64  `gorm:"column:target_id;not null;index" json:"target_id"`

	FromSlot string `gorm:"size:10" json:"from_slot"` // 发布前活动槽位
	ToSlot   string `gorm:"size:10" json:"to_slot"`   // 发布目标槽位

	ArtifactVersion string `gorm:"size:100;not null" json:"artifact_version"`

	CurrentPhase  string `gorm:"size:30;not null;default:pending" json:"current_phase"`
	ApprovalState string `gorm:"size:20;not null;default:pending" json:"approval_state"`

	// 流量切换步长计划与逐步健康采样
	StepPlan      Int64List         `gorm:"type:json" json:"step_plan"`
	HealthHistory HealthSampleList  `gorm:"type:json" json:"health_history"`
	Extra         datatypes.JSONMap `gorm:"type:json" json:"extra,omitempty"`

	// 首次非零流量写入后置位, 决定失败走回滚还是直接终止
	TrafficMoved bool `gorm:"not null;default:false" json:"traffic_moved"`

	Outcome      string  `gorm:"size:20;not null;default:in_progress" json:"outcome"`
	ErrorMessage *string `gorm:"type:text" json:"error_message"`

	// 时间追踪
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	// Relations
	Target *DeploymentTarget `gorm:"foreignKey:TargetID" json:"target,omitempty"`
}

// TableName 指定表名
func (DeploymentAttempt) TableName() string {
	return AttemptTableName
}

// SetErrorMessage 设置/清空错误信息
func (a *DeploymentAttempt) SetErrorMessage(msg string) {
	if msg == "" {
		a.ErrorMessage = nil
		return
	}
	if a.ErrorMessage == nil {
		a.ErrorMessage = new(string)
	}
	*a.ErrorMessage = msg
}

// HealthSample 一次健康采样
type HealthSample struct {
	Timestamp    time.Time `json:"timestamp"`
	Step         int       `json:"step"`                     // 采样时新槽位流量权重
	ErrorRate    float64   `json:"error_rate"`               // 0-1
	LatencyP95Ms float64   `json:"latency_p95_ms"`           // 毫秒
	CacheHitRate *float64  `json:"cache_hit_rate,omitempty"` // 软门槛, 可缺省
	Passed       bool      `json:"passed"`
}

// HealthSampleList JSON列
type HealthSampleList []HealthSample

// 实现 sql.Scanner
func (l *HealthSampleList) Scan(value interface{}) error {
	if value == nil {
		*l = HealthSampleList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into HealthSampleList", value)
	}
	return json.Unmarshal(bytes, l)
}

// 实现 driver.Valuer
func (l HealthSampleList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Last 最后一次采样, 无则返回nil
func (l HealthSampleList) Last() *HealthSample {
	if len(l) == 0 {
		return nil
	}
	return &l[len(l)-1]
}

// Int64List JSON列
type Int64List []int64

// 实现 sql.Scanner
func (l *Int64List) Scan(value interface{}) error {
	if value == nil {
		*l = []int64{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Int64List", value)
	}
	return json.Unmarshal(bytes, l)
}

// 实现 driver.Valuer
func (l Int64List) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return json.Marshal(l)
}
