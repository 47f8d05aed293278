package model

import "time"

const ApprovalTableName = "approval_requests"

// ApprovalRequest 审批请求, 审批门打开时创建, 决策经API写回
type ApprovalRequest struct {
	BaseModel

	AttemptID string `gorm:"size:36;not null;uniqueIndex" json:"attempt_id"`
	TargetID  int64  `gorm:"column:target_id;not null;index" json:"target_id"`

	State    string  `gorm:"size:20;not null;default:pending" json:"state"` // pending/approved/denied
	Approver *string `gorm:"size:100" json:"approver"`
	Comment  *string `gorm:"type:text" json:"comment"`

	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at"`
}

// TableName 指定表名
func (ApprovalRequest) TableName() string {
	return ApprovalTableName
}
