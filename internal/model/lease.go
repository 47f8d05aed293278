package model

import "time"

const LeaseTableName = "target_leases"

// TargetLease 目标级租约, 发布开始前获取, 终态释放.
// 每个目标至多一行, 由唯一索引保证互斥.
type TargetLease struct {
	BaseModel

	TargetID        int64     `gorm:"column:target_id;not null;uniqueIndex" json:"target_id"`
	HolderAttemptID string    `gorm:"size:36;not null" json:"holder_attempt_id"`
	ExpiresAt       time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName 指定表名
func (TargetLease) TableName() string {
	return LeaseTableName
}

// Expired 租约是否过期
func (l *TargetLease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
