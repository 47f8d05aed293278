package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/crypto"
	"bluegreen-cd/internal/pkg/logger"
	"bluegreen-cd/pkg/constants"
	pkgErrors "bluegreen-cd/pkg/errors"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
	logger.InitNop()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.DeploymentTarget{}, &model.Slot{},
		&model.DeploymentAttempt{}, &model.ApprovalRequest{},
	))
	return db
}

// seedAwaitingApproval 造一个带回调密钥、处于等待审批阶段的发布
func seedAwaitingApproval(t *testing.T, db *gorm.DB, secret string) string {
	target := &model.DeploymentTarget{Name: "web", Kind: "mock", Environment: "prod"}
	if secret != "" {
		hash, err := crypto.HashSecret(secret)
		require.NoError(t, err)
		target.WebhookSecretHash = &hash
	}
	require.NoError(t, db.Create(target).Error)

	attempt := &model.DeploymentAttempt{
		AttemptID:       "att-apprv-1",
		TargetID:        target.ID,
		ArtifactVersion: "v2.0.0",
		CurrentPhase:    constants.PhaseAwaitingApproval,
		ApprovalState:   constants.ApprovalStatePending,
		Outcome:         constants.OutcomeInProgress,
		StartedAt:       time.Now(),
	}
	require.NoError(t, db.Create(attempt).Error)

	require.NoError(t, db.Create(&model.ApprovalRequest{
		AttemptID:   attempt.AttemptID,
		TargetID:    target.ID,
		State:       constants.ApprovalStatePending,
		RequestedAt: time.Now(),
	}).Error)

	return attempt.AttemptID
}

func TestDecideRejectsWrongWebhookSecret(t *testing.T) {
	db := newServiceTestDB(t)
	attemptID := seedAwaitingApproval(t, db, "s3cret-hook")
	svc := NewApprovalService(db)

	_, err := svc.Decide(context.Background(), attemptID, "alice",
		&DecideRequest{Approve: true, Secret: "wrong"})
	require.Error(t, err)
	var appErr *pkgErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkgErrors.CodeUnauthorized, appErr.Code)

	// 决策未写入
	approval, err := svc.Get(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, constants.ApprovalStatePending, approval.State)
}

func TestDecideAcceptsCorrectWebhookSecret(t *testing.T) {
	db := newServiceTestDB(t)
	attemptID := seedAwaitingApproval(t, db, "s3cret-hook")
	svc := NewApprovalService(db)

	approval, err := svc.Decide(context.Background(), attemptID, "alice",
		&DecideRequest{Approve: true, Secret: "s3cret-hook"})
	require.NoError(t, err)
	assert.Equal(t, constants.ApprovalStateApproved, approval.State)
	require.NotNil(t, approval.Approver)
	assert.Equal(t, "alice", *approval.Approver)
}

func TestDecideSkipsSecretCheckWhenUnset(t *testing.T) {
	db := newServiceTestDB(t)
	attemptID := seedAwaitingApproval(t, db, "")
	svc := NewApprovalService(db)

	approval, err := svc.Decide(context.Background(), attemptID, "bob",
		&DecideRequest{Approve: false, Comment: "风险太高"})
	require.NoError(t, err)
	assert.Equal(t, constants.ApprovalStateDenied, approval.State)
}
