package repository

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
	pkgErrors "bluegreen-cd/pkg/errors"
)

func newLeaseTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TargetLease{}))
	return db
}

func TestLeaseAcquireThenConcurrentRejected(t *testing.T) {
	repo := NewLeaseRepository(newLeaseTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, 1, "att-0001", time.Hour))

	// 第二个发布拿不到租约, 且不产生任何发布记录副作用
	err := repo.Acquire(ctx, 1, "att-0002", time.Hour)
	assert.ErrorIs(t, err, pkgErrors.ErrAttemptInProgress)

	// 其他目标互不影响
	require.NoError(t, repo.Acquire(ctx, 2, "att-0003", time.Hour))
}

func TestLeaseAcquireSameHolderRenews(t *testing.T) {
	db := newLeaseTestDB(t)
	repo := NewLeaseRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, 1, "att-0001", time.Minute))

	var before model.TargetLease
	require.NoError(t, db.Where("target_id = ?", 1).First(&before).Error)

	// 进程中断后resume: 同一持有者重复获取应续约而非被拒
	require.NoError(t, repo.Acquire(ctx, 1, "att-0001", time.Hour))

	var after model.TargetLease
	require.NoError(t, db.Where("target_id = ?", 1).First(&after).Error)
	assert.Equal(t, "att-0001", after.HolderAttemptID)
	assert.True(t, after.ExpiresAt.After(before.ExpiresAt))

	// 续约期间他人依然被拒
	err := repo.Acquire(ctx, 1, "att-0002", time.Hour)
	assert.ErrorIs(t, err, pkgErrors.ErrAttemptInProgress)
}

func TestLeaseAcquireTakesOverExpired(t *testing.T) {
	db := newLeaseTestDB(t)
	repo := NewLeaseRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, 1, "att-0001", time.Hour))

	// 手动把租约改成已过期
	require.NoError(t, db.Model(&model.TargetLease{}).
		Where("target_id = ?", 1).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	require.NoError(t, repo.Acquire(ctx, 1, "att-0002", time.Hour))

	var lease model.TargetLease
	require.NoError(t, db.Where("target_id = ?", 1).First(&lease).Error)
	assert.Equal(t, "att-0002", lease.HolderAttemptID)
	assert.False(t, lease.Expired(time.Now()))
}

func TestLeaseReleaseIdempotentAndHolderScoped(t *testing.T) {
	db := newLeaseTestDB(t)
	repo := NewLeaseRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, 1, "att-0001", time.Hour))

	// 非持有者释放不生效
	require.NoError(t, repo.Release(ctx, 1, "att-9999"))
	var count int64
	require.NoError(t, db.Model(&model.TargetLease{}).Where("target_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 持有者释放后可重新获取; 重复释放幂等
	require.NoError(t, repo.Release(ctx, 1, "att-0001"))
	require.NoError(t, repo.Release(ctx, 1, "att-0001"))
	require.NoError(t, repo.Acquire(ctx, 1, "att-0002", time.Hour))
}

func TestLeaseSweepExpired(t *testing.T) {
	db := newLeaseTestDB(t)
	repo := NewLeaseRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Acquire(ctx, 1, "att-0001", -time.Minute))
	require.NoError(t, repo.Acquire(ctx, 2, "att-0002", time.Hour))

	swept, err := repo.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	// 未过期的保留
	var count int64
	require.NoError(t, db.Model(&model.TargetLease{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
