package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestJobRepositoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	pool := startPostgres(t)
	repo := NewJobRepository(pool)

	require.NoError(t, RunMigrations(ctx, pool), "migrations must be re-runnable")

	job, err := entity.NewJob("uploads/demo.mp4", entity.JobConfig{TargetFrameRate: 1, ImageWidth: 720, ImageFormat: "jpg"}, 3, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, job))

	job.MarkExtracting()
	job.ArchiveKey = job.Namespace + "/action_frames.zip"
	job.MarkCompleted(12, 3, []entity.FrameFailure{{Key: "k", Stage: entity.StageDecode, Message: "bad"}})
	require.NoError(t, repo.Update(ctx, job))

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Namespace, got.Namespace)
	assert.Equal(t, job.Config, got.Config)
	assert.Equal(t, entity.JobStatusPartial, got.Status)
	assert.Equal(t, 12, got.FramesWritten)
	assert.Equal(t, 3, got.ActionFrames)
	assert.Equal(t, job.ArchiveKey, got.ArchiveKey)
	assert.Equal(t, job.Failures, got.Failures)
	assert.Equal(t, 1, got.Attempt)
	require.NotNil(t, got.CompletedAt)
}

func TestJobRepositoryMissingJob(t *testing.T) {
	pool := startPostgres(t)
	repo := NewJobRepository(pool)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, port.ErrJobNotFound)

	job, err := entity.NewJob("a.mp4", entity.JobConfig{TargetFrameRate: 1, ImageWidth: 10, ImageFormat: "png"}, 1, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Update(context.Background(), job), port.ErrJobNotFound)
}
