package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ExtractionJob) error {
	cfg, failures, err := marshalJSONColumns(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO extraction_jobs (
			id, namespace, source_name, video_key, config, status,
			frames_written, action_frames, archive_key, failures,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = r.pool.Exec(ctx, query,
		job.ID, job.Namespace, job.SourceName, job.VideoKey, cfg, string(job.Status),
		job.FramesWritten, job.ActionFrames, job.ArchiveKey, failures,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.ExtractionJob) error {
	_, failures, err := marshalJSONColumns(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE extraction_jobs SET
			status=$2, frames_written=$3, action_frames=$4, archive_key=$5,
			failures=$6, attempt=$7, error_message=$8, updated_at=$9, completed_at=$10
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.FramesWritten, job.ActionFrames, job.ArchiveKey,
		failures, job.Attempt, job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, port.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	query := `
		SELECT id, namespace, source_name, video_key, config, status,
			frames_written, action_frames, archive_key, failures,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM extraction_jobs WHERE id=$1`

	job := &entity.ExtractionJob{}
	var status string
	var cfg, failures []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Namespace, &job.SourceName, &job.VideoKey, &cfg, &status,
		&job.FramesWritten, &job.ActionFrames, &job.ArchiveKey, &failures,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find job %s: %w", id, port.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)

	if err := json.Unmarshal(cfg, &job.Config); err != nil {
		return nil, fmt.Errorf("decode job config: %w", err)
	}
	if err := json.Unmarshal(failures, &job.Failures); err != nil {
		return nil, fmt.Errorf("decode job failures: %w", err)
	}
	if len(job.Failures) == 0 {
		job.Failures = nil
	}
	return job, nil
}

func marshalJSONColumns(job *entity.ExtractionJob) ([]byte, []byte, error) {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("encode job config: %w", err)
	}
	failures := job.Failures
	if failures == nil {
		failures = []entity.FrameFailure{}
	}
	fj, err := json.Marshal(failures)
	if err != nil {
		return nil, nil, fmt.Errorf("encode job failures: %w", err)
	}
	return cfg, fj, nil
}
