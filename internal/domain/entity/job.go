package entity

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusExtracting JobStatus = "EXTRACTING"
	JobStatusDetecting  JobStatus = "DETECTING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusPartial    JobStatus = "PARTIAL"
	JobStatusAborted    JobStatus = "ABORTED"
	JobStatusFailed     JobStatus = "FAILED"
)

// JobConfig controls how one video is sampled.
type JobConfig struct {
	TargetFrameRate    float64 `json:"target_frame_rate"`
	StartOffsetSeconds float64 `json:"start_offset_seconds"`
	ImageWidth         int     `json:"image_width"`
	ImageFormat        string  `json:"image_format"`
}

var supportedFormats = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "bmp": {}, "tiff": {},
}

// Validate rejects a configuration before any work is started.
func (c JobConfig) Validate() error {
	if c.TargetFrameRate <= 0 || math.IsNaN(c.TargetFrameRate) || math.IsInf(c.TargetFrameRate, 0) {
		return fmt.Errorf("%w: target_frame_rate must be positive, got %v", ErrInvalidConfig, c.TargetFrameRate)
	}
	if c.Interval() <= 0 {
		return fmt.Errorf("%w: target_frame_rate %v leaves no gap between samples", ErrInvalidConfig, c.TargetFrameRate)
	}
	if c.StartOffsetSeconds < 0 {
		return fmt.Errorf("%w: start_offset_seconds must not be negative, got %v", ErrInvalidConfig, c.StartOffsetSeconds)
	}
	if c.ImageWidth <= 0 {
		return fmt.Errorf("%w: image_width must be positive, got %d", ErrInvalidConfig, c.ImageWidth)
	}
	if _, ok := supportedFormats[strings.ToLower(c.ImageFormat)]; !ok {
		return fmt.Errorf("%w: unsupported image_format %q", ErrInvalidConfig, c.ImageFormat)
	}
	return nil
}

// Interval is the target gap between two sampled frames.
func (c JobConfig) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.TargetFrameRate)
}

type ExtractionJob struct {
	ID            uuid.UUID
	Namespace     string
	SourceName    string
	VideoKey      string
	Config        JobConfig
	Status        JobStatus
	FramesWritten int
	ActionFrames  int
	ArchiveKey    string
	Failures      []FrameFailure
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// NewJob builds a job with a fresh namespace. The configuration is validated
// here so that invalid values never reach a running extraction.
func NewJob(videoKey string, cfg JobConfig, maxAttempts int, now time.Time) (*ExtractionJob, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	source := SourceName(videoKey)
	now = now.UTC()
	return &ExtractionJob{
		ID:          id,
		Namespace:   NewNamespace(now, source, id),
		SourceName:  source,
		VideoKey:    videoKey,
		Config:      cfg,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// BeginAttempt counts one more delivery of the job and moves it to
// EXTRACTING.
func (j *ExtractionJob) BeginAttempt() {
	j.Attempt++
	j.Status = JobStatusExtracting
	j.UpdatedAt = time.Now().UTC()
}

// MarkExtracting moves the job to EXTRACTING. A job that never started an
// attempt starts its first one here.
func (j *ExtractionJob) MarkExtracting() {
	if j.Attempt == 0 {
		j.Attempt = 1
	}
	j.Status = JobStatusExtracting
	j.UpdatedAt = time.Now().UTC()
}

func (j *ExtractionJob) MarkDetecting(framesWritten int) {
	j.Status = JobStatusDetecting
	j.FramesWritten = framesWritten
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted closes the job. Jobs that recorded per-frame failures end up
// PARTIAL instead of COMPLETED.
func (j *ExtractionJob) MarkCompleted(framesWritten, actionFrames int, failures []FrameFailure) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	if len(failures) > 0 {
		j.Status = JobStatusPartial
	}
	j.FramesWritten = framesWritten
	j.ActionFrames = actionFrames
	j.Failures = failures
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *ExtractionJob) MarkAborted(errMsg string) {
	now := time.Now().UTC()
	j.Status = JobStatusAborted
	j.FramesWritten = 0
	j.ErrorMessage = errMsg
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *ExtractionJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *ExtractionJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SourceName returns the file stem of a video path or object key, reduced to
// characters that are safe inside blob names.
func SourceName(videoKey string) string {
	base := filepath.Base(filepath.ToSlash(videoKey))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = unsafeNameChars.ReplaceAllString(stem, "-")
	stem = strings.Trim(stem, "-.")
	if stem == "" {
		return "video"
	}
	return stem
}

// NewNamespace derives the storage prefix of one job from its submission time
// and source name. The id suffix keeps two submissions of the same source in
// the same second apart.
func NewNamespace(submitted time.Time, sourceName string, id uuid.UUID) string {
	return fmt.Sprintf("%s_%s_%s",
		submitted.UTC().Format("20060102T150405"),
		sourceName,
		strings.ReplaceAll(id.String(), "-", "")[:8],
	)
}
