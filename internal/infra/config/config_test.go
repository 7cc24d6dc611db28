package config

import (
	"testing"
	"time"

	"github.com/framelab/actionframes/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, entity.JobConfig{TargetFrameRate: 1, ImageWidth: 720, ImageFormat: "jpg"}, cfg.JobConfig())
	assert.Equal(t, entity.DiffParams{Threshold: 30, MinArea: 500, BatchSize: 10}, cfg.DiffParams())
	assert.Equal(t, 10*time.Second, cfg.FrameReadTimeout)
	assert.Equal(t, StorageMinIO, cfg.StorageBackend)
	assert.Equal(t, "frames.extraction", cfg.RabbitMQExtractionQueue)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TARGET_FRAME_RATE", "2.5")
	t.Setenv("START_OFFSET_SECONDS", "3")
	t.Setenv("IMAGE_FORMAT", "webp")
	t.Setenv("DIFF_BATCH_SIZE", "37")
	t.Setenv("REGION_MIN_AREA", "10")
	t.Setenv("REGION_MAX_AREA", "20")
	t.Setenv("FRAME_READ_TIMEOUT", "250ms")
	t.Setenv("STORAGE_BACKEND", "fs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.JobConfig().TargetFrameRate)
	assert.Equal(t, 3.0, cfg.JobConfig().StartOffsetSeconds)
	assert.Equal(t, "webp", cfg.JobConfig().ImageFormat)
	assert.Equal(t, 37, cfg.DiffParams().BatchSize)
	assert.Equal(t, entity.RegionParams{MinArea: 10, MaxArea: 20}, cfg.RegionParams())
	assert.Equal(t, 250*time.Millisecond, cfg.FrameReadTimeout)
	assert.Equal(t, StorageFS, cfg.StorageBackend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"TARGET_FRAME_RATE":    "0",
		"START_OFFSET_SECONDS": "-1",
		"IMAGE_WIDTH":          "-10",
		"IMAGE_FORMAT":         "gif",
		"DIFF_THRESHOLD":       "300",
		"DIFF_MIN_AREA":        "0",
		"DIFF_BATCH_SIZE":      "0",
		"REGION_MIN_AREA":      "900000",
		"FRAME_READ_TIMEOUT":   "0s",
		"WORKER_COUNT":         "0",
		"STORAGE_BACKEND":      "s3",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.ErrorIs(t, err, entity.ErrInvalidConfig)
		})
	}
}

func TestLoadRejectsMalformedNumber(t *testing.T) {
	t.Setenv("IMAGE_WIDTH", "wide")
	_, err := Load()
	assert.Error(t, err)
}
