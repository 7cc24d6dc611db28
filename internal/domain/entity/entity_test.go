package entity

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameKeyOrdersChronologically(t *testing.T) {
	keys := []string{
		FrameKey(59*time.Second, 9, "demo"),
		FrameKey(61*time.Second, 10, "demo"),
		FrameKey(time.Hour+2*time.Second, 11, "demo"),
	}
	assert.Equal(t, "00_00_59_00009_demo", keys[0])
	assert.Equal(t, "00_01_01_00010_demo", keys[1])
	assert.Equal(t, "01_00_02_00011_demo", keys[2])
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestFrameBlobNames(t *testing.T) {
	name := FrameBlobName("ns1", ResizedFramesDir, "00_00_01_00001_demo", ".JPG")
	assert.Equal(t, "ns1/re_size_frames/00_00_01_00001_demo.jpg", name)
	assert.Equal(t, "00_00_01_00001_demo", KeyFromBlobName(name))
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "my-clip", SourceName("uploads/user 1/my clip.mp4"))
	assert.Equal(t, "video", SourceName("///.mp4"))
}

func TestNewNamespaceIsUniquePerJob(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 11, 12, 0, time.UTC)
	a := NewNamespace(now, "demo", uuid.New())
	b := NewNamespace(now, "demo", uuid.New())
	assert.True(t, strings.HasPrefix(a, "20240309T101112_demo_"))
	assert.NotEqual(t, a, b)
}

func TestJobConfigValidate(t *testing.T) {
	valid := JobConfig{TargetFrameRate: 2, ImageWidth: 720, ImageFormat: "jpg"}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 500*time.Millisecond, valid.Interval())

	cases := map[string]JobConfig{
		"zero rate":       {TargetFrameRate: 0, ImageWidth: 720, ImageFormat: "jpg"},
		"negative offset": {TargetFrameRate: 1, StartOffsetSeconds: -1, ImageWidth: 720, ImageFormat: "jpg"},
		"zero width":      {TargetFrameRate: 1, ImageWidth: 0, ImageFormat: "jpg"},
		"bad format":      {TargetFrameRate: 1, ImageWidth: 720, ImageFormat: "gif"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestNewJobFailsFastOnInvalidConfig(t *testing.T) {
	_, err := NewJob("a.mp4", JobConfig{}, 3, time.Now())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestJobConfigRejectsUnusableFrameRates(t *testing.T) {
	for name, rate := range map[string]float64{
		"zero":                    0,
		"negative":                -2,
		"nan":                     math.NaN(),
		"infinite":                math.Inf(1),
		"sub-nanosecond interval": 1e10,
		"huge":                    1e12,
	} {
		t.Run(name, func(t *testing.T) {
			cfg := JobConfig{TargetFrameRate: rate, ImageWidth: 320, ImageFormat: "png"}
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := JobConfig{TargetFrameRate: 1e9, ImageWidth: 320, ImageFormat: "png"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Nanosecond, cfg.Interval())
}

func TestJobLifecycle(t *testing.T) {
	job, err := NewJob("videos/a.mp4", JobConfig{TargetFrameRate: 1, ImageWidth: 320, ImageFormat: "png"}, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, "a", job.SourceName)

	job.MarkExtracting()
	assert.True(t, job.CanRetry())
	job.MarkCompleted(4, 1, nil)
	assert.Equal(t, JobStatusCompleted, job.Status)

	job.BeginAttempt()
	assert.Equal(t, 2, job.Attempt)
	assert.False(t, job.CanRetry())
	job.MarkCompleted(4, 1, []FrameFailure{{Key: "k", Stage: StageDecode, Message: "bad"}})
	assert.Equal(t, JobStatusPartial, job.Status)

	job.MarkAborted("cannot open")
	assert.Equal(t, JobStatusAborted, job.Status)
	assert.Zero(t, job.FramesWritten)

	job.MarkExtracting()
	assert.Equal(t, 2, job.Attempt, "MarkExtracting never counts a second attempt")
}

func TestBoxScaleAndDocumentClone(t *testing.T) {
	assert.Equal(t, Box{X: 20, Y: 30, W: 200, H: 100}, Box{X: 10, Y: 15, W: 100, H: 50}.Scale(2, 2))

	doc := AnnotationDocument{"a": {{X: 1, Y: 1, W: 2, H: 2}}}
	cp := doc.Clone()
	cp["a"][0].X = 99
	cp["b"] = nil
	assert.Equal(t, 1, doc["a"][0].X)
	assert.NotContains(t, doc, "b")
}

func TestDiffAndRegionParamsValidate(t *testing.T) {
	require.NoError(t, DiffParams{Threshold: 30, MinArea: 500, BatchSize: 10}.Validate())
	assert.ErrorIs(t, DiffParams{Threshold: 0, MinArea: 500, BatchSize: 10}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, DiffParams{Threshold: 300, MinArea: 500, BatchSize: 10}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, DiffParams{Threshold: 30, MinArea: 500, BatchSize: 0}.Validate(), ErrInvalidConfig)

	require.NoError(t, RegionParams{MinArea: 5000, MaxArea: 5000}.Validate())
	assert.ErrorIs(t, RegionParams{MinArea: 6000, MaxArea: 5000}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, RegionParams{MinArea: -1, MaxArea: 5000}.Validate(), ErrInvalidConfig)
}
