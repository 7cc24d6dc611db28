package entity

import "github.com/google/uuid"

// ExtractionRequestMessage is the inbound message from the frames.extraction queue.
type ExtractionRequestMessage struct {
	JobID         uuid.UUID  `json:"job_id"`
	VideoKey      string     `json:"video_key"`
	FileSize      int64      `json:"file_size"`
	Config        *JobConfig `json:"config,omitempty"`
	DetectActions bool       `json:"detect_actions"`
	NotifyEmail   string     `json:"notify_email,omitempty"`
}

// JobStatusMessage is the outbound message published to the frames.status queue.
type JobStatusMessage struct {
	JobID         uuid.UUID      `json:"job_id"`
	Namespace     string         `json:"namespace"`
	Status        JobStatus      `json:"status"`
	VideoKey      string         `json:"video_key"`
	FramesWritten int            `json:"frames_written"`
	ActionFrames  int            `json:"action_frames,omitempty"`
	ArchiveKey    string         `json:"archive_key,omitempty"`
	Failures      []FrameFailure `json:"failures,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"max_attempts"`
}
