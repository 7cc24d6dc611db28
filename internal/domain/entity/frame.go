package entity

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	OriginalFramesDir  = "orig_size_frames"
	ResizedFramesDir   = "re_size_frames"
	AnnotatedFramesDir = "annotated_frames"
	MarkupDir          = "markup"
	ActionArchiveName  = "action_frames.zip"
	ManifestName       = "extraction.json"
)

// Frame is one sampled point of a video. Both image variants share Key.
type Frame struct {
	Sequence       int           `json:"sequence"`
	Timestamp      time.Duration `json:"timestamp"`
	Key            string        `json:"key"`
	OriginalName   string        `json:"original_name"`
	ResizedName    string        `json:"resized_name"`
	OriginalWidth  int           `json:"original_width"`
	OriginalHeight int           `json:"original_height"`
	ResizedWidth   int           `json:"resized_width"`
	ResizedHeight  int           `json:"resized_height"`
}

// FrameKey formats the identity shared by the original and resized variants:
// <HH_MM_SS>_<00000seq>_<source>. Lexicographic order of keys equals
// chronological order within one job.
func FrameKey(ts time.Duration, sequence int, sourceName string) string {
	if ts < 0 {
		ts = 0
	}
	total := int(ts / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	return fmt.Sprintf("%02d_%02d_%02d_%05d_%s", h, m, s, sequence, sourceName)
}

// FrameBlobName joins a namespace, variant directory and key into a blob name.
func FrameBlobName(namespace, dir, key, ext string) string {
	return path.Join(namespace, dir, key+"."+strings.TrimPrefix(strings.ToLower(ext), "."))
}

// KeyFromBlobName strips the directory and extension from a frame blob name.
func KeyFromBlobName(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// FrameRef identifies a stored frame image for analysis.
type FrameRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ActionFrame links a flagged resized frame to its original-resolution twin.
// ScaleX and ScaleY convert resized-space coordinates to original space.
type ActionFrame struct {
	Key          string  `json:"key"`
	ResizedName  string  `json:"resized_name"`
	OriginalName string  `json:"original_name"`
	ScaleX       float64 `json:"scale_x"`
	ScaleY       float64 `json:"scale_y"`
	RegionCount  *int    `json:"region_count,omitempty"`
}
