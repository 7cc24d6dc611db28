package entity

// Stages a per-frame failure can be attributed to.
const (
	StageDecode  = "decode"
	StageEncode  = "encode"
	StageStore   = "store"
	StageLoad    = "load"
	StageCompare = "compare"
	StageRegions = "regions"
	StageMarkup  = "markup"
)

// FrameFailure is one recovered, non-fatal error.
type FrameFailure struct {
	Key     string `json:"key"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func NewFrameFailure(key, stage string, err error) FrameFailure {
	return FrameFailure{Key: key, Stage: stage, Message: err.Error()}
}

// ExtractionReport summarizes one extraction run.
type ExtractionReport struct {
	Namespace      string         `json:"namespace"`
	SourceName     string         `json:"source_name"`
	Degraded       bool           `json:"degraded"`
	ExpectedFrames int            `json:"expected_frames"`
	Frames         []Frame        `json:"frames"`
	Failures       []FrameFailure `json:"failures,omitempty"`
}

func (r *ExtractionReport) FramesWritten() int {
	return len(r.Frames)
}

// DiffReport lists the flagged frames in input order plus everything that was
// skipped on the way.
type DiffReport struct {
	Compared     int            `json:"compared"`
	Flagged      []FrameRef     `json:"flagged"`
	RegionCounts map[string]int `json:"region_counts,omitempty"`
	Failures     []FrameFailure `json:"failures,omitempty"`
}

// MarkupReport collects rendered markup blob names per frame key.
type MarkupReport struct {
	Rendered map[string]string `json:"rendered"`
	Failures []FrameFailure    `json:"failures,omitempty"`
}
