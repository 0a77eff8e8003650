package domain

import "time"

// Sentence is one transcribed speech segment with its original timestamps.
// Timestamps are seconds from the start of the source recording.
type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the original span of the sentence in seconds.
func (s Sentence) Duration() float64 {
	return s.End - s.Start
}

// IndexedSentence pairs a retained sentence with its position in the
// provider result so filtered output stays traceable to the source.
type IndexedSentence struct {
	Sentence
	SourceIndex int `json:"source_index"`
}

// Gap is a silent interval between or around sentences in the original
// recording. Gaps shorter than NegligibleGap are reported but flagged.
type Gap struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Duration   float64 `json:"duration"`
	Negligible bool    `json:"negligible,omitempty"`
}

// NegligibleGap is the threshold in seconds below which a silence is
// treated as a detector artifact rather than a meaningful pause.
const NegligibleGap = 0.1

// GapAnalysis summarizes silences and speech efficiency for one recording.
type GapAnalysis struct {
	Gaps            []Gap   `json:"gaps"`
	TotalSentences  int     `json:"total_sentences"`
	TotalDuration   float64 `json:"total_duration"`
	TotalSpeechTime float64 `json:"total_speech_time"`
	TotalGapTime    float64 `json:"total_gap_time"`
	SpeechRatio     float64 `json:"speech_ratio"`
}

// JobStatus tracks the lifecycle of a single conversion job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are legal.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the externally observable record of one conversion request.
// It is mutated only by the orchestrator; readers always get snapshots.
type Job struct {
	ID        string               `json:"job_id"`
	Status    JobStatus            `json:"status"`
	Progress  float64              `json:"progress"`
	Message   string               `json:"message"`
	Error     string               `json:"error,omitempty"`
	OutputRef string               `json:"output_ref,omitempty"`
	Policy    ReconstructionPolicy `json:"policy"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}
