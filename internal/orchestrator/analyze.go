package orchestrator

import (
	"context"
	"os"

	"voice-converter/internal/domain"
	"voice-converter/internal/timeline"
)

// speechRatioThreshold is the speech share below which timestamp-based
// reconstruction is recommended over the timeline-preserving policies.
const speechRatioThreshold = 0.9

// detailTextLimit caps sentence text in gap reports so long monologues
// do not bloat the response.
const detailTextLimit = 50

// SentenceDetail describes one transcribed sentence in a gap report.
// Text is truncated to detailTextLimit bytes.
type SentenceDetail struct {
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
	Retained bool    `json:"retained"`
}

// Recommendations suggests a reconstruction strategy based on how much of
// the recording is silence.
type Recommendations struct {
	UseTimestampBased     bool                        `json:"use_timestamp_based"`
	SuggestedPolicy       domain.ReconstructionPolicy `json:"suggested_policy"`
	GapReductionPotential float64                     `json:"gap_reduction_potential"`
	SpeechEfficiency      float64                     `json:"speech_efficiency"`
}

// GapReport is the full response of a gap analysis run.
type GapReport struct {
	Analysis          domain.GapAnalysis `json:"analysis"`
	Sentences         []SentenceDetail   `json:"sentences"`
	RetainedSentences int                `json:"retained_sentences"`
	Recommendations   Recommendations    `json:"recommendations"`
}

// AnalyzeGaps transcribes the file and reports its silence structure
// without synthesizing anything. The orchestrator takes ownership of the
// file and removes it when done.
func (o *Orchestrator) AnalyzeGaps(ctx context.Context, inputPath string) (GapReport, error) {
	defer os.Remove(inputPath)

	totalDuration, err := o.prober.Probe(ctx, inputPath)
	if err != nil {
		return GapReport{}, stageError(StageValidation, "could not measure input duration", err)
	}

	transcript, err := o.transcriber.Transcribe(ctx, inputPath)
	if err != nil {
		return GapReport{}, stageError(StageTranscription, "transcription failed", err)
	}

	sorted := timeline.SortByStart(transcript.Sentences)
	retained := timeline.Filter(sorted)
	analysis := timeline.Analyze(sorted, totalDuration)

	keptIndex := make(map[int]bool, len(retained))
	for _, s := range retained {
		keptIndex[s.SourceIndex] = true
	}

	details := make([]SentenceDetail, len(sorted))
	for i, s := range sorted {
		details[i] = SentenceDetail{
			Index:    i,
			Text:     truncate(s.Text, detailTextLimit),
			Start:    s.Start,
			End:      s.End,
			Duration: s.Duration(),
			Retained: keptIndex[i],
		}
	}

	recommended := domain.PolicyOriginal
	useTimestamps := analysis.SpeechRatio < speechRatioThreshold
	if useTimestamps {
		recommended = domain.PolicyTimestampBased
	}

	return GapReport{
		Analysis:          analysis,
		Sentences:         details,
		RetainedSentences: len(retained),
		Recommendations: Recommendations{
			UseTimestampBased:     useTimestamps,
			SuggestedPolicy:       recommended,
			GapReductionPotential: analysis.TotalGapTime,
			SpeechEfficiency:      analysis.SpeechRatio,
		},
	}, nil
}
