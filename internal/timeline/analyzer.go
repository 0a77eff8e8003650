package timeline

import (
	"sort"

	"voice-converter/internal/domain"
)

// SortByStart returns sentences ordered by ascending start time. The sort
// is stable: sentences sharing a start keep their provider order.
func SortByStart(sentences []domain.Sentence) []domain.Sentence {
	out := append([]domain.Sentence(nil), sentences...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// Analyze computes the silences around and between sentences along with
// speech-efficiency metrics for a recording of totalDuration seconds.
// Sentences must already be sorted by start. Pure and idempotent; gaps
// below the negligible threshold are reported but flagged, never dropped.
func Analyze(sentences []domain.Sentence, totalDuration float64) domain.GapAnalysis {
	analysis := domain.GapAnalysis{
		TotalSentences: len(sentences),
		TotalDuration:  totalDuration,
	}

	for _, s := range sentences {
		analysis.TotalSpeechTime += s.Duration()
	}

	addGap := func(start, end float64) {
		duration := end - start
		if duration <= 0 {
			return
		}
		analysis.Gaps = append(analysis.Gaps, domain.Gap{
			Start:      start,
			End:        end,
			Duration:   duration,
			Negligible: duration < domain.NegligibleGap,
		})
		analysis.TotalGapTime += duration
	}

	if len(sentences) > 0 {
		addGap(0, sentences[0].Start)
		for i := 1; i < len(sentences); i++ {
			addGap(sentences[i-1].End, sentences[i].Start)
		}
		addGap(sentences[len(sentences)-1].End, totalDuration)
	} else {
		addGap(0, totalDuration)
	}

	if totalDuration > 0 {
		analysis.SpeechRatio = analysis.TotalSpeechTime / totalDuration
	}
	return analysis
}
