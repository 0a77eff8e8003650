package timeline

import (
	"unicode"

	"voice-converter/internal/domain"
)

const (
	minSentenceDuration = 0.1
	minSentenceRunes    = 2
)

// Filter drops sentences too short or too empty to synthesize: anything
// under minSentenceDuration seconds, or whose text holds fewer than
// minSentenceRunes letters or digits once punctuation and whitespace are
// stripped. Survivors keep their relative order and remember the index
// they held in the input so synthesized clips can be matched back.
func Filter(sentences []domain.Sentence) []domain.IndexedSentence {
	var kept []domain.IndexedSentence
	for i, s := range sentences {
		if !speakable(s) {
			continue
		}
		kept = append(kept, domain.IndexedSentence{Sentence: s, SourceIndex: i})
	}
	return kept
}

func speakable(s domain.Sentence) bool {
	if s.Duration() < minSentenceDuration {
		return false
	}
	count := 0
	for _, r := range s.Text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			count++
			if count >= minSentenceRunes {
				return true
			}
		}
	}
	return false
}
