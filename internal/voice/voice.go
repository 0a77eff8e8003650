// Package voice wraps the external speech providers behind small
// interfaces so the pipeline can be exercised without network access.
package voice

import (
	"context"

	"voice-converter/internal/audio"
	"voice-converter/internal/domain"
)

// Transcript is the provider-independent result of a transcription.
type Transcript struct {
	FullText  string
	Sentences []domain.Sentence
	Language  string
	Duration  float64
}

// Transcriber turns an audio file into timestamped sentences.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// Synthesizer renders text into a waveform. An empty voiceID selects the
// provider's configured default voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (audio.Clip, error)
}

// Voice describes one selectable synthesis voice.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
