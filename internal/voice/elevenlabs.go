package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-converter/internal/audio"
)

// ElevenLabs is a client for the ElevenLabs text-to-speech API. Clips are
// requested as raw 16-bit PCM at the pipeline sample rate so no transcode
// step sits between synthesis and reconstruction.
type ElevenLabs struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
	sampleRate int
	client     *http.Client
	log        zerolog.Logger
}

func NewElevenLabs(apiKey, baseURL, voiceID, modelID string, sampleRate int, timeout time.Duration, log zerolog.Logger) *ElevenLabs {
	return &ElevenLabs{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		voiceID:    voiceID,
		modelID:    modelID,
		sampleRate: sampleRate,
		client:     &http.Client{Timeout: timeout},
		log:        log,
	}
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func defaultVoiceSettings() voiceSettings {
	return voiceSettings{Stability: 0.5, SimilarityBoost: 0.8, Style: 0, UseSpeakerBoost: true}
}

// Synthesize renders text in the requested voice and decodes the PCM
// response into a clip. An empty voiceID falls back to the configured
// default voice.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (audio.Clip, error) {
	if voiceID == "" {
		voiceID = e.voiceID
	}
	payload, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.modelID,
		VoiceSettings: defaultVoiceSettings(),
	})
	if err != nil {
		return audio.Clip{}, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d", e.baseURL, voiceID, e.sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return audio.Clip{}, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	clip := audio.Clip{SampleRate: e.sampleRate, Samples: audio.DecodePCM16(body)}
	e.log.Debug().
		Int("text_len", len(text)).
		Float64("duration", clip.Duration()).
		Msg("synthesized sentence")
	return clip, nil
}

// Voices lists the voices available to the configured account.
func (e *ElevenLabs) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.Voices, nil
}

// Ping verifies the API is reachable and the key is accepted.
func (e *ElevenLabs) Ping(ctx context.Context) error {
	_, err := e.Voices(ctx)
	return err
}
