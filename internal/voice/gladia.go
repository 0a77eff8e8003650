package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voice-converter/internal/domain"
)

// Gladia is a client for the Gladia speech-to-text API. Transcription is
// asynchronous on their side: upload the file, start a job with sentence
// timestamps enabled, then poll until it settles.
type Gladia struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	maxWait      time.Duration
	client       *http.Client
	log          zerolog.Logger
}

func NewGladia(apiKey, baseURL string, pollInterval, maxWait time.Duration, log zerolog.Logger) *Gladia {
	return &Gladia{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: pollInterval,
		maxWait:      maxWait,
		client:       &http.Client{Timeout: 5 * time.Minute},
		log:          log,
	}
}

type gladiaUploadResponse struct {
	AudioURL string `json:"audio_url"`
}

type gladiaStartResponse struct {
	ID string `json:"id"`
}

type gladiaJobResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Result struct {
		Metadata struct {
			Language string  `json:"language"`
			Duration float64 `json:"duration"`
		} `json:"metadata"`
		Transcription struct {
			FullTranscript string `json:"full_transcript"`
			Utterances     []struct {
				Sentences []struct {
					Sentence string  `json:"sentence"`
					Start    float64 `json:"start"`
					End      float64 `json:"end"`
				} `json:"sentences"`
			} `json:"utterances"`
		} `json:"transcription"`
	} `json:"result"`
}

// Transcribe uploads the file, requests sentence-level timestamps and
// polls until Gladia reports the job done.
func (g *Gladia) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	g.log.Info().Str("path", audioPath).Msg("starting transcription")

	audioURL, err := g.upload(ctx, audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("upload audio: %w", err)
	}

	jobID, err := g.start(ctx, audioURL)
	if err != nil {
		return Transcript{}, fmt.Errorf("start transcription: %w", err)
	}

	result, err := g.poll(ctx, jobID)
	if err != nil {
		return Transcript{}, fmt.Errorf("poll transcription %s: %w", jobID, err)
	}

	transcript := parseTranscript(result)
	g.log.Info().
		Int("sentences", len(transcript.Sentences)).
		Str("language", transcript.Language).
		Msg("transcription completed")
	return transcript, nil
}

// Ping verifies the API is reachable and the key is accepted.
func (g *Gladia) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v2/transcription", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-gladia-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gladia unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("gladia rejected the API key")
	default:
		return fmt.Errorf("gladia returned status %d", resp.StatusCode)
	}
}

func (g *Gladia) upload(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-gladia-key", g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var uploaded gladiaUploadResponse
	if err := g.do(req, &uploaded); err != nil {
		return "", err
	}
	if uploaded.AudioURL == "" {
		return "", fmt.Errorf("no audio_url in upload response")
	}
	return uploaded.AudioURL, nil
}

func (g *Gladia) start(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"audio_url":   audioURL,
		"diarization": false,
		"sentences":   true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/transcription", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-gladia-key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var started gladiaStartResponse
	if err := g.do(req, &started); err != nil {
		return "", err
	}
	if started.ID == "" {
		return "", fmt.Errorf("no job id in response")
	}
	return started.ID, nil
}

func (g *Gladia) poll(ctx context.Context, jobID string) (gladiaJobResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v2/transcription/"+jobID, nil)
		if err != nil {
			return gladiaJobResponse{}, err
		}
		req.Header.Set("x-gladia-key", g.apiKey)

		var job gladiaJobResponse
		if err := g.do(req, &job); err != nil {
			return gladiaJobResponse{}, err
		}

		switch job.Status {
		case "done":
			return job, nil
		case "error":
			return gladiaJobResponse{}, fmt.Errorf("provider reported: %s", job.Error)
		}

		select {
		case <-ctx.Done():
			return gladiaJobResponse{}, fmt.Errorf("transcription did not finish: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *Gladia) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func parseTranscript(job gladiaJobResponse) Transcript {
	transcript := Transcript{
		FullText: job.Result.Transcription.FullTranscript,
		Language: job.Result.Metadata.Language,
		Duration: job.Result.Metadata.Duration,
	}
	for _, utterance := range job.Result.Transcription.Utterances {
		for _, s := range utterance.Sentences {
			text := strings.TrimSpace(s.Sentence)
			if text == "" {
				continue
			}
			transcript.Sentences = append(transcript.Sentences, domain.Sentence{
				Text:  text,
				Start: s.Start,
				End:   s.End,
			})
		}
	}
	return transcript
}
