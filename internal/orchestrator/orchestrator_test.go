package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voice-converter/internal/audio"
	"voice-converter/internal/domain"
	"voice-converter/internal/jobs"
	"voice-converter/internal/storage"
	"voice-converter/internal/voice"
)

const testRate = 1000

type fakeTranscriber struct {
	transcript voice.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (voice.Transcript, error) {
	return f.transcript, f.err
}

type fakeSynthesizer struct {
	duration float64
	failText string

	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32

	mu       sync.Mutex
	voiceIDs []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (audio.Clip, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		old := f.peak.Load()
		if n <= old || f.peak.CompareAndSwap(old, n) {
			break
		}
	}
	f.calls.Add(1)
	f.mu.Lock()
	f.voiceIDs = append(f.voiceIDs, voiceID)
	f.mu.Unlock()
	time.Sleep(2 * time.Millisecond)

	if f.failText != "" && text == f.failText {
		return audio.Clip{}, errors.New("voice service exploded")
	}
	clip := audio.Silence(testRate, f.duration)
	for i := range clip.Samples {
		clip.Samples[i] = 0.5
	}
	return clip, nil
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Probe(context.Context, string) (float64, error) {
	return f.duration, f.err
}

type failingOutputs struct{}

func (failingOutputs) Save(string, audio.Clip) (string, error) {
	return "", errors.New("disk full")
}

func speechTranscript() voice.Transcript {
	return voice.Transcript{
		Sentences: []domain.Sentence{
			{Text: "Hi", Start: 0.33, End: 0.47},
			{Text: "so today", Start: 1.15, End: 2.23},
			{Text: "I will demonstrate", Start: 2.57, End: 7.52},
		},
		Language: "en",
		Duration: 33.29,
	}
}

func tempInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o644))
	return path
}

func newTestOrchestrator(t *testing.T, deps Deps) *Orchestrator {
	t.Helper()
	if deps.Store == nil {
		deps.Store = jobs.NewMemoryStore()
	}
	if deps.Events == nil {
		deps.Events = jobs.NewEventLog(100)
	}
	if deps.Outputs == nil {
		disk, err := storage.NewDisk(t.TempDir())
		require.NoError(t, err)
		deps.Outputs = disk
	}
	if deps.SampleRate == 0 {
		deps.SampleRate = testRate
	}
	if deps.JobWorkers == 0 {
		deps.JobWorkers = 2
	}
	if deps.SynthesisConcurrency == 0 {
		deps.SynthesisConcurrency = 2
	}
	deps.Log = zerolog.Nop()

	o := New(deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})
	return o
}

func waitForTerminal(t *testing.T, store jobs.Store, id string) domain.Job {
	t.Helper()
	var job domain.Job
	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestSubmitRunsPipelineToCompletion(t *testing.T) {
	store := jobs.NewMemoryStore()
	events := jobs.NewEventLog(100)
	outDir := t.TempDir()
	disk, err := storage.NewDisk(outDir)
	require.NoError(t, err)

	o := newTestOrchestrator(t, Deps{
		Store:       store,
		Events:      events,
		Transcriber: &fakeTranscriber{transcript: speechTranscript()},
		Synthesizer: &fakeSynthesizer{duration: 0.5},
		Prober:      &fakeProber{duration: 33.29},
		Outputs:     disk,
	})

	input := tempInput(t)
	job, err := o.Submit(context.Background(), input, domain.PolicyOriginal, "")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, domain.PolicyOriginal, job.Policy)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusCompleted, final.Status)
	require.Equal(t, float64(100), final.Progress)
	require.Empty(t, final.Error)
	require.Equal(t, "converted_"+job.ID+".wav", final.OutputRef)

	data, err := os.ReadFile(filepath.Join(outDir, final.OutputRef))
	require.NoError(t, err)
	rendered, err := audio.DecodeWAV(bytes.NewReader(data))
	require.NoError(t, err)
	require.InDelta(t, 33.29, rendered.Duration(), 0.01)

	require.Eventually(t, func() bool {
		_, err := os.Stat(input)
		return os.IsNotExist(err)
	}, 5*time.Second, 5*time.Millisecond, "uploaded input must be cleaned up")

	history := events.Since(job.ID, 0)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	require.Equal(t, jobs.EventTypeResult, last.Type)
	require.Equal(t, final.OutputRef, last.OutputRef)
}

func TestSubmitFailsWhenNothingSurvivesFiltering(t *testing.T) {
	store := jobs.NewMemoryStore()
	o := newTestOrchestrator(t, Deps{
		Store: store,
		Transcriber: &fakeTranscriber{transcript: voice.Transcript{
			Sentences: []domain.Sentence{
				{Text: "!!", Start: 0, End: 1.0},
				{Text: "hm", Start: 1.0, End: 1.04},
			},
		}},
		Synthesizer: &fakeSynthesizer{duration: 0.5},
		Prober:      &fakeProber{duration: 10},
	})

	job, err := o.Submit(context.Background(), tempInput(t), domain.PolicyOriginal, "")
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusFailed, final.Status)
	require.Contains(t, final.Error, "no speech detected")
	require.GreaterOrEqual(t, final.Progress, float64(10), "failure must not roll progress back")
}

func TestSubmitFailsOnSynthesisError(t *testing.T) {
	store := jobs.NewMemoryStore()
	o := newTestOrchestrator(t, Deps{
		Store:       store,
		Transcriber: &fakeTranscriber{transcript: speechTranscript()},
		Synthesizer: &fakeSynthesizer{duration: 0.5, failText: "so today"},
		Prober:      &fakeProber{duration: 33.29},
	})

	job, err := o.Submit(context.Background(), tempInput(t), domain.PolicyContinuous, "")
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusFailed, final.Status)
	require.Contains(t, final.Error, StageSynthesis)
	require.Contains(t, final.Error, "voice service exploded")
}

func TestSubmitFailsOnTranscriptionError(t *testing.T) {
	store := jobs.NewMemoryStore()
	o := newTestOrchestrator(t, Deps{
		Store:       store,
		Transcriber: &fakeTranscriber{err: errors.New("api key rejected")},
		Synthesizer: &fakeSynthesizer{duration: 0.5},
		Prober:      &fakeProber{duration: 33.29},
	})

	job, err := o.Submit(context.Background(), tempInput(t), domain.PolicyOriginal, "")
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusFailed, final.Status)
	require.Contains(t, final.Error, StageTranscription)
}

func TestSubmitFailsOnPersistenceError(t *testing.T) {
	store := jobs.NewMemoryStore()
	o := newTestOrchestrator(t, Deps{
		Store:       store,
		Transcriber: &fakeTranscriber{transcript: speechTranscript()},
		Synthesizer: &fakeSynthesizer{duration: 0.5},
		Prober:      &fakeProber{duration: 33.29},
		Outputs:     failingOutputs{},
	})

	job, err := o.Submit(context.Background(), tempInput(t), domain.PolicyOriginal, "")
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusFailed, final.Status)
	require.Contains(t, final.Error, StagePersistence)
	require.Contains(t, final.Error, "disk full")
}

func TestSynthesisConcurrencyIsBounded(t *testing.T) {
	sentences := make([]domain.Sentence, 8)
	for i := range sentences {
		start := float64(i)
		sentences[i] = domain.Sentence{
			Text:  fmt.Sprintf("sentence number %d", i),
			Start: start,
			End:   start + 0.8,
		}
	}

	store := jobs.NewMemoryStore()
	synth := &fakeSynthesizer{duration: 0.5}
	o := newTestOrchestrator(t, Deps{
		Store:                store,
		Transcriber:          &fakeTranscriber{transcript: voice.Transcript{Sentences: sentences}},
		Synthesizer:          synth,
		Prober:               &fakeProber{duration: 10},
		SynthesisConcurrency: 2,
	})

	job, err := o.Submit(context.Background(), tempInput(t), domain.PolicyContinuous, "")
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusCompleted, final.Status)
	require.Equal(t, int32(8), synth.calls.Load())
	require.LessOrEqual(t, synth.peak.Load(), int32(2))
}

func TestAnalyzeGaps(t *testing.T) {
	o := newTestOrchestrator(t, Deps{
		Transcriber: &fakeTranscriber{transcript: speechTranscript()},
		Synthesizer: &fakeSynthesizer{duration: 0.5},
		Prober:      &fakeProber{duration: 33.29},
	})

	input := tempInput(t)
	report, err := o.AnalyzeGaps(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, report.Analysis.Gaps, 4)
	require.InDelta(t, 27.12, report.Analysis.TotalGapTime, 1e-9)
	require.InDelta(t, 6.17, report.Analysis.TotalSpeechTime, 1e-9)

	require.Len(t, report.Sentences, 3)
	require.Equal(t, 3, report.RetainedSentences)
	require.True(t, report.Sentences[0].Retained)

	require.True(t, report.Recommendations.UseTimestampBased)
	require.Equal(t, domain.PolicyTimestampBased, report.Recommendations.SuggestedPolicy)
	require.InDelta(t, 27.12, report.Recommendations.GapReductionPotential, 1e-9)

	_, statErr := os.Stat(input)
	require.True(t, os.IsNotExist(statErr), "analyzed input must be cleaned up")
}

func TestSubmitPassesVoiceSelectionToSynthesizer(t *testing.T) {
	store := jobs.NewMemoryStore()
	synth := &fakeSynthesizer{duration: 0.5}
	o := newTestOrchestrator(t, Deps{
		Store:       store,
		Transcriber: &fakeTranscriber{transcript: speechTranscript()},
		Synthesizer: synth,
		Prober:      &fakeProber{duration: 33.29},
	})

	job, err := o.Submit(context.Background(), tempInput(t), domain.PolicyContinuous, "voice-b")
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	require.Equal(t, domain.JobStatusCompleted, final.Status)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	require.Len(t, synth.voiceIDs, 3)
	for _, id := range synth.voiceIDs {
		require.Equal(t, "voice-b", id)
	}
}

func TestAnalyzeGapsTruncatesLongSentences(t *testing.T) {
	long := strings.Repeat("the quick brown fox ", 10)
	o := newTestOrchestrator(t, Deps{
		Transcriber: &fakeTranscriber{transcript: voice.Transcript{
			Sentences: []domain.Sentence{{Text: long, Start: 0, End: 5}},
		}},
		Synthesizer: &fakeSynthesizer{},
		Prober:      &fakeProber{duration: 10},
	})

	report, err := o.AnalyzeGaps(context.Background(), tempInput(t))
	require.NoError(t, err)
	require.Len(t, report.Sentences, 1)

	text := report.Sentences[0].Text
	require.LessOrEqual(t, len(text), detailTextLimit+len("..."))
	require.True(t, strings.HasSuffix(text, "..."))
}

func TestTruncateCutsOnRuneBoundaries(t *testing.T) {
	require.Equal(t, "short", truncate("short", 40))

	s := strings.Repeat("é", 30)
	got := truncate(s, 41)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("é", 20)+"...", got)
}

func TestAnalyzeGapsProbeFailure(t *testing.T) {
	o := newTestOrchestrator(t, Deps{
		Transcriber: &fakeTranscriber{},
		Synthesizer: &fakeSynthesizer{},
		Prober:      &fakeProber{err: errors.New("ffprobe missing")},
	})

	_, err := o.AnalyzeGaps(context.Background(), tempInput(t))
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, StageValidation, perr.Stage)
}
