// Package orchestrator runs the conversion pipeline: transcribe, filter,
// synthesize per sentence, reconstruct the timeline and persist the
// result, reporting progress through the job store along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"voice-converter/internal/audio"
	"voice-converter/internal/domain"
	"voice-converter/internal/jobs"
	"voice-converter/internal/timeline"
	"voice-converter/internal/voice"
)

// Prober measures the duration of an audio file in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// OutputStore persists a rendered clip and returns its download reference.
type OutputStore interface {
	Save(jobID string, clip audio.Clip) (string, error)
}

// Deps collects everything the orchestrator needs to run a job.
type Deps struct {
	Store       jobs.Store
	Events      *jobs.EventLog
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer
	Prober      Prober
	Outputs     OutputStore

	SampleRate           int
	JobWorkers           int
	SynthesisConcurrency int
	// SynthesisRate caps synthesis requests per second across all jobs.
	SynthesisRate float64

	Log zerolog.Logger
}

// Orchestrator owns the background workers executing conversion jobs.
type Orchestrator struct {
	store         jobs.Store
	events        *jobs.EventLog
	transcriber   voice.Transcriber
	synthesizer   voice.Synthesizer
	prober        Prober
	outputs       OutputStore
	reconstructor *timeline.Reconstructor

	workers    chan struct{}
	synthSlots int
	limiter    *rate.Limiter
	log        zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(deps Deps) *Orchestrator {
	if deps.JobWorkers < 1 {
		deps.JobWorkers = 1
	}
	if deps.SynthesisConcurrency < 1 {
		deps.SynthesisConcurrency = 1
	}
	limit := rate.Inf
	if deps.SynthesisRate > 0 {
		limit = rate.Limit(deps.SynthesisRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:         deps.Store,
		events:        deps.Events,
		transcriber:   deps.Transcriber,
		synthesizer:   deps.Synthesizer,
		prober:        deps.Prober,
		outputs:       deps.Outputs,
		reconstructor: timeline.NewReconstructor(deps.SampleRate),
		workers:       make(chan struct{}, deps.JobWorkers),
		synthSlots:    deps.SynthesisConcurrency,
		limiter:       rate.NewLimiter(limit, 1),
		log:           deps.Log,
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// Submit registers a new job for the uploaded file and schedules it on a
// background worker. The returned job is the queued snapshot; callers
// poll the store for progress. An empty voiceID uses the synthesizer's
// default voice. The orchestrator takes ownership of the file at
// inputPath and removes it when the job settles.
func (o *Orchestrator) Submit(ctx context.Context, inputPath string, policy domain.ReconstructionPolicy, voiceID string) (domain.Job, error) {
	job := domain.Job{
		ID:      uuid.NewString(),
		Status:  domain.JobStatusQueued,
		Policy:  policy,
		Message: "queued for processing",
	}
	if err := o.store.Create(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	o.events.Publish(job.ID, jobs.Event{Type: jobs.EventTypeStatus, Status: domain.JobStatusQueued, Message: job.Message})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		select {
		case o.workers <- struct{}{}:
			defer func() { <-o.workers }()
		case <-o.baseCtx.Done():
			o.fail(job.ID, stageError(StageValidation, "service shutting down", o.baseCtx.Err()))
			return
		}
		o.run(job.ID, inputPath, policy, voiceID)
	}()

	return o.snapshot(ctx, job.ID)
}

// Shutdown stops accepting progress on queued jobs and waits for running
// ones to settle.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(jobID, inputPath string, policy domain.ReconstructionPolicy, voiceID string) {
	ctx := o.baseCtx
	log := o.log.With().Str("job_id", jobID).Logger()
	defer os.Remove(inputPath)

	if err := o.store.SetStatus(ctx, jobID, domain.JobStatusProcessing, "starting conversion"); err != nil {
		log.Error().Err(err).Msg("job did not start")
		return
	}
	o.events.Publish(jobID, jobs.Event{Type: jobs.EventTypeStatus, Status: domain.JobStatusProcessing, Message: "starting conversion"})

	o.progress(jobID, 10, "analyzing input audio")
	totalDuration, err := o.prober.Probe(ctx, inputPath)
	if err != nil {
		o.fail(jobID, stageError(StageValidation, "could not measure input duration", err))
		return
	}

	transcript, err := o.transcriber.Transcribe(ctx, inputPath)
	if err != nil {
		o.fail(jobID, stageError(StageTranscription, "transcription failed", err))
		return
	}

	sorted := timeline.SortByStart(transcript.Sentences)
	retained := timeline.Filter(sorted)
	if len(retained) == 0 {
		o.fail(jobID, stageError(StageReconstruction, "no speech detected", nil))
		return
	}
	log.Info().
		Int("sentences", len(sorted)).
		Int("retained", len(retained)).
		Float64("duration", totalDuration).
		Msg("transcription filtered")

	o.progress(jobID, 30, fmt.Sprintf("synthesizing %d sentences", len(retained)))
	clips, err := o.synthesizeAll(ctx, jobID, voiceID, retained)
	if err != nil {
		o.fail(jobID, stageError(StageSynthesis, "synthesis failed", err))
		return
	}

	o.progress(jobID, 80, "reconstructing timeline")
	rendered, err := o.reconstructor.Render(policy, retained, clips, totalDuration)
	if err != nil {
		var matchErr *audio.DurationMatchError
		if errors.As(err, &matchErr) {
			o.fail(jobID, stageError(StageDurationMatch, "clip did not fit its slot", err))
			return
		}
		o.fail(jobID, stageError(StageReconstruction, "timeline reconstruction failed", err))
		return
	}

	o.progress(jobID, 90, "encoding output")
	ref, err := o.outputs.Save(jobID, rendered)
	if err != nil {
		o.fail(jobID, stageError(StagePersistence, "could not persist output", err))
		return
	}

	if err := o.store.Complete(ctx, jobID, ref, "conversion completed"); err != nil {
		log.Error().Err(err).Msg("could not mark job completed")
		return
	}
	o.events.Publish(jobID, jobs.Event{Type: jobs.EventTypeResult, Status: domain.JobStatusCompleted, OutputRef: ref, Message: "conversion completed"})
	log.Info().Str("output", ref).Msg("job completed")
}

// synthesizeAll renders every retained sentence concurrently, bounded by
// the synthesis slot count and the provider rate limit. The first failure
// cancels the remaining work.
func (o *Orchestrator) synthesizeAll(parent context.Context, jobID, voiceID string, sentences []domain.IndexedSentence) ([]timeline.SynthesizedClip, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	clips := make([]timeline.SynthesizedClip, len(sentences))
	sem := make(chan struct{}, o.synthSlots)
	total := len(sentences)

	var mu sync.Mutex
	var firstErr error
	var completed int
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i, s := range sentences {
		wg.Add(1)
		go func(i int, s domain.IndexedSentence) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if err := o.limiter.Wait(ctx); err != nil {
				return
			}

			clip, err := o.synthesizer.Synthesize(ctx, s.Text, voiceID)
			if err != nil {
				fail(fmt.Errorf("sentence %d (%q): %w", s.SourceIndex, truncate(s.Text, 40), err))
				return
			}

			mu.Lock()
			clips[i] = timeline.SynthesizedClip{Index: i, Waveform: clip}
			completed++
			done := completed
			mu.Unlock()

			pct := 30 + 50*float64(done)/float64(total)
			o.progress(jobID, pct, fmt.Sprintf("synthesized sentence %d/%d", done, total))
		}(i, s)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return clips, nil
}

func (o *Orchestrator) progress(jobID string, pct float64, message string) {
	if err := o.store.SetProgress(context.Background(), jobID, pct, message); err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("progress update dropped")
		return
	}
	o.events.Publish(jobID, jobs.Event{Type: jobs.EventTypeProgress, Progress: pct, Message: message})
}

func (o *Orchestrator) fail(jobID string, perr *PipelineError) {
	o.log.Error().Err(perr).Str("job_id", jobID).Str("stage", perr.Stage).Msg("job failed")
	if err := o.store.Fail(context.Background(), jobID, perr.Error()); err != nil {
		o.log.Error().Err(err).Str("job_id", jobID).Msg("could not mark job failed")
	}
	o.events.Publish(jobID, jobs.Event{Type: jobs.EventTypeError, Status: domain.JobStatusFailed, Message: perr.Error()})
}

func (o *Orchestrator) snapshot(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// truncate shortens s to at most max bytes, cutting on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
