// Package bootstrap assembles configuration, stores, providers and the
// HTTP server into a runnable service.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"voice-converter/internal/audio"
	"voice-converter/internal/config"
	"voice-converter/internal/diagnostics"
	"voice-converter/internal/jobs"
	"voice-converter/internal/orchestrator"
	"voice-converter/internal/server"
	"voice-converter/internal/storage"
	"voice-converter/internal/voice"
)

const shutdownGrace = 30 * time.Second

// App holds the wired service components.
type App struct {
	Config       config.Config
	Log          zerolog.Logger
	Store        jobs.Store
	Events       *jobs.EventLog
	Orchestrator *orchestrator.Orchestrator
	Server       *server.Server
}

// New loads configuration from the environment and wires the service.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires the service around an already validated config.
func NewWithConfig(cfg config.Config) (*App, error) {
	log := newLogger(cfg.LogLevel)

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}
	events := jobs.NewEventLog(500)

	gladia := voice.NewGladia(cfg.GladiaAPIKey, cfg.GladiaBaseURL,
		cfg.TranscriptionInterval, cfg.TranscriptionTimeout,
		log.With().Str("component", "gladia").Logger())
	eleven := voice.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL,
		cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID, cfg.SampleRate, cfg.SynthesisTimeout,
		log.With().Str("component", "elevenlabs").Logger())
	ffmpeg := audio.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.SampleRate)

	outputs, err := storage.NewDisk(cfg.OutputDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:                store,
		Events:               events,
		Transcriber:          gladia,
		Synthesizer:          eleven,
		Prober:               ffmpeg,
		Outputs:              outputs,
		SampleRate:           cfg.SampleRate,
		JobWorkers:           cfg.JobWorkers,
		SynthesisConcurrency: cfg.SynthesisConcurrency,
		SynthesisRate:        cfg.SynthesisRateLimit,
		Log:                  log.With().Str("component", "orchestrator").Logger(),
	})

	checker := diagnostics.NewChecker(cfg.FFmpegPath, cfg.FFprobePath, cfg.UploadDir, cfg.OutputDir,
		diagnostics.Provider{Name: "Gladia", Pinger: gladia},
		diagnostics.Provider{Name: "ElevenLabs", Pinger: eleven},
	)

	srv := server.New(cfg, orch, store, events, eleven, checker, outputs,
		log.With().Str("component", "server").Logger())

	return &App{
		Config:       cfg,
		Log:          log,
		Store:        store,
		Events:       events,
		Orchestrator: orch,
		Server:       srv,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains running jobs.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start(a.Config.ListenAddr)
	}()
	a.Log.Info().Str("addr", a.Config.ListenAddr).Msg("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Error().Err(err).Msg("server shutdown")
	}
	if err := a.Orchestrator.Shutdown(shutdownCtx); err != nil {
		a.Log.Error().Err(err).Msg("orchestrator shutdown")
	}
	return a.Store.Close()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func newStore(cfg config.Config) (jobs.Store, error) {
	switch cfg.JobStore {
	case "sqlite":
		return jobs.NewSQLiteStore(cfg.JobStorePath)
	default:
		return jobs.NewMemoryStore(), nil
	}
}
