// Package server exposes the conversion pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"voice-converter/internal/config"
	"voice-converter/internal/domain"
	"voice-converter/internal/jobs"
	"voice-converter/internal/orchestrator"
	"voice-converter/internal/voice"
)

// Converter runs conversions and gap analyses on uploaded files. An
// empty voiceID selects the configured default voice.
type Converter interface {
	Submit(ctx context.Context, inputPath string, policy domain.ReconstructionPolicy, voiceID string) (domain.Job, error)
	AnalyzeGaps(ctx context.Context, inputPath string) (orchestrator.GapReport, error)
}

// VoiceCatalog lists the synthesis voices available to the account.
type VoiceCatalog interface {
	Voices(ctx context.Context) ([]voice.Voice, error)
}

// HealthChecker produces the readiness report for the health endpoint.
type HealthChecker interface {
	Run(ctx context.Context) domain.DiagnosticReport
}

// OutputOpener hands back a stored output file for download.
type OutputOpener interface {
	Open(ref string) (*os.File, error)
}

// Server wires the HTTP routes to the pipeline components.
type Server struct {
	echo      *echo.Echo
	cfg       config.Config
	converter Converter
	store     jobs.Store
	events    *jobs.EventLog
	catalog   VoiceCatalog
	health    HealthChecker
	outputs   OutputOpener
	log       zerolog.Logger
}

func New(cfg config.Config, converter Converter, store jobs.Store, events *jobs.EventLog, catalog VoiceCatalog, health HealthChecker, outputs OutputOpener, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		cfg:       cfg,
		converter: converter,
		store:     store,
		events:    events,
		catalog:   catalog,
		health:    health,
		outputs:   outputs,
		log:       log,
	}

	e.POST("/upload", s.handleUpload)
	e.GET("/status/:id", s.handleStatus)
	e.GET("/download/:id", s.handleDownload)
	e.POST("/analyze-gaps", s.handleAnalyzeGaps)
	e.GET("/health", s.handleHealth)
	e.GET("/voices", s.handleVoices)
	e.GET("/jobs", s.handleListJobs)
	e.GET("/jobs/:id/events", s.handleJobEvents)

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type uploadResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing file field"})
	}
	if err := s.validateUpload(fileHeader); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	policy, err := resolvePolicy(c.FormValue)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	voiceID := strings.TrimSpace(c.FormValue("voice_id"))

	inputPath, err := s.saveUpload(fileHeader)
	if err != nil {
		s.log.Error().Err(err).Msg("could not store upload")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not store upload"})
	}

	job, err := s.converter.Submit(c.Request().Context(), inputPath, policy, voiceID)
	if err != nil {
		os.Remove(inputPath)
		s.log.Error().Err(err).Msg("could not submit job")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not start conversion"})
	}

	s.log.Info().Str("job_id", job.ID).Str("policy", string(policy)).Str("voice_id", voiceID).Str("file", fileHeader.Filename).Msg("conversion submitted")
	return c.JSON(http.StatusOK, uploadResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "file uploaded, conversion started",
	})
}

// statusResponse is the job projection served by the status endpoints.
// DownloadURL stays null until the output is ready.
type statusResponse struct {
	domain.Job
	DownloadURL *string `json:"download_url"`
}

func statusProjection(job domain.Job) statusResponse {
	resp := statusResponse{Job: job}
	if job.Status == domain.JobStatusCompleted {
		url := "/download/" + job.ID
		resp.DownloadURL = &url
	}
	return resp
}

func (s *Server) handleStatus(c echo.Context) error {
	job, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusProjection(job))
}

func (s *Server) handleDownload(c echo.Context) error {
	job, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
	}
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusCompleted {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("job is %s, output not ready", job.Status),
		})
	}

	file, err := s.outputs.Open(job.OutputRef)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("output missing")
		return c.JSON(http.StatusNotFound, errorResponse{Error: "output file not found"})
	}
	defer file.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", job.OutputRef))
	return c.Stream(http.StatusOK, "audio/wav", file)
}

func (s *Server) handleAnalyzeGaps(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing file field"})
	}
	if err := s.validateUpload(fileHeader); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	inputPath, err := s.saveUpload(fileHeader)
	if err != nil {
		s.log.Error().Err(err).Msg("could not store upload")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not store upload"})
	}

	report, err := s.converter.AnalyzeGaps(c.Request().Context(), inputPath)
	if err != nil {
		s.log.Error().Err(err).Msg("gap analysis failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleHealth(c echo.Context) error {
	report := s.health.Run(c.Request().Context())
	status := "ok"
	if report.HasFailures {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": status,
		"report": report,
	})
}

func (s *Server) handleVoices(c echo.Context) error {
	voices, err := s.catalog.Voices(c.Request().Context())
	if err != nil {
		s.log.Error().Err(err).Msg("could not list voices")
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "could not list voices"})
	}
	return c.JSON(http.StatusOK, map[string]any{"voices": voices})
}

func (s *Server) handleListJobs(c echo.Context) error {
	listed, err := s.store.List(c.Request().Context())
	if err != nil {
		return err
	}
	projected := make([]statusResponse, len(listed))
	for i, job := range listed {
		projected[i] = statusProjection(job)
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": projected})
}

func (s *Server) handleJobEvents(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.store.Get(c.Request().Context(), id); errors.Is(err, jobs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
	} else if err != nil {
		return err
	}

	since := int64(0)
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "since must be a non-negative integer"})
		}
		since = parsed
	}

	events := s.events.Since(id, since)
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// validateUpload enforces the extension whitelist and size limit before
// any disk write happens.
func (s *Server) validateUpload(header *multipart.FileHeader) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !s.cfg.ExtensionAllowed(ext) {
		return fmt.Errorf("file type %q not allowed, want one of: %s", ext, strings.Join(s.cfg.AllowedExtensions, ", "))
	}
	if header.Size > s.cfg.MaxUploadBytes() {
		return fmt.Errorf("file exceeds the %dMB limit", s.cfg.MaxFileSizeMB)
	}
	return nil
}

// saveUpload writes the multipart file into the upload directory under a
// fresh name. The converter owns the file from then on.
func (s *Server) saveUpload(header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	path := filepath.Join(s.cfg.UploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
