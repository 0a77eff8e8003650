// Package diagnostics validates external tools, working directories and
// provider reachability for the health endpoint.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"voice-converter/internal/domain"
)

// Pinger checks whether a remote provider is reachable and accepts the
// configured credentials.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Provider names a pinger for the report.
type Provider struct {
	Name   string
	Pinger Pinger
}

// Checker validates external tools, filesystem paths and providers.
type Checker struct {
	ffmpegPath  string
	ffprobePath string
	uploadDir   string
	outputDir   string
	providers   []Provider
	pingTimeout time.Duration

	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(ffmpegPath, ffprobePath, uploadDir, outputDir string, providers ...Provider) *Checker {
	return &Checker{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		uploadDir:   uploadDir,
		outputDir:   outputDir,
		providers:   providers,
		pingTimeout: 5 * time.Second,
		lookPath:    exec.LookPath,
		mkdirAll:    os.MkdirAll,
		createTemp:  os.CreateTemp,
		remove:      os.Remove,
	}
}

// Run executes all checks and returns a combined report. Missing tools
// and unwritable directories are failures; unreachable providers only
// warn, since they can recover without a restart.
func (c *Checker) Run(ctx context.Context) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", c.ffmpegPath),
		c.checkTool("ffprobe", c.ffprobePath),
		c.checkDir("upload_dir", "Upload directory", c.uploadDir),
		c.checkDir("output_dir", "Output directory", c.outputDir),
	}
	for _, provider := range c.providers {
		items = append(items, c.checkProvider(ctx, provider))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable can be resolved.
func (c *Checker) checkTool(name, configured string) domain.DiagnosticItem {
	path, err := c.lookPath(configured)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", configured),
			Hint:    "Install it and ensure the binary is available on PATH before submitting a conversion.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkDir validates directory existence and write access.
func (c *Checker) checkDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Directory is not configured."
		item.Hint = "Set a directory where audio files can be written."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkProvider pings one remote API with a bounded timeout.
func (c *Checker) checkProvider(ctx context.Context, provider Provider) domain.DiagnosticItem {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	item := domain.DiagnosticItem{
		ID:   "provider_" + strings.ToLower(provider.Name),
		Name: provider.Name,
	}
	if err := provider.Pinger.Ping(ctx); err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Provider check failed: %v", err)
		item.Hint = "Verify the API key and network connectivity."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Provider is reachable."
	return item
}

// NewCheckerForTests creates a checker with injectable OS dependencies.
func NewCheckerForTests(
	ffmpegPath, ffprobePath, uploadDir, outputDir string,
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	providers ...Provider,
) *Checker {
	return &Checker{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		uploadDir:   uploadDir,
		outputDir:   outputDir,
		providers:   providers,
		pingTimeout: time.Second,
		lookPath:    lookPath,
		mkdirAll:    mkdirAll,
		createTemp:  createTemp,
		remove:      remove,
	}
}
