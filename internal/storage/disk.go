// Package storage persists rendered output audio and hands it back for
// download.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voice-converter/internal/audio"
)

// Disk writes output clips as WAV files under a single directory. The
// reference it returns is the bare file name, safe to embed in URLs.
type Disk struct {
	dir string
}

// NewDisk creates the output directory if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Save encodes the clip and writes it under a name derived from the job.
func (d *Disk) Save(jobID string, clip audio.Clip) (string, error) {
	ref := "converted_" + jobID + ".wav"
	path := filepath.Join(d.dir, ref)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	if err := audio.EncodeWAV(file, clip); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode output: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write output: %w", err)
	}
	return ref, nil
}

// Open returns the stored file for a reference produced by Save.
func (d *Disk) Open(ref string) (*os.File, error) {
	// References are bare names; anything else is a traversal attempt.
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil, fmt.Errorf("invalid output reference %q", ref)
	}
	return os.Open(filepath.Join(d.dir, ref))
}

// Remove deletes a stored output. Missing files are not an error.
func (d *Disk) Remove(ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return fmt.Errorf("invalid output reference %q", ref)
	}
	err := os.Remove(filepath.Join(d.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
