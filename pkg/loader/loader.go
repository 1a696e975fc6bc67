// Package loader provides bounded file reads for source, project and
// descriptor files.
//
// SECURITY: All file operations enforce size limits so a stray generated or
// vendored file cannot exhaust memory during a build.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File size limits.
const (
	// MaxSourceFileSizeBytes is the maximum size of a Go source file (4MB).
	MaxSourceFileSizeBytes = 4 * 1024 * 1024
	// MaxProjectFileSizeBytes is the maximum size of azfunc.yaml or go.mod (1MB).
	MaxProjectFileSizeBytes = 1 * 1024 * 1024
	// MaxDescriptorFileSizeBytes is the maximum size of a function.json (1MB).
	MaxDescriptorFileSizeBytes = 1 * 1024 * 1024
)

// Errors.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	ErrNotAFile     = errors.New("path is a directory")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrEmptyYAML    = errors.New("YAML document must be a mapping")
)

// ReadFile reads path, refusing files larger than limit bytes.
func ReadFile(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	// SECURITY: Check file size before reading.
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s (%d bytes, max %d)",
			ErrFileTooLarge, path, info.Size(), limit)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	// The file may grow between stat and read.
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s (max %d)", ErrFileTooLarge, path, limit)
	}

	return data, nil
}

// LoadYAML reads a YAML mapping from path into out. Unknown keys are rejected.
func LoadYAML(path string, limit int64, out any) error {
	data, err := ReadFile(path, limit)
	if err != nil {
		return err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: %s", ErrEmptyYAML, path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return nil
}
