// Package staging writes generated function descriptors into a function app
// staging directory laid out as <dir>/<function>/function.json.
package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/otiai10/copy"
	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/function"
)

// Host files copied next to the function directories.
const (
	HostFile          = "host.json"
	LocalSettingsFile = "local.settings.json"
)

// Permissions for staged files.
const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Errors.
var (
	ErrInvalidDirectory = errors.New("invalid staging directory")
	ErrWriteFailed      = errors.New("failed to write function configuration")
)

// Writer stages function configurations.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter creates a writer for dir, creating the directory if needed.
func NewWriter(dir string, logger *zap.Logger) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidDirectory)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidDirectory, dir)
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}

	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the staging directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteConfigurations validates every configuration, then writes them in
// name order. Nothing is written when any configuration is invalid.
func (w *Writer) WriteConfigurations(configs map[string]*function.Configuration) ([]string, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := configs[name].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path, err := w.write(configs[name])
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	w.logger.Info("Staged function configurations",
		zap.String("dir", w.dir),
		zap.Int("count", len(paths)),
	)
	return paths, nil
}

func (w *Writer) write(cfg *function.Configuration) (string, error) {
	data, err := cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	fnDir := filepath.Join(w.dir, cfg.Name)
	if err := os.MkdirAll(fnDir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWriteFailed, cfg.Name, err)
	}

	path := filepath.Join(fnDir, function.FileName)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWriteFailed, cfg.Name, err)
	}

	w.logger.Debug("Wrote function configuration",
		zap.String("function", cfg.Name),
		zap.String("path", path),
	)
	return path, nil
}

// CleanStale removes function directories that hold a function.json but are
// not in keep. Other directories are left alone.
func (w *Writer) CleanStale(keep map[string]*function.Configuration) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := keep[e.Name()]; ok {
			continue
		}
		fnDir := filepath.Join(w.dir, e.Name())
		if _, err := os.Stat(filepath.Join(fnDir, function.FileName)); err != nil {
			continue
		}
		if err := os.RemoveAll(fnDir); err != nil {
			return removed, fmt.Errorf("failed to remove stale function %s: %w", e.Name(), err)
		}
		w.logger.Info("Removed stale function", zap.String("function", e.Name()))
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// CopyHostFiles copies host.json and local.settings.json from srcDir. When
// srcDir has no host.json, a custom handler host.json pointing at executable
// is written instead.
func (w *Writer) CopyHostFiles(srcDir, executable string) error {
	for _, name := range []string{HostFile, LocalSettingsFile} {
		src := filepath.Join(srcDir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copy.Copy(src, filepath.Join(w.dir, name), copy.Options{
			OnSymlink: func(string) copy.SymlinkAction {
				return copy.Skip
			},
		}); err != nil {
			return fmt.Errorf("failed to copy %s: %w", name, err)
		}
		w.logger.Debug("Copied host file", zap.String("file", name))
	}

	if _, err := os.Stat(filepath.Join(w.dir, HostFile)); err == nil {
		return nil
	}
	return w.writeDefaultHost(executable)
}

// HostConfig is the subset of host.json written for custom handlers.
type HostConfig struct {
	Version         string              `json:"version"`
	CustomHandler   CustomHandlerConfig `json:"customHandler"`
	ExtensionBundle *ExtensionBundle    `json:"extensionBundle,omitempty"`
	FunctionTimeout string              `json:"functionTimeout,omitempty"`
}

// CustomHandlerConfig describes the handler process.
type CustomHandlerConfig struct {
	Description                 CustomHandlerDescription `json:"description"`
	EnableForwardingHTTPRequest bool                     `json:"enableForwardingHttpRequest"`
}

// CustomHandlerDescription names the handler executable.
type CustomHandlerDescription struct {
	DefaultExecutablePath string `json:"defaultExecutablePath"`
}

// ExtensionBundle selects the binding extension bundle.
type ExtensionBundle struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// DefaultHostConfig returns the host.json of a Go custom handler.
func DefaultHostConfig(executable string) HostConfig {
	return HostConfig{
		Version: "2.0",
		CustomHandler: CustomHandlerConfig{
			Description: CustomHandlerDescription{DefaultExecutablePath: executable},
		},
		ExtensionBundle: &ExtensionBundle{
			ID:      "Microsoft.Azure.Functions.ExtensionBundle",
			Version: "[4.*, 5.0.0)",
		},
	}
}

func (w *Writer) writeDefaultHost(executable string) error {
	data, err := json.MarshalIndent(DefaultHostConfig(executable), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", HostFile, err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, HostFile), append(data, '\n'), filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", HostFile, err)
	}
	w.logger.Info("Wrote default host configuration", zap.String("executable", executable))
	return nil
}
