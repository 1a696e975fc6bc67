package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/flavioaiello/azure-functions-gen/pkg/config"
)

// NewExecCommand creates a new exec.Cmd bound to ctx. It runs in dir, or the
// current working directory when dir is empty, and inherits the environment
// with env appended.
func NewExecCommand(ctx context.Context, dir string, env []string, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if cmd.Dir == "" {
		// SECURITY: Getwd failure defaults to empty string (current dir), acceptable for CLI.
		cmd.Dir, _ = os.Getwd() //nolint:errcheck // Fallback to current directory is acceptable
	}
	cmd.Env = append(os.Environ(), env...)
	return cmd
}

// buildArgs returns the go build invocation producing the custom handler.
func buildArgs(cfg *config.Config, output string) []string {
	return []string{"build", "-trimpath", "-o", output, cfg.BuildPackage}
}

// buildEnv returns the environment selecting the handler build target.
func buildEnv(cfg *config.Config) []string {
	return []string{
		"GOOS=" + cfg.GOOS,
		"GOARCH=" + cfg.GOARCH,
		"CGO_ENABLED=0",
	}
}

// buildHandler compiles the custom handler into the staging directory. The
// build runs in the project directory and is bounded by the configured timeout.
func buildHandler(ctx context.Context, cfg *config.Config, projectDir string) (string, error) {
	output, err := filepath.Abs(cfg.ExecutablePath())
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable path: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.BuildTimeout)
	defer cancel()

	logger.Info("Building custom handler",
		zap.String("package", cfg.BuildPackage),
		zap.String("goos", cfg.GOOS),
		zap.String("goarch", cfg.GOARCH),
		zap.String("output", output),
	)

	cmd := NewExecCommand(ctx, projectDir, buildEnv(cfg), "go", buildArgs(cfg, output)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("handler build timed out after %v", cfg.BuildTimeout)
		}
		return "", fmt.Errorf("handler build failed: %w", err)
	}
	return output, nil
}
