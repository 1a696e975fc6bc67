package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFile(t *testing.T) {
	tempDir := t.TempDir()
	path := writeFile(t, tempDir, "main.go", "package main\n")

	data, err := ReadFile(path, MaxSourceFileSizeBytes)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestReadFile_NotFound(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.go"), MaxSourceFileSizeBytes)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestReadFile_Directory(t *testing.T) {
	_, err := ReadFile(t.TempDir(), MaxSourceFileSizeBytes)
	assert.ErrorIs(t, err, ErrNotAFile)
}

func TestReadFile_TooLarge(t *testing.T) {
	tempDir := t.TempDir()
	path := writeFile(t, tempDir, "big.go", strings.Repeat("x", 129))

	_, err := ReadFile(path, 128)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

type project struct {
	Roots  []string `yaml:"roots"`
	Output string   `yaml:"output"`
}

func TestLoadYAML(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "valid",
			content: "roots: [./handlers]\noutput: dist\n",
		},
		{
			name:    "unknown key",
			content: "roots: [./handlers]\noutptu: dist\n",
			wantErr: ErrInvalidYAML,
		},
		{
			name:    "syntax error",
			content: "roots: [./handlers\n",
			wantErr: ErrInvalidYAML,
		},
		{
			name:    "empty document",
			content: "",
			wantErr: ErrEmptyYAML,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tempDir, "azfunc.yaml", tt.content)

			var p project
			err := LoadYAML(path, MaxProjectFileSizeBytes, &p)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"./handlers"}, p.Roots)
			assert.Equal(t, "dist", p.Output)
		})
	}
}
