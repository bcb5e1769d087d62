package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	cp "github.com/otiai10/copy"
	"github.com/smartcard-connector/format-code/config"
	"github.com/stretchr/testify/require"
)

func WriteConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create a new config file: %v", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err = encoder.Encode(cfg); err != nil {
		t.Fatalf("failed to write to config file: %v", err)
	}
}

// examplesDir is resolved when the test binary starts, before any test changes the working directory.
var examplesDir = func() string {
	dir, err := filepath.Abs("../test/examples")
	if err != nil {
		panic(fmt.Errorf("failed to resolve the examples directory: %w", err))
	}

	return dir
}()

// TempExamples copies the example sources into a temporary directory and returns its path.
func TempExamples(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	require.NoError(t, cp.Copy(examplesDir, tempDir), "failed to copy test data to dir")

	return tempDir
}

func TempFile(t *testing.T, dir string, pattern string, contents *string) *os.File {
	t.Helper()

	file, err := os.CreateTemp(dir, pattern)
	require.NoError(t, err, "failed to create temp file")

	if contents == nil {
		return file
	}

	_, err = file.WriteString(*contents)
	require.NoError(t, err, "failed to write contents to temp file")
	require.NoError(t, file.Close(), "failed to close temp file")

	file, err = os.Open(file.Name())
	require.NoError(t, err, "failed to open temp file")

	return file
}

// WriteScript writes an executable shell script with the given body into dir and returns its path.
func WriteScript(t *testing.T, dir string, name string, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	contents := "#!/bin/sh\n" + body + "\n"

	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755), "failed to write script %s", name) //nolint:gosec

	return path
}

// ReadLines returns the lines of the file at path, failing the test if it cannot be read.
// A missing file yields no lines.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}

	require.NoError(t, err, "failed to read %s", path)

	var lines []string

	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

// ChangeWorkDir changes the current working directory for the duration of the test.
// The original directory is restored when the test ends.
func ChangeWorkDir(t *testing.T, dir string) {
	t.Helper()

	// capture current cwd, so we can replace it after the test is finished
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(fmt.Errorf("failed to get current working directory: %w", err))
	}

	t.Cleanup(func() {
		// return to the previous working directory
		if err := os.Chdir(cwd); err != nil {
			t.Fatal(fmt.Errorf("failed to return to the previous working directory: %w", err))
		}
	})

	// change to the new directory
	if err = os.Chdir(dir); err != nil {
		t.Fatal(fmt.Errorf("failed to change working directory: %w", err))
	}
}
