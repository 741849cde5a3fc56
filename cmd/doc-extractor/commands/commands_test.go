package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-extractor/cmd/doc-extractor/ui"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/pdf/pdftest"
)

const line = "Certificate of registration issued to the owner of the vehicle listed here."

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cfgFile, sourceDir, outputPath = "", "", ""
	verbose, noColor, jsonOut = false, true, false
	bestEffort, strict, noCache, localFile = false, false, false, false

	ui.SetOutput(io.Discard)
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Setenv("CONFIG_PATH", "")

	code := Execute()
	return stdout.String(), code
}

func writeDoc(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), pdftest.Build(pdftest.Repeat(line, 2)...), 0o644))
}

func TestExtract_NativeText(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rc.pdf")

	out, code := run(t, "extract", "--no-color", "-d", dir, "rc.pdf")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "--- Page 1 ---\n")
	assert.Contains(t, out, "--- Page 2 ---\n")
}

func TestExtract_JSONToFile(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rc.pdf")
	outFile := filepath.Join(t.TempDir(), "out.json")

	out, code := run(t, "extract", "-d", dir, "--json", "-o", outFile, "rc.pdf")
	require.Equal(t, exitOK, code)
	assert.Empty(t, out)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var result domain.ExtractionResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, domain.MethodNative, result.ExtractionMethod)
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, "rc.pdf", result.SourceFile)
}

func TestExtract_LocalFile(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "local.pdf")

	out, code := run(t, "extract", "--local", filepath.Join(dir, "local.pdf"))
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "--- Page 1 ---")
}

func TestExtract_ExitCodes(t *testing.T) {
	dir := t.TempDir()

	_, code := run(t, "extract", "-d", dir, "missing.pdf")
	assert.Equal(t, exitNotFound, code)

	_, code = run(t, "extract", "-d", dir, "notes.docx")
	assert.Equal(t, exitUnsupported, code)

	_, code = run(t, "extract", "--config", filepath.Join(dir, "nope.yaml"), "rc.pdf")
	assert.Equal(t, exitUsage, code)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), exitFailure},
		{domain.NotFoundError("x", nil), exitNotFound},
		{domain.PathTraversalError("x", nil), exitUnsupported},
		{domain.PageLimitError("x", nil), exitPageLimit},
		{domain.EngineUnavailableError("x", nil), exitOCR},
		{domain.PageFailedError(2, "x", nil), exitOCR},
		{domain.CanceledError(nil), exitCanceled},
		{domain.ConfigError("x", nil), exitUsage},
		{domain.StorageError("x", nil), exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestVersion(t *testing.T) {
	out, code := run(t, "version")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "doc-extractor version "+version)
}
