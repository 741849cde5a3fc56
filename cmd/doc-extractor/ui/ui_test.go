package ui

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinner_UpdateMessage(t *testing.T) {
	Init(true, false, false)
	SetOutput(io.Discard)
	t.Cleanup(func() { SetOutput(io.Discard) })

	s := NewSpinner("Reading scan.pdf")
	require.NotNil(t, s.spinner)
	s.UpdateMessage("Extracting scan.pdf (3 pages, ocr)")
	assert.Equal(t, " Extracting scan.pdf (3 pages, ocr)", s.spinner.Suffix)
}

func TestQuietSuppressesProgress(t *testing.T) {
	var buf bytes.Buffer
	Init(true, true, true)
	SetOutput(&buf)
	t.Cleanup(func() {
		Init(true, false, false)
		SetOutput(io.Discard)
	})

	s := NewSpinner("Reading")
	s.Start()
	s.UpdateMessage("still reading")
	s.Stop()
	assert.Nil(t, s.spinner)

	Info("hidden")
	Debug("hidden")
	Warning("shown")
	assert.Equal(t, "⚠ shown\n", buf.String())
}
