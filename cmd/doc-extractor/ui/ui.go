// Package ui provides terminal output helpers for the doc-extractor CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var (
	errOut  io.Writer = os.Stderr
	verbose bool
	quiet   bool
)

// Init applies the global output flags. Quiet suppresses spinners and
// progress bars, which is what --json output needs.
func Init(noColor, verboseOutput, quietOutput bool) {
	if noColor {
		color.NoColor = true
	}
	verbose = verboseOutput
	quiet = quietOutput
}

// SetOutput redirects status output. Stdout is left to extracted text.
func SetOutput(w io.Writer) {
	errOut = w
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(errOut, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(errOut, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(errOut, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	if quiet {
		return
	}
	color.New(color.FgCyan).Fprintf(errOut, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Debug is only printed with --verbose.
func Debug(format string, args ...interface{}) {
	if !verbose || quiet {
		return
	}
	color.New(color.FgBlue).Fprintf(errOut, "→ %s\n", fmt.Sprintf(format, args...))
}

// Spinner wraps a spinner for phases with no page count yet.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a stopped spinner with the given message.
func NewSpinner(message string) *Spinner {
	if quiet {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = errOut
	return &Spinner{spinner: s}
}

// Start starts the animation.
func (s *Spinner) Start() {
	if s.spinner != nil {
		s.spinner.Start()
	}
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	if s.spinner != nil {
		s.spinner.Lock()
		s.spinner.Suffix = " " + message
		s.spinner.Unlock()
	}
}

// ProgressBar tracks pages through OCR.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a page progress bar.
func NewProgressBar(total int, description string) *ProgressBar {
	if quiet {
		return &ProgressBar{}
	}
	bar := progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

// Add advances the bar by n pages.
func (p *ProgressBar) Add(n int) {
	if p.bar != nil {
		_ = p.bar.Add(n)
	}
}

// Describe replaces the bar's description.
func (p *ProgressBar) Describe(description string) {
	if p.bar != nil {
		p.bar.Describe(description)
	}
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
