package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/doc-extractor/cmd/doc-extractor/ui"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/pkg/extractor"
)

var (
	outputPath string
	bestEffort bool
	strict     bool
	noCache    bool
	localFile  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text from a PDF or image",
	Long: `Extract text from a document in the source directory. With --local the
argument is read as a path on disk instead.`,
	Example: `  doc-extractor extract registration.pdf
  doc-extractor extract --best-effort -o out.txt scans/invoice.pdf
  doc-extractor extract --local --json ./receipt.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the text to this file instead of stdout")
	extractCmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON")
	extractCmd.Flags().BoolVar(&bestEffort, "best-effort", false, "skip pages that fail OCR instead of aborting")
	extractCmd.Flags().BoolVar(&strict, "strict", false, "abort on the first failed page, overriding config")
	extractCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache")
	extractCmd.Flags().BoolVar(&localFile, "local", false, "read the argument as a path on disk")
	extractCmd.MarkFlagsMutuallyExclusive("best-effort", "strict")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := extractor.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if !client.OCRAvailable() {
		ui.Debug("OCR engine unavailable, only native PDFs can be extracted")
	}

	opts := extractOptions()
	events := make(chan extractor.StreamEvent, 100)
	opts = append(opts, extractor.WithEvents(events))

	type outcome struct {
		result *extractor.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer close(events)
		r, err := runOne(ctx, client, args[0], opts)
		done <- outcome{r, err}
	}()

	renderProgress(args[0], events)
	o := <-done
	if o.err != nil {
		return o.err
	}
	return writeResult(cmd.OutOrStdout(), o.result)
}

func extractOptions() []extractor.Option {
	var opts []extractor.Option
	switch {
	case bestEffort:
		opts = append(opts, extractor.WithBestEffort())
	case strict:
		opts = append(opts, extractor.WithStrict())
	}
	if noCache {
		opts = append(opts, extractor.WithoutCache())
	}
	return opts
}

func runOne(ctx context.Context, client *extractor.Client, arg string, opts []extractor.Option) (*extractor.Result, error) {
	if !localFile {
		return client.Extract(ctx, arg, opts...)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NotFoundError(fmt.Sprintf("file %s not found", arg), err)
		}
		return nil, domain.IOError("read input file", err)
	}
	return client.ExtractBytes(ctx, filepath.Base(arg), data, opts...)
}

// renderProgress drives the spinner and page bar until events is closed.
func renderProgress(name string, events <-chan extractor.StreamEvent) {
	spin := ui.NewSpinner(fmt.Sprintf("Reading %s", name))
	spin.Start()
	defer spin.Stop()

	var bar *ui.ProgressBar
	for ev := range events {
		switch ev.Type {
		case extractor.EventClassified:
			ui.Debug("%s: %d pages, method %v", name, ev.TotalPages, ev.Payload)
			spin.UpdateMessage(fmt.Sprintf("Extracting %s (%d pages, %v)", name, ev.TotalPages, ev.Payload))
		case extractor.EventBatchStart:
			if bar == nil {
				spin.Stop()
				bar = ui.NewProgressBar(ev.TotalPages, "OCR")
			}
			bar.Describe(fmt.Sprintf("OCR %v", ev.Payload))
		case extractor.EventPageComplete:
			if bar != nil {
				bar.Add(1)
			}
		case extractor.EventPageFailed:
			if bar != nil {
				bar.Add(1)
			}
			ui.Warning("page %d skipped: %v", ev.PageNumber, ev.Payload)
		case extractor.EventComplete:
			if bar != nil {
				bar.Finish()
			}
		}
	}
}

func writeResult(stdout io.Writer, result *extractor.Result) error {
	w := stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return domain.IOError("create output file", err)
		}
		defer f.Close()
		w = f
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return domain.IOError("write result", err)
		}
	} else if _, err := fmt.Fprintln(w, result.Text); err != nil {
		return domain.IOError("write result", err)
	}

	if !jsonOut {
		ui.Success("%s: %d pages, %d characters via %s in %s",
			result.SourceFile, result.PageCount, result.CharacterCount, result.ExtractionMethod, result.Duration.Round(time.Millisecond))
		for _, f := range result.FailedPages {
			ui.Warning("page %d failed (%s): %s", f.Page, f.Kind, f.Message)
		}
		if outputPath != "" {
			ui.Info("Output written to %s", outputPath)
		}
	}
	return nil
}
