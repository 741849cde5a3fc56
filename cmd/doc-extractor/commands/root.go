package commands

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical/doc-extractor/cmd/doc-extractor/ui"
	"github.com/spherical/doc-extractor/internal/config"
	"github.com/spherical/doc-extractor/internal/domain"
	"github.com/spherical/doc-extractor/internal/observability"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitNotFound    = 3
	exitUnsupported = 4
	exitPageLimit   = 5
	exitOCR         = 6
	exitCanceled    = 130
)

var (
	cfgFile   string
	sourceDir string
	verbose   bool
	noColor   bool
	jsonOut   bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "doc-extractor",
	Short: "Extract text from PDFs and images",
	Long: `doc-extractor pulls text out of PDFs and images. PDFs with a usable text
layer are read directly. Scanned PDFs and images are rasterized, cleaned up
and passed through Tesseract OCR, with one "--- Page N ---" marker per page.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		ui.Init(noColor, verbose, jsonOut)

		path := cfgFile
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if sourceDir != "" {
			loaded.Source.Dir = sourceDir
		}
		if verbose {
			loaded.Observability.LogLevel = "debug"
		}
		cfg = loaded

		logger = observability.NewLogger(observability.LogConfig{
			Level:  cfg.Observability.LogLevel,
			Format: cfg.Observability.LogFormat,
			Output: os.Stderr,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVarP(&sourceDir, "source-dir", "d", "", "directory documents are resolved against")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(extractCmd, serveCmd, resultCmd, versionCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}
	ui.Error("%v", err)
	return exitCode(err)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return exitFailure
	}
	switch de.Kind {
	case domain.KindNotFound:
		return exitNotFound
	case domain.KindUnsupportedType, domain.KindPathTraversal:
		return exitUnsupported
	case domain.KindPageLimitExceeded:
		return exitPageLimit
	case domain.KindEngineUnavailable, domain.KindPageFailed, domain.KindRasterization:
		return exitOCR
	case domain.KindCanceled:
		return exitCanceled
	case domain.KindValidation, domain.KindConfig:
		return exitUsage
	default:
		return exitFailure
	}
}
