package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/voxchunk/internal/config"
	"github.com/fmueller/voxchunk/internal/logging"
	"github.com/fmueller/voxchunk/internal/session"
	"github.com/fmueller/voxchunk/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose     bool
	jsonLogs    bool
	noProgress  bool
	serverURL   string
	apiKey      string
	chunkSize   float64
	overlap     float64
	concurrency int
	quality     string
	language    string
	timestamps  bool
	autoScroll  bool
	silenceGate bool
	silenceDBFS float64
	metricsAddr string

	logger *zap.Logger
	out    io.Writer

	transcribeFn func(ctx context.Context, audioPath string) (session.Result, error)
}

func NewRootCmd() *cobra.Command {
	_ = config.Load()

	app := &appState{
		serverURL:   config.GetEnv(config.EnvServerURL, "http://localhost:9090"),
		apiKey:      config.GetEnv(config.EnvAPIKey, ""),
		chunkSize:   config.GetEnvFloat(config.EnvChunkSize, 60),
		overlap:     config.GetEnvFloat(config.EnvOverlap, 5),
		concurrency: config.GetEnvInt(config.EnvMaxConcurrency, 3),
		quality:     config.GetEnv(config.EnvQuality, string(session.QualityBalance)),
		language:    "auto",
		silenceGate: true,
		silenceDBFS: -65,
		out:         os.Stdout,
	}
	app.transcribeFn = app.transcribeAudio

	cmd := &cobra.Command{
		Use:           "voxchunk",
		Short:         "Transcribe long recordings in overlapping chunks against a speech server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.language = sanitizeLanguage(app.language)
			app.logger = logger
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindServerFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.serverURL, "server", app.serverURL, "Transcription server base URL")
	cmd.Flags().StringVar(&app.apiKey, "api-key", app.apiKey, "Bearer token for the transcription server")
}

func bindChunkingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().Float64Var(&app.chunkSize, "chunk-size", app.chunkSize, "Chunk window length in seconds (10-300)")
	cmd.Flags().Float64Var(&app.overlap, "overlap", app.overlap, "Overlap between adjacent chunks in seconds (0-30)")
	cmd.Flags().IntVar(&app.concurrency, "concurrency", app.concurrency, "Maximum chunks in flight (1-8)")
	cmd.Flags().StringVar(&app.quality, "quality", app.quality, "Quality mode: speed|balance|accuracy")
}

func bindOutputFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	cmd.Flags().BoolVar(&app.timestamps, "timestamps", app.timestamps, "Print one timestamped line per segment")
	cmd.Flags().BoolVar(&app.autoScroll, "auto-scroll", app.autoScroll, "UI hint passed through to embedding frontends")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent WAV audio and skip transcription")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func bindMetricsFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.metricsAddr, "metrics-addr", app.metricsAddr, "Expose Prometheus metrics on this address (e.g. :9091) while transcribing")
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ChunkSizeSeconds = a.chunkSize
	cfg.OverlapSeconds = a.overlap
	cfg.MaxConcurrency = a.concurrency
	cfg.Quality = session.QualityMode(strings.TrimSpace(strings.ToLower(a.quality)))
	cfg.AutoScroll = a.autoScroll
	return cfg
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
