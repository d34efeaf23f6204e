package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/scanprep/internal/artifact"
	"github.com/fpang/scanprep/internal/cli"
	"github.com/fpang/scanprep/internal/command"
	"github.com/fpang/scanprep/internal/config"
	"github.com/fpang/scanprep/internal/dispatch"
	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/logging"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/session"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Persistent flags. Unset flags fall back to SCANPREP_* settings.
var (
	baseURLFlag     string
	logLevelFlag    string
	maxAttemptsFlag int
	stateFileFlag   string
	downloadDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "scanprep",
	Short: "Terminal client for a remote MRI preprocessing and tumor-detection service",
	Long: `Scanprep uploads MRI images to an imaging service, runs preprocessing,
augmentation and tumor detection on them, and saves the results.

Without a subcommand scanprep starts an interactive shell. Use "scanprep run"
to execute a fixed pipeline non-interactively.

Settings are read from SCANPREP_* environment variables (a .env file in the
working directory is loaded first) and can be overridden with flags.

Examples:
  scanprep --base-url http://mri-lab:5000
  scanprep run ./scans --op normalization --op detect
  scanprep run a.png b.png --op augmentation --augmentation flipping --download-all results.zip`,
	Run: runShell,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseURLFlag, "base-url", "", "Imaging service base URL (default from SCANPREP_BASE_URL)")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.IntVar(&maxAttemptsFlag, "max-attempts", 0, "Attempts per operation before giving up")
	pf.StringVar(&stateFileFlag, "state-file", "", "Persist session state to this file and resume from it")
	pf.StringVar(&downloadDirFlag, "download-dir", "", "Directory results are saved to when no S3 bucket is set")

	rootCmd.AddCommand(runCmd, shellCmd, opsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitUsage)
	}
}

// app is everything a scanprep command needs.
type app struct {
	cfg     *config.Config
	session *session.Session
	surface *feedback.Surface
	proc    *command.Processor
}

// setup resolves configuration and wires the processor. Any failure here is
// fatal.
func setup(ctx context.Context, cmd *cobra.Command) *app {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Init("info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyFlags(cmd, cfg)
	logging.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	s := cli.InitSession(cfg.StateFile)

	client := remote.NewClient(cfg.BaseURL, cfg.Timeout)
	client.SetSessionID(s.ID)

	surface := feedback.NewSurface(feedback.RealClock(), feedback.NewTerminal(os.Stdout))

	sink, location := newSink(ctx, cfg, s.ID)

	dispatchOpts := []dispatch.Option{
		dispatch.WithMaxAttempts(cfg.MaxAttempts),
		dispatch.WithRetryStep(cfg.RetryStep),
	}
	if cfg.Metrics {
		dispatchOpts = append(dispatchOpts, dispatch.WithMetrics(os.Stderr))
	}

	opts := []command.Option{
		command.WithOutput(os.Stdout),
		command.WithDispatchOptions(dispatchOpts...),
	}
	if cfg.StateFile != "" {
		opts = append(opts, command.WithStateFile(cfg.StateFile))
	}
	proc := command.NewProcessor(s, client, surface, sink, opts...)

	startup := logging.NewStartupLogger(cmd.Name()).
		Version(version).
		Session(s.ID).
		Storage("results", location).
		Feature("metrics", cfg.Metrics).
		Feature("resumed", s.HasOriginals()).
		Config("baseUrl", cfg.BaseURL).
		Config("timeout", cfg.Timeout.String()).
		Config("maxAttempts", strconv.Itoa(cfg.MaxAttempts)).
		Config("retryStep", cfg.RetryStep.String()).
		Config("augmentationType", cfg.AugmentationType)
	if cfg.StateFile != "" {
		startup.Storage("state", cfg.StateFile)
	}
	startup.InitDuration(time.Since(start)).Log()

	return &app{cfg: cfg, session: s, surface: surface, proc: proc}
}

// applyFlags lets explicitly set flags override environment settings.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = baseURLFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if flags.Changed("max-attempts") {
		cfg.MaxAttempts = maxAttemptsFlag
	}
	if flags.Changed("state-file") {
		cfg.StateFile = stateFileFlag
	}
	if flags.Changed("download-dir") {
		cfg.DownloadDir = downloadDirFlag
	}
}

// newSink picks S3 when a bucket is configured, otherwise the download
// directory. It also returns a printable location for startup logging.
func newSink(ctx context.Context, cfg *config.Config, sessionID string) (artifact.Sink, string) {
	if cfg.S3Bucket == "" {
		return artifact.DirSink{Dir: cfg.DownloadDir}, cfg.DownloadDir
	}
	sink, err := artifact.NewS3Sink(ctx, cfg.S3Bucket, cfg.S3Prefix, sessionID)
	if err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.S3Bucket).Msg("Failed to initialize S3 results sink")
	}
	return sink, fmt.Sprintf("s3://%s/%s", cfg.S3Bucket, sink.Key(""))
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exit logs err and terminates with the matching exit code.
func exit(ctx context.Context, err error) {
	if ctx.Err() != nil {
		log.Warn().Msg("Interrupted")
		os.Exit(cli.ExitInterrupted)
	}
	if err != nil {
		cli.LogFailure(err)
	}
	os.Exit(cli.ExitCode(err))
}
