package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"meetscribe/internal/app"
	"meetscribe/internal/config"
	"meetscribe/internal/logger"
	"meetscribe/internal/transcriber"
)

const version = "1.0"

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitRecoverable = 3
)

// options holds the parsed command line
type options struct {
	file       string
	chunksDir  string
	session    string
	provider   string
	split      string
	configPath string
	logLevel   string
	dev        bool
	help       bool
	version    bool
}

// main is the application entry point
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("meetscribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.file, "file", "", "Transcribe a single audio file")
	fs.StringVar(&opts.chunksDir, "chunks", "", "Transcribe a recorded session directory")
	fs.StringVar(&opts.session, "session", "", "Transcribe a session by name from recording.dir")
	fs.StringVar(&opts.provider, "provider", "", "Transcription provider: local or remote")
	fs.StringVar(&opts.split, "split", "", "Split method for oversized audio: vad or size")
	fs.StringVar(&opts.configPath, "config", os.Getenv("MEETSCRIBE_CONFIG"), "Path to a YAML config file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&opts.dev, "dev", false, "Human-readable development logging")
	fs.BoolVar(&opts.help, "help", false, "Show help message")
	fs.BoolVar(&opts.version, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run contains the core application logic that can be tested
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if opts.help {
		printHelp(stdout)
		return exitOK
	}
	if opts.version {
		printVersion(stdout)
		return exitOK
	}
	if countSet(opts.file, opts.chunksDir, opts.session) != 1 {
		fmt.Fprintln(stderr, "Error: exactly one of -file, -chunks or -session is required")
		return exitUsage
	}
	if opts.session != "" && filepath.Base(opts.session) != opts.session {
		fmt.Fprintf(stderr, "Error: session name %q must not contain a path\n", opts.session)
		return exitUsage
	}

	cfg, err := loadConfiguration(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	log, err := logger.New(cfg.GetLogLevel(), opts.dev)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	log.Info("meetscribe starting up",
		zap.String("component", "main"),
		zap.String("version", version),
		zap.String("provider", cfg.GetProvider()),
		zap.String("split_method", cfg.GetSplitMethod()))

	application, err := app.NewApplication(cfg, log, stdout)
	if err != nil {
		log.Error("failed to create application", zap.String("component", "main"), zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
		}
	}()

	// Cancel on SIGINT/SIGTERM; already-issued requests finish, no further chunks start
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.file != "":
		err = application.TranscribeFile(ctx, opts.file)
	case opts.session != "":
		_, err = application.TranscribeSession(ctx, filepath.Join(cfg.GetRecordingDir(), opts.session))
	default:
		_, err = application.TranscribeSession(ctx, opts.chunksDir)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func loadConfiguration(opts *options) (*config.Configuration, error) {
	var cfg *config.Configuration
	var err error

	if opts.configPath != "" {
		cfg, err = config.NewConfigurationFromFile(opts.configPath)
	} else {
		cfg, err = config.NewConfigurationFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if opts.provider != "" {
		cfg.SetProvider(opts.provider)
	}
	if opts.split != "" {
		cfg.SetSplitMethod(opts.split)
	}
	if opts.logLevel != "" {
		cfg.SetLogLevel(opts.logLevel)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func countSet(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}

// exitCode tells scripts whether trying again may help
func exitCode(err error) int {
	if transcriber.IsRecoverable(err) {
		return exitRecoverable
	}
	return exitFailure
}

// printHelp displays command line usage information
func printHelp(w io.Writer) {
	fmt.Fprintln(w, "meetscribe - Meeting Audio Chunking and Transcription")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    meetscribe -file <audio> [OPTIONS]")
	fmt.Fprintln(w, "    meetscribe -chunks <session-dir> [OPTIONS]")
	fmt.Fprintln(w, "    meetscribe -session <name> [OPTIONS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "    -file <path>        Transcribe one audio file (WAV, or any format ffmpeg reads)")
	fmt.Fprintln(w, "    -chunks <dir>       Transcribe a recorded session using its manifest.yaml")
	fmt.Fprintln(w, "    -session <name>     Same as -chunks for <recording.dir>/<name>")
	fmt.Fprintln(w, "    -provider <name>    local or remote (default from config: remote)")
	fmt.Fprintln(w, "    -split <method>     vad or size (default from config: vad)")
	fmt.Fprintln(w, "    -config <file>      YAML config file (or MEETSCRIBE_CONFIG)")
	fmt.Fprintln(w, "    -log-level <level>  debug, info, warn or error")
	fmt.Fprintln(w, "    -dev                Console logs instead of JSON")
	fmt.Fprintln(w, "    -help               Show this help message")
	fmt.Fprintln(w, "    -version            Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CONFIGURATION:")
	fmt.Fprintln(w, "    Settings are read from the config file or MEETSCRIBE_* environment")
	fmt.Fprintln(w, "    variables, e.g. MEETSCRIBE_REMOTE_API_KEY, MEETSCRIBE_LOCAL_MODEL_NAME.")
	fmt.Fprintln(w, "    See config.example.yaml for available options.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OUTPUT:")
	fmt.Fprintln(w, "    One JSON line on stdout. Logs go to stderr.")
	fmt.Fprintln(w, "    Exit code 3 means the failure may succeed on retry.")
}

// printVersion displays version and build information
func printVersion(w io.Writer) {
	fmt.Fprintln(w, "meetscribe")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintln(w, "Architecture: Go 1.24 + FFmpeg + whisper.cpp or OpenAI-compatible API")
}
