// Package main is the sfnode runner. It executes a batch of SiliconFlow node
// items from a file or stdin, or serves the same item loop over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blueberrycongee/sfnodes"
	"github.com/blueberrycongee/sfnodes/internal/config"
	"github.com/blueberrycongee/sfnodes/internal/observability"
)

// APIKeyEnv supplies the API key when no config file is given.
const APIKeyEnv = "SILICONFLOW_API_KEY"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	input      string
	serve      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("sfnode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to configuration file")
	fs.StringVar(&opts.input, "input", "-", `items file, or "-" for stdin`)
	fs.BoolVar(&opts.serve, "serve", false, "serve POST /v1/execute instead of running one batch")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.serve && opts.configPath == "" {
		return opts, fmt.Errorf("-serve requires -config")
	}
	return opts, nil
}

// run is main without the process exit, returning the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "sfnode: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "sfnode: %v\n", err)
		return 1
	}

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		logger.RedactedError("failed to initialize telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if opts.serve {
		return serve(ctx, opts.configPath, logger, tel)
	}

	client, err := buildClient(cfg, logger, tel)
	if err != nil {
		logger.RedactedError("failed to create client", "error", err)
		return 1
	}
	defer client.Close()

	// One batch ID for the runner and the client logs.
	ctx, _ = observability.GetOrCreateBatchID(ctx)
	logger = logger.WithBatchID(ctx).WithFields("input", opts.input)

	in, closeIn, err := openInput(opts.input, stdin)
	if err != nil {
		logger.RedactedError("failed to open input", "error", err)
		return 1
	}
	defer closeIn()

	if err := runBatch(ctx, client, in, stdout); err != nil {
		logger.RedactedError("batch failed", "error", err)
		return 1
	}
	logger.RedactedInfo("batch finished")
	return 0
}

// loadConfig reads path, or builds a default config keyed from the
// environment when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	cfg := config.DefaultConfig()
	cfg.Credentials.APIKey = os.Getenv(APIKeyEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("no -config given and %s is not usable: %w", APIKeyEnv, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (*observability.Logger, error) {
	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     out,
		JSONFormat: cfg.Logging.Format != "text",
	}, observability.NewRedactor()), nil
}

// buildClient maps the runner config onto client options.
func buildClient(cfg *config.Config, logger *observability.Logger, tel *telemetry) (*sfnodes.Client, error) {
	opts := []sfnodes.Option{
		sfnodes.WithCredentials(cfg.Credentials),
		sfnodes.WithAllowPrivateBaseURL(cfg.Execution.AllowPrivateBaseURL),
		sfnodes.WithContinueOnFail(cfg.Execution.ContinueOnFail),
		sfnodes.WithLogger(logger.Slog()),
	}
	opts = append(opts, tel.clientOptions()...)
	if cfg.Execution.Timeout > 0 {
		opts = append(opts, sfnodes.WithTimeout(cfg.Execution.Timeout))
	}
	if cfg.Execution.MaxResponseBytes > 0 {
		opts = append(opts, sfnodes.WithMaxResponseBytes(cfg.Execution.MaxResponseBytes))
	}
	if rps := cfg.RequestsPerSecond(); rps > 0 {
		opts = append(opts, sfnodes.WithRateLimit(rps, cfg.Execution.RateLimit.Burst))
	}
	return sfnodes.New(opts...)
}

func openInput(name string, stdin io.Reader) (io.Reader, func(), error) {
	if name == "" || name == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
