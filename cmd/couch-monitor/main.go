package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
)

var (
	// Command-line flags
	configPath  = flag.String("config", "", "YAML config file")
	envFile     = flag.String("env-file", ".env", "dotenv file (existing environment wins)")
	sourceKind  = flag.String("source", "", "Frame source override (file, dir, snapshot, screen, shm)")
	sourcePath  = flag.String("source-path", "", "Frame source path override")
	httpAddr    = flag.String("http", "", "Status server address override (\"off\" disables it)")
	metricsAddr = flag.String("metrics", "", "Standalone metrics server address")
	pprofAddr   = flag.String("pprof", "", "pprof server address")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error, silent)")
	testMode    = flag.Bool("test-mode", false, "Send a synthetic alert every few cycles")
	once        = flag.Bool("once", false, "Run a single cycle and exit")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always happens.
func run() int {
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	closeLog, err := initLogger(cfg.Logging)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer closeLog()
	defer logger.Sync()

	logger.Info("Main", "Couch monitor starting...")
	logger.Info("Main", "Watching for %s on %s (bystander %q, policy %s)",
		cfg.Detection.TargetLabel, cfg.Detection.ReferenceLabel,
		cfg.Detection.BystanderLabel, cfg.Detection.BystanderPolicy)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		logger.Error("Main", "Startup failed: %v", err)
		return 1
	}
	defer a.Close()

	if *once {
		report := a.monitor.RunCycle(context.WithoutCancel(ctx))
		if report.Failed() {
			logger.Error("Main", "Cycle failed at %s: %v", report.Stage, report.Err)
			return 1
		}
		logger.Info("Main", "Cycle done: %s", report.Decision)
		return 0
	}

	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if *metricsAddr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", *metricsAddr)
			if err := a.metrics.StartServer(*metricsAddr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	if a.status != nil {
		go func() {
			if err := a.status.ListenAndServe(ctx); err != nil {
				logger.Error("Main", "Status server error: %v", err)
				stop()
			}
		}()
	}

	if err := a.monitor.Run(ctx); err != nil {
		logger.Error("Main", "Monitor stopped: %v", err)
		return 1
	}
	logger.Info("Main", "Couch monitor stopped")
	return 0
}

func applyFlags(cfg *config.Config) {
	if *sourceKind != "" {
		cfg.Camera.Source = *sourceKind
	}
	if *sourcePath != "" {
		cfg.Camera.Path = *sourcePath
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *testMode {
		cfg.Detection.TestMode = true
	}
}

// initLogger sets up the global logger, teeing into the log file when one
// is configured. The returned func closes the file.
func initLogger(cfg config.LoggingConfig) (func(), error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	if cfg.Format == "json" {
		logger.InitJSON(level, out, "couch-monitor")
	} else {
		// Escape codes would end up in the log file.
		logger.Init(level, out, cfg.Color && cfg.File == "")
	}
	return closeFn, nil
}
