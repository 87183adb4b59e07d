// Command detect-once classifies a single image and prints the result as
// JSON. It is meant for tuning thresholds against saved frames.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/detector"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/evidence"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

type output struct {
	Image     string                 `json:"image"`
	Backend   string                 `json:"backend"`
	Result    *types.DetectionResult `json:"result"`
	Status    string                 `json:"status"`
	Annotated string                 `json:"annotated,omitempty"`
}

func main() {
	var (
		configPath string
		envFile    string
		backend    string
		endpoint   string
		annotate   string
		logLevel   string
	)

	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file (existing environment wins)")
	flag.StringVar(&backend, "backend", "", "Detector backend override (remote, ollama)")
	flag.StringVar(&endpoint, "endpoint", "", "Detector endpoint override")
	flag.StringVar(&annotate, "annotate", "", "Write an annotated copy into this directory")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: detect-once [flags] <image>")
	}
	imagePath := flag.Arg(0)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, true)

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if backend != "" {
		cfg.Model.Backend = backend
	}
	if endpoint != "" {
		cfg.Model.Endpoint = endpoint
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := detectContext(cfg.Model.Timeout)
	defer cancel()

	out, err := detectImage(ctx, cfg, imagePath, annotate)
	if err != nil {
		log.Fatalf("%v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("%v", err)
	}
}

// detectContext bounds the run by timeout. A zero timeout means no bound,
// matching how the backends treat it.
func detectContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// detectImage classifies imagePath and optionally writes the annotated copy
// into annotateDir.
func detectImage(ctx context.Context, cfg *config.Config, imagePath, annotateDir string) (output, error) {
	det, err := newDetector(cfg)
	if err != nil {
		return output{}, err
	}

	frame, err := source.NewFile(imagePath).Acquire(ctx)
	if err != nil {
		return output{}, err
	}

	result, err := det.Detect(ctx, frame)
	if err != nil {
		return output{}, err
	}

	out := output{
		Image:   imagePath,
		Backend: det.Backend(),
		Result:  result,
		Status:  evidence.StatusText(result, cfg.Detection.ReferenceLabel),
	}

	if annotateDir != "" {
		saver, err := evidence.NewSaver("", annotateDir, cfg.Detection.ReferenceLabel)
		if err != nil {
			return output{}, err
		}
		if out.Annotated, err = saver.Save(frame, result); err != nil {
			return output{}, fmt.Errorf("failed to save annotated image: %w", err)
		}
	}
	return out, nil
}

func newDetector(cfg *config.Config) (*detector.Detector, error) {
	classifier := detector.ClassifierFor(cfg.Model, cfg.Detection)
	return detector.Open(cfg.Model.Backend, cfg.Model.Endpoint, cfg.Model.ModelPath, cfg.Model.Timeout, classifier)
}
