package sink

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

var soundExts = map[string]bool{".wav": true, ".mp3": true, ".ogg": true}

// AudioConfig configures the Audio sink.
type AudioConfig struct {
	Player    string  // "aplay" or "paplay"
	Device    string  // ALSA device for aplay
	SoundFile string  // used when SoundDir is empty
	SoundDir  string  // pick a random sound from here
	Quiet     bool    // pass -q to aplay
	Volume    float64 // clamped to [0,1]; paplay only
}

// Audio plays an alert sound through an external player and waits for it
// to finish.
type Audio struct {
	cfg AudioConfig
	run func(ctx context.Context, name string, args ...string) error
	rnd *rand.Rand
}

// NewAudio creates an Audio sink.
func NewAudio(cfg AudioConfig) *Audio {
	if cfg.Player == "" {
		cfg.Player = "aplay"
	}
	cfg.Volume = clampUnit(cfg.Volume)
	return &Audio{
		cfg: cfg,
		run: runCommand,
		rnd: rand.New(rand.NewSource(rand.Int63())),
	}
}

// Volume returns the clamped volume.
func (a *Audio) Volume() float64 { return a.cfg.Volume }

// Name implements Sink.
func (a *Audio) Name() string { return "audio" }

// Send implements Sink.
func (a *Audio) Send(ctx context.Context, _ *types.DetectionResult) error {
	file, err := a.pickSound()
	if err != nil {
		return err
	}

	name, args := a.command(file)
	logger.Info("Audio", "Playing alert sound: %s at volume %.2f", file, a.cfg.Volume)
	if err := a.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to play alert sound: %w", err)
	}
	return nil
}

func (a *Audio) command(file string) (string, []string) {
	switch a.cfg.Player {
	case "paplay":
		vol := int(a.cfg.Volume * 65536)
		return "paplay", []string{"--volume=" + strconv.Itoa(vol), file}
	default:
		args := []string{}
		if a.cfg.Device != "" {
			args = append(args, "-D", a.cfg.Device)
		}
		if a.cfg.Quiet {
			args = append(args, "-q")
		}
		return a.cfg.Player, append(args, file)
	}
}

func (a *Audio) pickSound() (string, error) {
	if a.cfg.SoundDir == "" {
		if a.cfg.SoundFile == "" {
			return "", errors.New("no alert sound configured")
		}
		return a.cfg.SoundFile, nil
	}

	entries, err := os.ReadDir(a.cfg.SoundDir)
	if err != nil {
		return "", fmt.Errorf("alert sound directory not found: %s", a.cfg.SoundDir)
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && soundExts[strings.ToLower(filepath.Ext(e.Name()))] {
			candidates = append(candidates, filepath.Join(a.cfg.SoundDir, e.Name()))
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no alert sounds found in: %s", a.cfg.SoundDir)
	}
	return candidates[a.rnd.Intn(len(candidates))], nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return err
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
