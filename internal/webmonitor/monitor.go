package webmonitor

import (
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/alert"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/monitor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// State collects cycle reports for the status API. It implements
// monitor.Observer.
type State struct {
	cfg       Config
	startTime time.Time
	events    *EventBroadcaster

	mu           sync.Mutex
	stats        MonitorStats
	latest       *DetectionEvent
	history      []DetectionEvent
	latestFrame  *types.Frame
	latestResult *types.DetectionResult
}

// NewState creates a State that forwards every event to events.
func NewState(cfg Config, events *EventBroadcaster) *State {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &State{
		cfg:       cfg,
		startTime: time.Now(),
		events:    events,
		stats: MonitorStats{
			Target:          cfg.Target,
			Reference:       cfg.Reference,
			IntervalSeconds: cfg.Interval.Seconds(),
			CooldownSeconds: cfg.Cooldown.Seconds(),
		},
	}
}

// Observe implements monitor.Observer.
func (s *State) Observe(report monitor.CycleReport) {
	event := DetectionEvent{
		Cycle:      report.Cycle,
		Timestamp:  unixSeconds(report.Time),
		Decision:   report.Decision.Action.String(),
		Detections: detectionsFromResult(report.Result),
	}
	if report.Result != nil {
		event.SourceTag = report.Result.SourceTag
		event.ConditionMet = report.Result.ConditionMet
		event.OverlapRatio = report.Result.OverlapRatio
		event.BystanderOnReference = report.Result.BystanderOnReference
		event.Confidences = report.Result.Confidences
	}
	if report.Err != nil {
		event.Error = report.Err.Error()
	}

	s.mu.Lock()
	s.stats.CyclesRun++
	s.stats.LastCycle = event.Timestamp
	s.stats.LastCycleMs = report.Duration.Milliseconds()
	if report.Failed() {
		s.stats.FailedCycles++
	}
	if report.TestAlert {
		s.stats.TestAlerts++
	}
	switch report.Decision.Action {
	case alert.Alert:
		s.stats.Alerts++
		s.stats.LastAlert = event.Timestamp
	case alert.Suppressed:
		s.stats.Suppressed++
	}

	s.latest = &event
	if report.Result != nil && report.Frame != nil {
		s.latestFrame = report.Frame
		s.latestResult = report.Result
	}
	if len(event.Detections) > 0 || event.Error != "" {
		s.history = append([]DetectionEvent{event}, s.history...)
		if len(s.history) > s.cfg.HistorySize {
			s.history = s.history[:s.cfg.HistorySize]
		}
	}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Publish(event)
	}
}

// Snapshot returns the current stats, latest event and history.
func (s *State) Snapshot() (MonitorStats, *DetectionEvent, []DetectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.UptimeSeconds = time.Since(s.startTime).Seconds()

	var latest *DetectionEvent
	if s.latest != nil {
		copied := *s.latest
		latest = &copied
	}

	historyCopy := make([]DetectionEvent, len(s.history))
	copy(historyCopy, s.history)

	return stats, latest, historyCopy
}

// LatestFrame returns the last frame that was classified and its result.
func (s *State) LatestFrame() (*types.Frame, *types.DetectionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestFrame == nil {
		return nil, nil, false
	}
	return s.latestFrame, s.latestResult, true
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
