package webmonitor

import "github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"

// BoundingBox is the x/y/w/h box shape used by the browser overlay.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Detection is one labeled box.
type Detection struct {
	ClassName string      `json:"class_name"`
	BBox      BoundingBox `json:"bbox"`
}

// DetectionEvent is the payload for /api/detections/stream and the
// detection history.
type DetectionEvent struct {
	Cycle                uint64             `json:"cycle"`
	Timestamp            float64            `json:"timestamp"`
	SourceTag            string             `json:"source_tag,omitempty"`
	ConditionMet         bool               `json:"condition_met"`
	OverlapRatio         float64            `json:"overlap_ratio"`
	BystanderOnReference bool               `json:"bystander_on_reference"`
	Decision             string             `json:"decision"`
	Confidences          map[string]float64 `json:"confidences"`
	Detections           []Detection        `json:"detections"`
	Error                string             `json:"error,omitempty"`
}

// MonitorStats summarises the loop since startup.
type MonitorStats struct {
	Target          string  `json:"target"`
	Reference       string  `json:"reference"`
	CyclesRun       uint64  `json:"cycles_run"`
	FailedCycles    uint64  `json:"failed_cycles"`
	Alerts          uint64  `json:"alerts"`
	Suppressed      uint64  `json:"suppressed"`
	TestAlerts      uint64  `json:"test_alerts"`
	LastAlert       float64 `json:"last_alert,omitempty"`
	LastCycle       float64 `json:"last_cycle,omitempty"`
	LastCycleMs     int64   `json:"last_cycle_ms"`
	IntervalSeconds float64 `json:"interval_seconds"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

func detectionsFromResult(result *types.DetectionResult) []Detection {
	detections := []Detection{}
	if result == nil {
		return detections
	}
	for _, label := range result.Labels() {
		for _, b := range result.BoxesFor(label) {
			detections = append(detections, Detection{
				ClassName: label,
				BBox: BoundingBox{
					X: int(b.X1),
					Y: int(b.Y1),
					W: int(b.Width()),
					H: int(b.Height()),
				},
			})
		}
	}
	return detections
}
