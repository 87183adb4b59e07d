// Package alert turns a stream of per-frame verdicts into cooldown-gated
// alert decisions.
package alert

import (
	"fmt"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Action is the outcome of a single decision.
type Action int

const (
	NoAlert Action = iota
	Alert
	Suppressed
)

var actionNames = map[Action]string{
	NoAlert:    "no_alert",
	Alert:      "alert",
	Suppressed: "suppressed",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets actions appear by name in JSON payloads.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Decision is the result of Engine.Decide.
type Decision struct {
	Action Action `json:"action"`
	// Remaining is the cooldown left; only set for Suppressed.
	Remaining time.Duration `json:"remaining"`
}

func (d Decision) String() string {
	if d.Action == Suppressed {
		return fmt.Sprintf("%s (%s remaining)", d.Action, d.Remaining.Round(time.Second))
	}
	return d.Action.String()
}

// Engine holds the time of the last emitted alert. There is a single timer,
// shared by every label, and it only moves forward when an alert is emitted.
//
// Engine is not safe for concurrent use; the monitor loop is its only caller.
type Engine struct {
	cooldown  time.Duration
	lastAlert time.Time
	alerted   bool
}

// NewEngine returns an armed engine. A negative cooldown is treated as zero;
// configuration validation rejects it before we get here.
func NewEngine(cooldown time.Duration) *Engine {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Engine{cooldown: cooldown}
}

// Cooldown returns the configured cooldown.
func (e *Engine) Cooldown() time.Duration { return e.cooldown }

// LastAlert returns the time of the last Alert and whether one happened.
func (e *Engine) LastAlert() (time.Time, bool) {
	return e.lastAlert, e.alerted
}

// Reset returns the engine to the never-alerted state.
func (e *Engine) Reset() {
	e.lastAlert = time.Time{}
	e.alerted = false
}

// Decide evaluates result at now.
//
// An alert fires only when strictly more than the cooldown has elapsed since
// the previous alert; elapsed == cooldown is still suppressed. A clock that
// moved backwards yields a negative elapsed time, which counts as cooling down.
func (e *Engine) Decide(result *types.DetectionResult, now time.Time) Decision {
	if result == nil || !result.ConditionMet {
		return Decision{Action: NoAlert}
	}

	if !e.alerted {
		e.fire(now)
		return Decision{Action: Alert}
	}

	elapsed := now.Sub(e.lastAlert)
	if elapsed > e.cooldown {
		e.fire(now)
		return Decision{Action: Alert}
	}

	return Decision{Action: Suppressed, Remaining: e.cooldown - elapsed}
}

func (e *Engine) fire(now time.Time) {
	e.lastAlert = now
	e.alerted = true
}
