package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

var (
	met    = &types.DetectionResult{ConditionMet: true}
	notMet = &types.DetectionResult{ConditionMet: false}
)

func at(seconds float64) time.Time {
	return time.Unix(0, 0).Add(time.Duration(seconds * float64(time.Second)))
}

func TestDecide_NoConditionNoAlert(t *testing.T) {
	e := NewEngine(300 * time.Second)

	d := e.Decide(notMet, at(1000))
	assert.Equal(t, NoAlert, d.Action)

	_, alerted := e.LastAlert()
	assert.False(t, alerted, "NoAlert must not touch state")
}

func TestDecide_NilResult(t *testing.T) {
	e := NewEngine(time.Second)
	assert.Equal(t, NoAlert, e.Decide(nil, at(1)).Action)
}

func TestDecide_FirstConditionAlerts(t *testing.T) {
	e := NewEngine(300 * time.Second)

	d := e.Decide(met, at(1000))
	require.Equal(t, Alert, d.Action)

	last, alerted := e.LastAlert()
	assert.True(t, alerted)
	assert.True(t, last.Equal(at(1000)))
}

func TestDecide_FirstAlertNearEpoch(t *testing.T) {
	// The never-alerted state is not the epoch: a condition right after
	// time zero still alerts.
	e := NewEngine(300 * time.Second)
	assert.Equal(t, Alert, e.Decide(met, at(5)).Action)
}

func TestDecide_CooldownBoundaryIsStrict(t *testing.T) {
	e := NewEngine(300 * time.Second)
	require.Equal(t, Alert, e.Decide(met, at(1000)).Action)

	d := e.Decide(met, at(1300))
	assert.Equal(t, Suppressed, d.Action, "elapsed == cooldown must be suppressed")
	assert.Equal(t, time.Duration(0), d.Remaining)

	d = e.Decide(met, at(1300.001))
	assert.Equal(t, Alert, d.Action)
}

func TestDecide_IntegerBoundary(t *testing.T) {
	e := NewEngine(300 * time.Second)
	require.Equal(t, Alert, e.Decide(met, at(1000)).Action)
	assert.Equal(t, Suppressed, e.Decide(met, at(1300)).Action)
	assert.Equal(t, Alert, e.Decide(met, at(1301)).Action)
}

func TestDecide_SuppressedRemaining(t *testing.T) {
	e := NewEngine(300 * time.Second)
	e.Decide(met, at(1000))

	d := e.Decide(met, at(1100))
	require.Equal(t, Suppressed, d.Action)
	assert.Equal(t, 200*time.Second, d.Remaining)

	last, _ := e.LastAlert()
	assert.True(t, last.Equal(at(1000)), "Suppressed must not move the timer")
}

func TestDecide_RepeatedWithinWindow(t *testing.T) {
	e := NewEngine(300 * time.Second)

	var alerts, suppressed int
	for i := 0; i < 10; i++ {
		switch e.Decide(met, at(1000+float64(i)*10)).Action {
		case Alert:
			alerts++
		case Suppressed:
			suppressed++
		}
	}
	assert.Equal(t, 1, alerts)
	assert.Equal(t, 9, suppressed)
}

func TestDecide_ClockRollbackSuppressed(t *testing.T) {
	e := NewEngine(300 * time.Second)
	e.Decide(met, at(1000))

	d := e.Decide(met, at(500))
	assert.Equal(t, Suppressed, d.Action)
	assert.Equal(t, 800*time.Second, d.Remaining)

	last, _ := e.LastAlert()
	assert.True(t, last.Equal(at(1000)), "rollback must not move the timer backwards")
}

func TestDecide_ZeroCooldown(t *testing.T) {
	e := NewEngine(0)
	assert.Equal(t, Alert, e.Decide(met, at(10)).Action)
	assert.Equal(t, Suppressed, e.Decide(met, at(10)).Action, "same instant is not strictly after")
	assert.Equal(t, Alert, e.Decide(met, at(10.5)).Action)
}

func TestDecide_NoConditionBetweenAlertsKeepsTimer(t *testing.T) {
	e := NewEngine(300 * time.Second)
	e.Decide(met, at(1000))
	e.Decide(notMet, at(1200))
	assert.Equal(t, Suppressed, e.Decide(met, at(1250)).Action)
	assert.Equal(t, Alert, e.Decide(met, at(1301)).Action)
}

func TestReset(t *testing.T) {
	e := NewEngine(300 * time.Second)
	e.Decide(met, at(1000))
	e.Reset()

	_, alerted := e.LastAlert()
	assert.False(t, alerted)
	assert.Equal(t, Alert, e.Decide(met, at(1001)).Action)
}

func TestNegativeCooldownClamped(t *testing.T) {
	e := NewEngine(-time.Second)
	assert.Equal(t, time.Duration(0), e.Cooldown())
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "alert", Alert.String())
	assert.Equal(t, "suppressed", Suppressed.String())
	assert.Equal(t, "no_alert", NoAlert.String())
	assert.Equal(t, "unknown", Action(42).String())
}
