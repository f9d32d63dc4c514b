package vitals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/session"
)

func TestSimulatorEmitsOnlyWhileActive(t *testing.T) {
	sim := NewSimulator(5*time.Millisecond, nil)
	defer sim.Stop()

	select {
	case s := <-sim.Readings():
		t.Fatalf("sample %v emitted before any sensor started", s)
	case <-time.After(30 * time.Millisecond):
	}

	sim.Start(models.SensorThermometer)
	select {
	case s := <-sim.Readings():
		assert.Equal(t, models.SensorThermometer, s.Sensor)
		require.NotNil(t, s.Temperature)
		assert.GreaterOrEqual(t, *s.Temperature, 36.5)
		assert.LessOrEqual(t, *s.Temperature, 37.5)
	case <-time.After(time.Second):
		t.Fatal("no sample after sensor start")
	}

	sim.Stop()
	assert.Equal(t, models.SensorNone, sim.Active())

	// drain anything in flight, then require silence
	deadline := time.After(50 * time.Millisecond)
drain:
	for {
		select {
		case <-sim.Readings():
		case <-deadline:
			break drain
		}
	}
	select {
	case s := <-sim.Readings():
		t.Fatalf("sample %v emitted after stop", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestSimulatorSensorSwitchReplacesStream(t *testing.T) {
	sim := NewSimulator(5*time.Millisecond, nil)
	defer sim.Stop()

	sim.Start(models.SensorThermometer)
	sim.Start(models.SensorOximeter)
	assert.Equal(t, models.SensorOximeter, sim.Active())

	require.Eventually(t, func() bool {
		select {
		case s := <-sim.Readings():
			return s.Sensor == models.SensorOximeter
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestSimulatorOximeterRanges(t *testing.T) {
	sim := NewSimulator(time.Millisecond, nil)
	defer sim.Stop()
	sim.Start(models.SensorOximeter)

	for i := 0; i < 10; i++ {
		select {
		case s := <-sim.Readings():
			require.NotNil(t, s.SpO2)
			require.NotNil(t, s.HeartRate)
			assert.GreaterOrEqual(t, *s.SpO2, 96)
			assert.LessOrEqual(t, *s.SpO2, 99)
			assert.GreaterOrEqual(t, *s.HeartRate, 65)
			assert.LessOrEqual(t, *s.HeartRate, 84)
			assert.NotEmpty(t, s.Waveform)
		case <-time.After(time.Second):
			t.Fatal("stream stalled")
		}
	}
}

func TestTraceRoundingHandlesNegatives(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.96, -1.0},
		{-0.24, -0.2},
		{-0.05, -0.1},
		{0.96, 1.0},
		{36.54, 36.5},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, round1(tc.in), 1e-9, "round1(%v)", tc.in)
	}
}

func TestSimulatorRejectsUnknownSensor(t *testing.T) {
	sim := NewSimulator(time.Millisecond, nil)
	defer sim.Stop()
	sim.Start(models.SensorType("x_ray"))
	assert.Equal(t, models.SensorNone, sim.Active())
}

func TestFeedTracksLatest(t *testing.T) {
	readings := make(chan models.VitalsSample, 1)
	f := NewFeed(readings)
	defer f.Close()

	assert.True(t, f.Latest().IsZero())

	hr := 72
	readings <- models.VitalsSample{Sensor: models.SensorOximeter, HeartRate: &hr}
	require.Eventually(t, func() bool {
		return !f.Latest().IsZero()
	}, time.Second, time.Millisecond)
	require.NotNil(t, f.Latest().HeartRate)
	assert.Equal(t, 72, *f.Latest().HeartRate)
}

func TestSharedGatedBySessionState(t *testing.T) {
	readings := make(chan models.VitalsSample, 1)
	f := NewFeed(readings)
	defer f.Close()

	temp := 36.8
	readings <- models.VitalsSample{Sensor: models.SensorThermometer, Temperature: &temp}
	require.Eventually(t, func() bool { return !f.Latest().IsZero() }, time.Second, time.Millisecond)

	inCall := session.Snapshot{State: session.State{Kind: session.StateInCall}}
	cases := []struct {
		name    string
		snap    session.Snapshot
		visible bool
	}{
		{"sharing on, in call", session.Snapshot{State: inCall.State, VitalsSharing: true}, true},
		{"sharing off, in call", inCall, false},
		{"sharing on, idle", session.Snapshot{State: session.State{Kind: session.StateIdle}, VitalsSharing: true}, false},
		{"sharing on, error", session.Snapshot{State: session.State{Kind: session.StateError}, VitalsSharing: true}, false},
		{"sharing on, reconnecting", session.Snapshot{State: session.State{Kind: session.StateReconnecting}, VitalsSharing: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := f.Shared(tc.snap)
			assert.Equal(t, tc.visible, !got.IsZero())
		})
	}
}
