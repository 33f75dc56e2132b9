package pour

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/hw"
)

type rig struct {
	clk    *clock.Manual
	sim    *hw.Sim
	valve  *hw.SimValve
	sensor *hw.SimSensor
	ctrl   *Controller
}

func newRig(t *testing.T, opts ...Option) *rig {
	t.Helper()
	clk := clock.NewManual()
	sim, err := hw.NewSim(clk, hw.DefaultSimConfig(), hw.Line{ValveID: "17", SensorID: "27"})
	require.NoError(t, err)
	v, err := sim.SimValve("17")
	require.NoError(t, err)
	s, err := sim.SimSensor("27")
	require.NoError(t, err)
	ctrl, err := New(clk, DefaultConfig(), opts...)
	require.NoError(t, err)
	return &rig{clk: clk, sim: sim, valve: v, sensor: s, ctrl: ctrl}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionRatio = 1.5
	_, err := New(clock.NewManual(), cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.PollInterval = 0
	_, err = New(clock.NewManual(), cfg)
	assert.Error(t, err)
}

func TestPour_CompletesForReachableTargets(t *testing.T) {
	// 30 ml/s for 60 s reaches 1800 ml, so every target up to that completes.
	for _, target := range []float64{1, 33, 250, 300, 500, 1800} {
		t.Run(fmt.Sprintf("%gml", target), func(t *testing.T) {
			r := newRig(t)

			res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, target)
			require.NoError(t, err)

			assert.Equal(t, OutcomeCompleted, res.Outcome)
			assert.GreaterOrEqual(t, res.PouredMl, 0.95*target)
			assert.False(t, r.valve.IsOpen())
			assert.LessOrEqual(t, res.Elapsed, DefaultCeiling+DefaultSettle)
		})
	}
}

func TestPour_ExactVolumeAndTiming(t *testing.T) {
	r := newRig(t)

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, uint64(2250), res.Pulses)
	assert.InDelta(t, 300.0, res.PouredMl, 1e-9)
	// 100 polls of 100 ms plus the settle window.
	assert.Equal(t, 10*time.Second+DefaultSettle, res.Elapsed)
	assert.Equal(t, "17", res.ValveID)
	assert.Equal(t, "27", res.SensorID)
	assert.Nil(t, res.Err)
}

func TestPour_NoFlowTimesOut(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.sim.SetFlowRate("17", 0))

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Zero(t, res.PouredMl)
	assert.Equal(t, DefaultCeiling+DefaultSettle, res.Elapsed)
	assert.False(t, res.Aborted)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_SlowFlowTimesOut(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.sim.SetFlowRate("17", 1))

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.InDelta(t, 60.0, res.PouredMl, 0.5)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_MostlyFullAtCeilingCompletes(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.sim.SetFlowRate("17", 4.9))

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome, "294 ml is above 95 percent of 300 ml")
}

func TestPour_SupplyRunsDryWaitsForCeiling(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.sim.SetSupply("17", 100))

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.InDelta(t, 100.0, res.PouredMl, 0.2)
	assert.GreaterOrEqual(t, res.Elapsed, DefaultCeiling, "a silent sensor alone does not end the pour")
	assert.False(t, r.valve.IsOpen())
}

func TestPour_FlowPauseStillCompletes(t *testing.T) {
	var (
		r        *rig
		pausedAt time.Duration
	)
	r = newRig(t, WithProgress(func(p Progress) {
		switch {
		case pausedAt == 0 && p.PouredMl >= 100:
			pausedAt = p.Elapsed
			require.NoError(t, r.sim.SetFlowRate("17", 0))
		case pausedAt > 0 && p.Elapsed >= pausedAt+6*time.Second:
			require.NoError(t, r.sim.SetFlowRate("17", hw.DefaultSimFlowRate))
		}
	}))

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome, "a pause longer than the stall window must not end the pour")
	assert.GreaterOrEqual(t, res.PouredMl, 300.0)
	assert.Greater(t, res.Elapsed, 15*time.Second)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_StopOnStallEndsEarly(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.sim.SetSupply("17", 100))
	cfg := DefaultConfig()
	cfg.StopOnStall = true
	ctrl, err := New(r.clk, cfg)
	require.NoError(t, err)

	res, err := ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnderfilled, res.Outcome)
	assert.InDelta(t, 100.0, res.PouredMl, 0.2)
	assert.Less(t, res.Elapsed, DefaultCeiling)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_OpenFaultIsHardwareFault(t *testing.T) {
	r := newRig(t)
	r.valve.FailOpen(1)

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeHardwareFault, res.Outcome)
	assert.ErrorIs(t, res.Err, hw.ErrInjected)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_CloseFaultStillLeavesValveClosed(t *testing.T) {
	r := newRig(t)
	r.valve.FailClose(1)

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeHardwareFault, res.Outcome)
	assert.ErrorIs(t, res.Err, hw.ErrInjected)
	assert.False(t, r.valve.IsOpen(), "fail-safe close must shut the valve")
}

func TestPour_ReadFaultIsHardwareFault(t *testing.T) {
	r := newRig(t)
	r.sensor.FailRead(1)

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeHardwareFault, res.Outcome)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_InvalidTarget(t *testing.T) {
	r := newRig(t)

	for _, target := range []float64{0, -5} {
		_, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, target)
		require.Error(t, err)
		assert.False(t, IsAlreadyInUse(err))
	}
	opens, _ := r.valve.Counts()
	assert.Zero(t, opens)
}

func TestPour_ConcurrentSameValve(t *testing.T) {
	r := newRig(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	r.valve.OnOpen(func() {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	var (
		first    Result
		firstErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	}()

	<-started
	assert.Equal(t, []string{"17"}, r.ctrl.InFlight())

	_, secondErr := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Equal(t, OutcomeCompleted, first.Outcome)
	require.Error(t, secondErr)
	assert.True(t, IsAlreadyInUse(secondErr))

	opens, _ := r.valve.Counts()
	assert.Equal(t, 1, opens, "only one pour may open the valve")
	assert.Empty(t, r.ctrl.InFlight())
}

func TestPour_ValveReusableAfterPour(t *testing.T) {
	r := newRig(t)

	for i := 0; i < 2; i++ {
		res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, res.Outcome)
	}
}

func TestPour_EmergencyStop(t *testing.T) {
	r := newRig(t)
	r.valve.OnOpen(func() {
		assert.Equal(t, 1, r.ctrl.EmergencyStop())
	})

	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.True(t, res.Aborted)
	assert.False(t, r.valve.IsOpen())
	assert.Zero(t, r.ctrl.EmergencyStop(), "nothing left in flight")
}

func TestPour_CancelledContextAborts(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.ctrl.Pour(ctx, r.valve, r.sensor, 300)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.True(t, res.Aborted)
	assert.False(t, r.valve.IsOpen())
}

func TestPour_ReportsProgress(t *testing.T) {
	var updates []Progress
	r := newRig(t, WithProgress(func(p Progress) { updates = append(updates, p) }))

	_, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 30)
	require.NoError(t, err)

	require.Len(t, updates, 10)
	assert.InDelta(t, 3.0, updates[0].PouredMl, 0.2)
	assert.InDelta(t, 30.0, updates[9].PouredMl, 1e-9)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].PouredMl, updates[i-1].PouredMl)
	}
}

func TestPour_RefusedAfterEmergencyStopUntilResume(t *testing.T) {
	r := newRig(t)

	assert.Equal(t, 0, r.ctrl.EmergencyStop(), "nothing in flight")

	_, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 100)
	require.Error(t, err)
	assert.True(t, IsStopped(err))
	opens, _ := r.valve.Counts()
	assert.Zero(t, opens, "a stopped controller must not open the valve")

	r.ctrl.Resume()
	res, err := r.ctrl.Pour(context.Background(), r.valve, r.sensor, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
}
