package metrics

import (
	"testing"
	"time"

	"blmc-robot-go/pkg/driver"
	"blmc-robot-go/pkg/robot"

	"github.com/stretchr/testify/assert"
)

func TestDriverMetricsRecordTick(t *testing.T) {
	m := NewDriverMetrics()

	m.RecordTick(robot.TorqueAction(robot.Vector{0.1, -0.2}), 200*time.Microsecond, false)
	m.RecordTick(robot.TorqueAction(robot.Vector{0.3, 0}), 2*time.Millisecond, true)

	assert.Equal(t, uint64(2), m.Actions.Get(nil))
	assert.Equal(t, uint64(1), m.TickOverruns.Get(nil))
	assert.Equal(t, uint64(2), m.TickDuration.Snapshot(nil).Count)
	assert.Equal(t, 0.3, m.AppliedTorque.Get(Labels{"joint": "0"}))
	assert.Equal(t, 0.0, m.AppliedTorque.Get(Labels{"joint": "1"}))
}

func TestDriverMetricsState(t *testing.T) {
	m := NewDriverMetrics()
	assert.Equal(t, driver.StateUninitialized, m.CurrentState())
	assert.Equal(t, 1.0, m.State.Get(Labels{"state": driver.StateUninitialized.String()}))

	m.RecordState(driver.StateReady)
	assert.Equal(t, driver.StateReady, m.CurrentState())
	assert.Equal(t, 0.0, m.State.Get(Labels{"state": driver.StateUninitialized.String()}))
	assert.Equal(t, 1.0, m.State.Get(Labels{"state": driver.StateReady.String()}))
}

func TestDriverMetricsHoming(t *testing.T) {
	m := NewDriverMetrics()
	m.RecordHoming("NEXT_INDEX", false)
	m.RecordHoming("NEXT_INDEX", true)
	m.RecordHoming("NEXT_INDEX", true)

	assert.Equal(t, uint64(1), m.HomingResults.Get(Labels{"method": "NEXT_INDEX", "result": "failed"}))
	assert.Equal(t, uint64(2), m.HomingResults.Get(Labels{"method": "NEXT_INDEX", "result": "succeeded"}))
}

func TestDriverMetricsObservationAndBoards(t *testing.T) {
	m := NewDriverMetrics()
	m.UpdateObservation(robot.Observation{
		Position: robot.Vector{1, 2, 3},
		Velocity: robot.Vector{4, 5, 6},
		Torque:   robot.Vector{7, 8, 9},
	})
	assert.Equal(t, 3.0, m.JointPosition.Get(Labels{"joint": "2"}))
	assert.Equal(t, 5.0, m.JointVelocity.Get(Labels{"joint": "1"}))
	assert.Equal(t, 7.0, m.JointTorque.Get(Labels{"joint": "0"}))

	m.UpdateBoards([]robot.BoardStatus{
		{Valid: true, SystemEnabled: true, Motor1Enabled: true, Motor1Ready: true, Motor2Enabled: true, Motor2Ready: true},
		{Valid: true, Fault: robot.FaultCritTemp},
	})
	assert.Equal(t, 1.0, m.BoardReady.Get(Labels{"board": "0"}))
	assert.Equal(t, 0.0, m.BoardReady.Get(Labels{"board": "1"}))
	assert.Equal(t, float64(robot.FaultCritTemp), m.BoardFault.Get(Labels{"board": "1"}))
}

func TestDriverMetricsFrameDeltas(t *testing.T) {
	m := NewDriverMetrics()
	m.UpdateFrameCount("can0", 10, 4)
	m.UpdateFrameCount("can0", 15, 4)
	m.UpdateFrameCount("can0", 12, 9)

	assert.Equal(t, uint64(15), m.CANFrames.Get(Labels{"board": "can0", "direction": "tx"}))
	assert.Equal(t, uint64(9), m.CANFrames.Get(Labels{"board": "can0", "direction": "rx"}))
}

func TestDriverMetricsGather(t *testing.T) {
	m := NewDriverMetrics()
	m.RecordTick(robot.TorqueAction(robot.Vector{0.1}), time.Millisecond, false)

	out := m.Gather()
	assert.Contains(t, out, "blmc_actions_total 1\n")
	assert.Contains(t, out, "# TYPE blmc_tick_duration_seconds histogram\n")
	assert.Contains(t, out, "blmc_driver_state{state=\"uninitialized\"} 1\n")
	assert.Contains(t, out, "# TYPE blmc_goroutines gauge\n")
	assert.Positive(t, m.Goroutines.Get(nil))
}
