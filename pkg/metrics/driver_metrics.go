// Robot driver metrics definitions
//
// Defines the metrics exported by the driver:
// - Control loop ticks, timing and overruns
// - Lifecycle state and homing results
// - Joint positions, velocities and torques
// - Board faults and CAN traffic
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"strconv"
	"sync"
	"time"

	"blmc-robot-go/pkg/driver"
	"blmc-robot-go/pkg/robot"
)

var allStates = []driver.State{
	driver.StateUninitialized,
	driver.StateInitializing,
	driver.StateReady,
	driver.StateShuttingDown,
	driver.StateStopped,
}

// DriverMetrics holds the driver metrics and records driver events. It
// implements driver.Recorder.
type DriverMetrics struct {
	registry *Registry

	// Control loop
	Actions      *Counter
	TickDuration *Histogram
	TickOverruns *Counter

	// Lifecycle
	State         *Gauge
	HomingResults *Counter

	// Joints
	JointPosition *Gauge
	JointVelocity *Gauge
	JointTorque   *Gauge
	AppliedTorque *Gauge

	// Boards
	BoardFault *Gauge
	BoardReady *Gauge
	CANFrames  *Counter

	// Process
	Uptime     *Gauge
	Goroutines *Gauge
	HeapBytes  *Gauge

	mu        sync.Mutex
	lastState driver.State
	frames    map[string]uint64
	startTime time.Time
}

var _ driver.Recorder = (*DriverMetrics)(nil)

// NewDriverMetrics creates the metrics in a fresh registry.
func NewDriverMetrics() *DriverMetrics {
	m := &DriverMetrics{
		registry: NewRegistry(),

		Actions: NewCounter("blmc_actions_total",
			"Actions applied to the motors"),
		TickDuration: NewHistogram("blmc_tick_duration_seconds",
			"Time spent in one control tick before sleeping",
			ExponentialBuckets(0.00005, 2, 8)),
		TickOverruns: NewCounter("blmc_tick_overruns_total",
			"Ticks that took longer than the tick period"),

		State: NewGauge("blmc_driver_state",
			"1 for the current driver lifecycle state"),
		HomingResults: NewCounter("blmc_homing_total",
			"Homing attempts by method and result"),

		JointPosition: NewGauge("blmc_joint_position_rad",
			"Measured joint position"),
		JointVelocity: NewGauge("blmc_joint_velocity_rad_per_second",
			"Measured joint velocity"),
		JointTorque: NewGauge("blmc_joint_torque_nm",
			"Measured joint torque"),
		AppliedTorque: NewGauge("blmc_joint_applied_torque_nm",
			"Torque commanded in the last tick"),

		BoardFault: NewGauge("blmc_board_fault",
			"Fault code reported by the board, 0 if none"),
		BoardReady: NewGauge("blmc_board_ready",
			"1 if the board reports system and motors ready"),
		CANFrames: NewCounter("blmc_can_frames_total",
			"CAN frames by board and direction"),

		Uptime: NewGauge("blmc_uptime_seconds",
			"Time since the metrics were created"),
		Goroutines: NewGauge("blmc_goroutines",
			"Number of goroutines"),
		HeapBytes: NewGauge("blmc_heap_alloc_bytes",
			"Bytes of allocated heap objects"),

		frames:    make(map[string]uint64),
		startTime: time.Now(),
	}

	for _, metric := range []Metric{
		m.Actions, m.TickDuration, m.TickOverruns,
		m.State, m.HomingResults,
		m.JointPosition, m.JointVelocity, m.JointTorque, m.AppliedTorque,
		m.BoardFault, m.BoardReady, m.CANFrames,
		m.Uptime, m.Goroutines, m.HeapBytes,
	} {
		m.registry.MustRegister(metric)
	}
	m.RecordState(driver.StateUninitialized)
	return m
}

// Registry returns the registry holding the metrics.
func (m *DriverMetrics) Registry() *Registry { return m.registry }

// RecordTick is called after every applied action.
func (m *DriverMetrics) RecordTick(applied robot.Action, elapsed time.Duration, overrun bool) {
	m.Actions.Inc(nil)
	m.TickDuration.Observe(nil, elapsed.Seconds())
	if overrun {
		m.TickOverruns.Inc(nil)
	}
	for i, t := range applied.Torque {
		m.AppliedTorque.Set(jointLabels(i), t)
	}
}

// RecordState sets the state gauge.
func (m *DriverMetrics) RecordState(s driver.State) {
	m.mu.Lock()
	m.lastState = s
	m.mu.Unlock()
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.Set(Labels{"state": st.String()}, v)
	}
}

// CurrentState returns the last recorded state.
func (m *DriverMetrics) CurrentState() driver.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState
}

// RecordHoming counts a homing attempt.
func (m *DriverMetrics) RecordHoming(method string, ok bool) {
	result := "failed"
	if ok {
		result = "succeeded"
	}
	m.HomingResults.Inc(Labels{"method": method, "result": result})
}

// UpdateObservation sets the joint gauges.
func (m *DriverMetrics) UpdateObservation(obs robot.Observation) {
	for i := range obs.Position {
		l := jointLabels(i)
		m.JointPosition.Set(l, obs.Position[i])
		if i < len(obs.Velocity) {
			m.JointVelocity.Set(l, obs.Velocity[i])
		}
		if i < len(obs.Torque) {
			m.JointTorque.Set(l, obs.Torque[i])
		}
	}
}

// UpdateBoards sets the board gauges.
func (m *DriverMetrics) UpdateBoards(statuses []robot.BoardStatus) {
	for i, st := range statuses {
		l := Labels{"board": strconv.Itoa(i)}
		m.BoardFault.Set(l, float64(st.Fault))
		ready := 0.0
		if st.Ready() {
			ready = 1
		}
		m.BoardReady.Set(l, ready)
	}
}

// UpdateFrameCount records the running totals of frames sent and received
// on a board. Totals below the previous value are ignored.
func (m *DriverMetrics) UpdateFrameCount(board string, tx, rx uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir, total := range map[string]uint64{"tx": tx, "rx": rx} {
		key := board + "/" + dir
		if prev := m.frames[key]; total > prev {
			m.CANFrames.Add(Labels{"board": board, "direction": dir}, total-prev)
			m.frames[key] = total
		}
	}
}

// UpdateProcess refreshes uptime and runtime gauges.
func (m *DriverMetrics) UpdateProcess() {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	m.Uptime.Set(nil, time.Since(m.startTime).Seconds())
	m.Goroutines.Set(nil, float64(goruntime.NumGoroutine()))
	m.HeapBytes.Set(nil, float64(ms.HeapAlloc))
}

// Gather renders all metrics in Prometheus text format.
func (m *DriverMetrics) Gather() string {
	m.UpdateProcess()
	return m.registry.Gather()
}

func jointLabels(i int) Labels {
	return Labels{"joint": strconv.Itoa(i)}
}
