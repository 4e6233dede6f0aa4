// N-joint robot driver: lifecycle, tick loop and safety pipeline
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package driver is the control core of an N-joint robot on brushless motor
// boards. It applies actions at a fixed tick rate through the safety
// pipeline, homes the joints on startup and runs the shutdown trajectory.
package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"blmc-robot-go/pkg/config"
	"blmc-robot-go/pkg/control"
	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/log"
	"blmc-robot-go/pkg/robot"
	"blmc-robot-go/pkg/rt"
)

// DefaultTickPeriod is the control loop period.
const DefaultTickPeriod = time.Millisecond

// Actuator is the motor layer the driver commands. Implementations must not
// block for longer than a fraction of a tick in any method except the two
// homing calls.
type Actuator interface {
	NumJoints() int
	LatestObservation() robot.Observation
	SetAndSendTorques(torque robot.Vector)
	PauseMotors()
	SetPositionControlGains(kp, kd robot.Vector)
	ExecuteHoming(ctx context.Context, searchLimit float64, homeOffset, stepSizes robot.Vector) robot.HomingStatus
	ExecuteHomingAtCurrentPosition(homeOffset robot.Vector) robot.HomingStatus
	BoardStatuses() []robot.BoardStatus
}

// IndexAngleReporter is implemented by actuators that record the position of
// the last encoder index per joint.
type IndexAngleReporter interface {
	MeasuredIndexAngles() robot.Vector
}

// MotorParameters describe the motors and gearboxes of the joints.
type MotorParameters struct {
	// TorqueConstant in Nm/A.
	TorqueConstant float64
	// GearRatio between motor and joint.
	GearRatio float64
}

// DefaultMotorParameters are those of the finger robots: 0.02 Nm/A, 1:9.
var DefaultMotorParameters = MotorParameters{TorqueConstant: 0.02, GearRatio: 9}

// MaxTorque returns the joint torque limit for a current limit.
func (m MotorParameters) MaxTorque(maxCurrentA float64) float64 {
	return maxCurrentA * m.TorqueConstant * m.GearRatio
}

// Recorder receives driver events for monitoring.
type Recorder interface {
	RecordTick(applied robot.Action, elapsed time.Duration, overrun bool)
	RecordState(s State)
	RecordHoming(method string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordTick(robot.Action, time.Duration, bool) {}
func (nopRecorder) RecordState(State)                            {}
func (nopRecorder) RecordHoming(string, bool)                    {}

// Option configures a Driver.
type Option func(*Driver)

// WithTickPeriod sets the control loop period. Zero disables the sleep.
func WithTickPeriod(d time.Duration) Option {
	return func(drv *Driver) { drv.tick = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(drv *Driver) { drv.logger = l }
}

// WithRecorder sets the monitoring recorder.
func WithRecorder(r Recorder) Option {
	return func(drv *Driver) { drv.rec = r }
}

// WithClock replaces the time source and the tick sleep.
func WithClock(now func() time.Time, sleepUntil func(ctx context.Context, deadline time.Time)) Option {
	return func(drv *Driver) {
		drv.now = now
		drv.sleepUntil = sleepUntil
	}
}

// WithRTConfig sets the scheduling of the initialization task.
func WithRTConfig(cfg rt.Config) Option {
	return func(drv *Driver) { drv.rtCfg = cfg }
}

// Driver drives N joints through an Actuator.
//
// ApplyAction must not be called concurrently. State and the action counter
// may be read from any goroutine.
type Driver struct {
	cfg       *config.Config
	act       Actuator
	motor     MotorParameters
	n         int
	maxTorque float64

	tick       time.Duration
	now        func() time.Time
	sleepUntil func(ctx context.Context, deadline time.Time)
	rtCfg      rt.Config
	logger     *log.Logger
	rec        Recorder

	state   atomic.Int32
	actions atomic.Uint64

	// softLimits is set once the driver became Ready and stays set through
	// the shutdown trajectory.
	softLimits atomic.Bool

	// lifecycle serializes Initialize and Shutdown
	lifecycle sync.Mutex

	mu            sync.Mutex
	onStateChange []func(oldState, newState State)
}

// New creates a driver. The joint count is taken from the configuration and
// must match the actuator.
func New(cfg *config.Config, act Actuator, motor MotorParameters, opts ...Option) (*Driver, error) {
	n := cfg.NumJoints()
	if act.NumJoints() != n {
		return nil, errors.DimensionError("actuator joints", act.NumJoints(), n)
	}
	if err := cfg.CheckDimensions(n); err != nil {
		return nil, err
	}
	if !(motor.TorqueConstant > 0) || !(motor.GearRatio > 0) {
		return nil, errors.New(errors.ErrConfigValidation,
			fmt.Sprintf("motor parameters must be positive, got torque constant %g and gear ratio %g",
				motor.TorqueConstant, motor.GearRatio))
	}

	d := &Driver{
		cfg:        cfg,
		act:        act,
		motor:      motor,
		n:          n,
		maxTorque:  motor.MaxTorque(cfg.MaxCurrentA),
		tick:       DefaultTickPeriod,
		now:        time.Now,
		sleepUntil: rt.SleepUntil,
		rtCfg:      rt.Config{Priority: rt.DefaultPriority},
		rec:        nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.GetLogger("driver")
	}
	if d.rtCfg.Logger == nil {
		d.rtCfg.Logger = d.logger
	}
	d.state.Store(int32(StateUninitialized))
	return d, nil
}

// NumJoints returns the number of joints.
func (d *Driver) NumJoints() int { return d.n }

// MaxTorque returns the joint torque limit in Nm.
func (d *Driver) MaxTorque() float64 { return d.maxTorque }

// Config returns the configuration. It must not be modified.
func (d *Driver) Config() *config.Config { return d.cfg }

// ActionCount returns the number of actions applied since creation,
// including those applied during homing and shutdown.
func (d *Driver) ActionCount() uint64 { return d.actions.Load() }

// LatestObservation returns the newest measurements of all joints.
func (d *Driver) LatestObservation() robot.Observation {
	return d.act.LatestObservation()
}

// BoardStatuses returns the last status of every motor board.
func (d *Driver) BoardStatuses() []robot.BoardStatus {
	return d.act.BoardStatuses()
}

// MeasuredIndexAngles returns the last encoder index position per joint, if
// the actuator records them.
func (d *Driver) MeasuredIndexAngles() (robot.Vector, bool) {
	r, ok := d.act.(IndexAngleReporter)
	if !ok {
		return nil, false
	}
	return r.MeasuredIndexAngles(), true
}

// IdleAction holds the joints at the initial position.
func (d *Driver) IdleAction() robot.Action {
	return robot.PositionAction(d.cfg.InitialPositionRad)
}

// Initialize homes the joints and moves them to the initial position. It
// runs on a dedicated real-time thread and blocks until done. On a homing
// failure the returned error has code HOMING and the driver stays
// uninitialized; Initialize may then be called again.
func (d *Driver) Initialize(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if s := d.State(); s != StateUninitialized {
		return errors.InvalidStateError("initialize", s.String())
	}
	d.setState(StateInitializing)

	homed := false
	err := rt.RunToCompletion(ctx, d.rtCfg, func(ctx context.Context) error {
		var err error
		homed, err = d.initialize(ctx)
		return err
	})
	if err != nil {
		d.act.PauseMotors()
		d.setState(StateUninitialized)
		return err
	}
	if !homed {
		d.setState(StateUninitialized)
		return errors.HomingError(fmt.Sprintf("homing with method %s failed", d.cfg.HomingMethod))
	}

	// Ready only after the final pause, so soft limits never act on the
	// move to the initial position.
	d.softLimits.Store(true)
	d.setState(StateReady)
	return nil
}

func (d *Driver) initialize(ctx context.Context) (bool, error) {
	d.act.SetPositionControlGains(d.cfg.PositionControlGains.Kp, d.cfg.PositionControlGains.Kd)

	homed, err := d.home(ctx)
	d.act.PauseMotors()
	if err != nil {
		return false, err
	}

	if homed {
		// Move one joint after the other, the others hold their position.
		waypoint := d.act.LatestObservation().Position.Clone()
		reached := false
		for i := 0; i < d.n; i++ {
			waypoint[i] = d.cfg.InitialPositionRad[i]
			reached, err = d.moveToPosition(ctx, waypoint,
				d.cfg.MoveToPositionToleranceRad, d.cfg.Calibration.MoveSteps)
			if err != nil {
				return false, err
			}
		}
		if !reached {
			d.logger.WithField("goal", d.cfg.InitialPositionRad.String()).
				Warn("failed to reach initial position, timeout exceeded")
		}
	}

	d.act.PauseMotors()
	return homed, nil
}

// ApplyAction runs one tick: desired is passed through the safety pipeline
// with the soft limits active, the resulting torques are sent and the call
// returns one tick period after it started. The applied action is returned.
//
// It fails with NOT_INITIALIZED unless the driver is Ready, and with
// DIMENSION if the action does not match the joint count.
func (d *Driver) ApplyAction(desired robot.Action) (robot.Action, error) {
	if d.State() != StateReady {
		return robot.Action{}, errors.NotInitializedError()
	}
	if err := d.checkAction(desired); err != nil {
		return robot.Action{}, err
	}
	return d.applyUninitialized(context.Background(), desired), nil
}

func (d *Driver) checkAction(a robot.Action) error {
	if len(a.Torque) != d.n {
		return errors.DimensionError("torque", len(a.Torque), d.n)
	}
	optional := []struct {
		name string
		v    robot.OptVector
	}{
		{"position", a.Position},
		{"position_kp", a.PositionKp},
		{"position_kd", a.PositionKd},
	}
	for _, o := range optional {
		if o.v != nil && len(o.v) != d.n {
			return errors.DimensionError(o.name, len(o.v), d.n)
		}
	}
	return nil
}

// activeLimits returns the soft limits once the driver has been Ready,
// including during the shutdown trajectory, and unbounded limits before.
func (d *Driver) activeLimits() (lower, upper robot.Vector) {
	if d.softLimits.Load() {
		return d.cfg.SoftPositionLimitsLower, d.cfg.SoftPositionLimitsUpper
	}
	return control.Unbounded(d.n)
}

// applyUninitialized is the tick used by ApplyAction and by the motion
// primitives during homing and shutdown.
func (d *Driver) applyUninitialized(ctx context.Context, desired robot.Action) robot.Action {
	start := d.now()

	obs := d.act.LatestObservation()
	lower, upper := d.activeLimits()
	applied := control.Process(desired, obs, control.Params{
		MaxTorque: d.maxTorque,
		SafetyKd:  d.cfg.SafetyKd,
		DefaultKp: d.cfg.PositionControlGains.Kp,
		DefaultKd: d.cfg.PositionControlGains.Kd,
		Lower:     lower,
		Upper:     upper,
	})

	d.act.SetAndSendTorques(applied.Torque)
	d.actions.Add(1)

	elapsed := d.now().Sub(start)
	d.rec.RecordTick(applied, elapsed, d.tick > 0 && elapsed > d.tick)
	if d.tick > 0 {
		d.sleepUntil(ctx, start.Add(d.tick))
	}
	return applied
}
