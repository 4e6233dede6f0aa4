// Joint modules: per-joint view of the BLMC boards
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package blmc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"blmc-robot-go/pkg/driver"
	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/log"
	"blmc-robot-go/pkg/robot"
	"blmc-robot-go/pkg/rt"
)

// JointOption configures JointModules.
type JointOption func(*JointModules)

// WithHomingTickPeriod sets the period of the index search loop. Zero
// disables the sleep.
func WithHomingTickPeriod(d time.Duration) JointOption {
	return func(j *JointModules) { j.tick = d }
}

// WithJointLogger sets the logger.
func WithJointLogger(l *log.Logger) JointOption {
	return func(j *JointModules) { j.logger = l }
}

// JointModules maps joints onto boards: joint i is motor i%2 of board i/2.
// Positions are in joint radians relative to the zero set by homing.
type JointModules struct {
	boards     []*Board
	n          int
	motor      driver.MotorParameters
	maxCurrent float64
	tick       time.Duration
	logger     *log.Logger

	mu     sync.Mutex
	zero   robot.Vector
	kp, kd robot.Vector

	sendErrors atomic.Uint64
}

var (
	_ driver.Actuator           = (*JointModules)(nil)
	_ driver.IndexAngleReporter = (*JointModules)(nil)
)

// NewJointModules creates the joint view of boards for n joints. Torque
// commands are converted to currents and limited to maxCurrentA.
func NewJointModules(boards []*Board, n int, motor driver.MotorParameters, maxCurrentA float64, opts ...JointOption) (*JointModules, error) {
	if want := (n + 1) / 2; len(boards) != want {
		return nil, errors.DimensionError("boards", len(boards), want)
	}
	if !(motor.TorqueConstant > 0) || !(motor.GearRatio > 0) {
		return nil, errors.New(errors.ErrConfigValidation, "motor parameters must be positive")
	}
	j := &JointModules{
		boards:     boards,
		n:          n,
		motor:      motor,
		maxCurrent: maxCurrentA,
		tick:       driver.DefaultTickPeriod,
		zero:       robot.Zeros(n),
		kp:         robot.Zeros(n),
		kd:         robot.Zeros(n),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = log.GetLogger("joints")
	}
	return j, nil
}

// NumJoints returns the number of joints.
func (j *JointModules) NumJoints() int { return j.n }

// SendErrors returns how many torque commands failed to send.
func (j *JointModules) SendErrors() uint64 { return j.sendErrors.Load() }

func (j *JointModules) board(i int) (*Board, int) {
	return j.boards[i/2], i % 2
}

// revToRad converts motor revolutions to joint radians.
func (j *JointModules) revToRad(rev float64) float64 {
	return rev * 2 * math.Pi / j.motor.GearRatio
}

// rawPositions returns joint positions without the homing zero.
func (j *JointModules) rawPositions() robot.Vector {
	out := make(robot.Vector, j.n)
	for i := range out {
		b, m := j.board(i)
		out[i] = j.revToRad(b.Measurements().Position[m])
	}
	return out
}

// LatestObservation converts the newest board measurements to joint units.
func (j *JointModules) LatestObservation() robot.Observation {
	j.mu.Lock()
	zero := j.zero.Clone()
	j.mu.Unlock()

	obs := robot.Observation{
		Position: make(robot.Vector, j.n),
		Velocity: make(robot.Vector, j.n),
		Torque:   make(robot.Vector, j.n),
	}
	for i := 0; i < j.n; i++ {
		b, m := j.board(i)
		meas := b.Measurements()
		obs.Position[i] = j.revToRad(meas.Position[m]) - zero[i]
		obs.Velocity[i] = j.revToRad(meas.Velocity[m] * 1000 / 60)
		obs.Torque[i] = meas.Current[m] * j.motor.TorqueConstant * j.motor.GearRatio
	}
	return obs
}

// SetAndSendTorques converts joint torques to motor currents, limits them
// and sends one current frame per board. Send failures are logged and
// counted.
func (j *JointModules) SetAndSendTorques(torque robot.Vector) {
	currents := make([]float64, 2*len(j.boards))
	for i := 0; i < j.n; i++ {
		c := torque[i] / (j.motor.TorqueConstant * j.motor.GearRatio)
		currents[i] = math.Max(-j.maxCurrent, math.Min(j.maxCurrent, c))
	}
	for bi, b := range j.boards {
		if err := b.SendCurrents(context.Background(), currents[2*bi], currents[2*bi+1]); err != nil {
			j.sendErrors.Add(1)
			j.logger.WithError(err).WithField("board", b.Name()).Error("failed to send currents")
		}
	}
}

// PauseMotors sets all currents to zero.
func (j *JointModules) PauseMotors() {
	for _, b := range j.boards {
		if err := b.PauseMotors(context.Background()); err != nil {
			j.sendErrors.Add(1)
			j.logger.WithError(err).WithField("board", b.Name()).Error("failed to pause motors")
		}
	}
}

// SetPositionControlGains sets the gains used by the index search.
func (j *JointModules) SetPositionControlGains(kp, kd robot.Vector) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.kp, j.kd = kp.Clone(), kd.Clone()
}

// ExecuteHoming searches the next encoder index of every joint by moving a
// position target by stepSizes per tick. A joint is homed at its first
// index; its zero is then set so the index reads -homeOffset. Homing fails
// if a joint travels more than searchLimit without seeing an index, or when
// ctx is cancelled.
func (j *JointModules) ExecuteHoming(ctx context.Context, searchLimit float64, homeOffset, stepSizes robot.Vector) robot.HomingStatus {
	for i, s := range stepSizes {
		if s == 0 {
			j.logger.WithField("joint", i).Error("index search step size is zero")
			return robot.HomingFailed
		}
	}

	j.mu.Lock()
	kp, kd := j.kp.Clone(), j.kd.Clone()
	j.mu.Unlock()

	startCount := make([]uint64, j.n)
	for i := range startCount {
		b, m := j.board(i)
		startCount[i] = b.LastIndex(m).Count
	}
	start := j.rawPositions()
	target := start.Clone()
	done := make([]bool, j.n)
	zero := robot.Zeros(j.n)

	for {
		if err := ctx.Err(); err != nil {
			j.logger.WithError(err).Warn("index search cancelled")
			j.PauseMotors()
			return robot.HomingFailed
		}
		tickStart := time.Now()
		obs := j.LatestObservation()
		raw := j.rawPositions()
		torque := robot.Zeros(j.n)
		remaining := 0

		for i := 0; i < j.n; i++ {
			if done[i] {
				continue
			}
			b, m := j.board(i)
			if ev := b.LastIndex(m); ev.Count > startCount[i] {
				zero[i] = j.revToRad(ev.PositionMrev) + homeOffset[i]
				done[i] = true
				j.logger.WithFields(log.Fields{"joint": i, "index_rad": j.revToRad(ev.PositionMrev)}).
					Info("encoder index found")
				continue
			}
			if math.Abs(target[i]-start[i]) >= searchLimit {
				j.logger.WithFields(log.Fields{"joint": i, "limit_rad": searchLimit}).
					Error("no encoder index within search limit")
				j.PauseMotors()
				return robot.HomingFailed
			}
			target[i] += stepSizes[i]
			torque[i] = kp[i]*(target[i]-raw[i]) - kd[i]*obs.Velocity[i]
			remaining++
		}
		if remaining == 0 {
			break
		}
		j.SetAndSendTorques(torque)
		if j.tick > 0 {
			rt.SleepUntil(ctx, tickStart.Add(j.tick))
		}
	}

	j.mu.Lock()
	j.zero = zero
	j.mu.Unlock()
	return robot.HomingSucceeded
}

// ExecuteHomingAtCurrentPosition sets the zero of every joint so that the
// current position reads -homeOffset.
func (j *JointModules) ExecuteHomingAtCurrentPosition(homeOffset robot.Vector) robot.HomingStatus {
	for _, b := range j.boards {
		if !b.Measurements().Valid {
			j.logger.WithField("board", b.Name()).Error("cannot home without position measurements")
			return robot.HomingFailed
		}
	}
	zero := j.rawPositions().Add(homeOffset)

	j.mu.Lock()
	j.zero = zero
	j.mu.Unlock()
	return robot.HomingSucceeded
}

// BoardStatuses returns the last status of every board.
func (j *JointModules) BoardStatuses() []robot.BoardStatus {
	out := make([]robot.BoardStatus, len(j.boards))
	for i, b := range j.boards {
		out[i] = b.Status()
	}
	return out
}

// MeasuredIndexAngles returns the position of the last encoder index per
// joint, NaN for joints that have not seen one.
func (j *JointModules) MeasuredIndexAngles() robot.Vector {
	j.mu.Lock()
	zero := j.zero.Clone()
	j.mu.Unlock()

	out := make(robot.Vector, j.n)
	for i := range out {
		b, m := j.board(i)
		ev := b.LastIndex(m)
		if ev.Count == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = j.revToRad(ev.PositionMrev) - zero[i]
	}
	return out
}

// String describes the joint to board mapping.
func (j *JointModules) String() string {
	return fmt.Sprintf("%d joints on %d boards", j.n, len(j.boards))
}
