package driver

import (
	"context"
	"math"
	"sync"

	"blmc-robot-go/pkg/robot"
)

// fakeActuator integrates torque into position. Joints stop at mechanical
// limits given in raw (unhomed) coordinates.
type fakeActuator struct {
	mu sync.Mutex

	n         int
	gain      float64
	dt        float64
	raw       robot.Vector
	zero      robot.Vector
	velocity  robot.Vector
	torque    robot.Vector
	stopLower robot.Vector
	stopUpper robot.Vector

	sends  int
	pauses int
	kp, kd robot.Vector

	homingStatus robot.HomingStatus
	homingCalls  []homingCall
	homedAt      robot.Vector

	statuses    []robot.BoardStatus
	indexAngles robot.Vector
	onSend      func(count int)
	onHoming    func()
	sentTorques []robot.Vector
	keepTorques bool
}

type homingCall struct {
	searchLimit float64
	homeOffset  robot.Vector
	stepSizes   robot.Vector
}

func newFakeActuator(n int) *fakeActuator {
	return &fakeActuator{
		n:            n,
		gain:         0.05,
		dt:           0.001,
		raw:          robot.Zeros(n),
		zero:         robot.Zeros(n),
		velocity:     robot.Zeros(n),
		torque:       robot.Zeros(n),
		stopLower:    robot.Constant(n, math.Inf(-1)),
		stopUpper:    robot.Constant(n, math.Inf(1)),
		homingStatus: robot.HomingSucceeded,
		statuses:     make([]robot.BoardStatus, (n+1)/2),
	}
}

func (f *fakeActuator) NumJoints() int { return f.n }

func (f *fakeActuator) LatestObservation() robot.Observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return robot.Observation{
		Position: f.raw.Sub(f.zero),
		Velocity: f.velocity.Clone(),
		Torque:   f.torque.Clone(),
	}
}

func (f *fakeActuator) SetAndSendTorques(torque robot.Vector) {
	f.mu.Lock()
	for i, t := range torque {
		next := math.Min(math.Max(f.raw[i]+f.gain*t, f.stopLower[i]), f.stopUpper[i])
		f.velocity[i] = (next - f.raw[i]) / f.dt
		f.raw[i] = next
	}
	f.torque = torque.Clone()
	if f.keepTorques {
		f.sentTorques = append(f.sentTorques, torque.Clone())
	}
	f.sends++
	count, hook := f.sends, f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(count)
	}
}

func (f *fakeActuator) PauseMotors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	f.torque = robot.Zeros(f.n)
}

func (f *fakeActuator) SetPositionControlGains(kp, kd robot.Vector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kp, f.kd = kp.Clone(), kd.Clone()
}

func (f *fakeActuator) ExecuteHoming(ctx context.Context, searchLimit float64, homeOffset, stepSizes robot.Vector) robot.HomingStatus {
	if f.onHoming != nil {
		f.onHoming()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		return robot.HomingFailed
	}
	f.homingCalls = append(f.homingCalls, homingCall{
		searchLimit: searchLimit,
		homeOffset:  homeOffset.Clone(),
		stepSizes:   stepSizes.Clone(),
	})
	if f.homingStatus == robot.HomingSucceeded {
		f.homeLocked(homeOffset)
	}
	return f.homingStatus
}

func (f *fakeActuator) ExecuteHomingAtCurrentPosition(homeOffset robot.Vector) robot.HomingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homingCalls = append(f.homingCalls, homingCall{homeOffset: homeOffset.Clone()})
	if f.homingStatus == robot.HomingSucceeded {
		f.homeLocked(homeOffset)
	}
	return f.homingStatus
}

// homeLocked makes the current position read as -homeOffset.
func (f *fakeActuator) homeLocked(homeOffset robot.Vector) {
	f.homedAt = f.raw.Clone()
	f.zero = f.raw.Add(homeOffset)
}

func (f *fakeActuator) BoardStatuses() []robot.BoardStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]robot.BoardStatus, len(f.statuses))
	copy(out, f.statuses)
	return out
}

func (f *fakeActuator) MeasuredIndexAngles() robot.Vector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexAngles.Clone()
}

func (f *fakeActuator) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeActuator) pauseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses
}

func (f *fakeActuator) calls() []homingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]homingCall(nil), f.homingCalls...)
}

// setPosition moves the joints to pos in homed coordinates.
func (f *fakeActuator) setPosition(pos robot.Vector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = pos.Add(f.zero)
}
