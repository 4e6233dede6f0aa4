package motion

import (
	"fmt"

	"blmc-robot-go/pkg/robot"
)

// Stall detection defaults for driving joints into their end stops.
const (
	DefaultVelocityWindow = 100
	DefaultMinSteps       = 1000
	DefaultStopVelocity   = 0.01
)

// StallDetector tracks a sliding window of absolute joint velocities and
// reports when all joints have come to rest.
type StallDetector struct {
	window       int
	minSteps     int
	stopVelocity float64

	history [][]float64
	sum     []float64
	steps   int
}

// NewStallDetector creates a detector for n joints. minSteps must exceed the
// window so the average is only evaluated over a full window.
func NewStallDetector(n, window, minSteps int, stopVelocity float64) (*StallDetector, error) {
	if window <= 0 {
		return nil, fmt.Errorf("motion: velocity window must be positive, got %d", window)
	}
	if minSteps <= window {
		return nil, fmt.Errorf("motion: min steps (%d) must be bigger than the velocity window (%d)",
			minSteps, window)
	}
	history := make([][]float64, window)
	for i := range history {
		history[i] = make([]float64, n)
	}
	return &StallDetector{
		window:       window,
		minSteps:     minSteps,
		stopVelocity: stopVelocity,
		history:      history,
		sum:          make([]float64, n),
	}, nil
}

// NewDefaultStallDetector uses the default window, step count and velocity.
func NewDefaultStallDetector(n int) *StallDetector {
	d, _ := NewStallDetector(n, DefaultVelocityWindow, DefaultMinSteps, DefaultStopVelocity)
	return d
}

// Add records the velocities of one tick.
func (d *StallDetector) Add(velocity robot.Vector) {
	slot := d.history[d.steps%d.window]
	for i, v := range velocity {
		if v < 0 {
			v = -v
		}
		if d.steps >= d.window {
			d.sum[i] -= slot[i]
		}
		slot[i] = v
		d.sum[i] += v
	}
	d.steps++
}

// Steps returns the number of recorded ticks.
func (d *StallDetector) Steps() int {
	return d.steps
}

// AverageSpeed returns the windowed mean absolute velocity of the fastest
// joint.
func (d *StallDetector) AverageSpeed() float64 {
	m := 0.0
	for _, s := range d.sum {
		if s > m {
			m = s
		}
	}
	return m / float64(d.window)
}

// Stalled reports whether the minimum step count was reached and the
// average speed is at or below the stop velocity.
func (d *StallDetector) Stalled() bool {
	return d.steps >= d.minSteps && d.AverageSpeed() <= d.stopVelocity
}
