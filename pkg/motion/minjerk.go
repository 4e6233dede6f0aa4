// Minimum-jerk point-to-point trajectories
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package motion provides the trajectory and stall detection helpers used
// to move joints during initialization and shutdown.
package motion

import (
	"math"

	"blmc-robot-go/pkg/robot"
)

// MinJerk is the quintic blend 10a^3 - 15a^4 + 6a^5. It has zero velocity
// and acceleration at a = 0 and a = 1.
func MinJerk(alpha float64) float64 {
	a3 := alpha * alpha * alpha
	return a3 * (10 + alpha*(-15+6*alpha))
}

// Trajectory interpolates from Start to Goal in Steps ticks.
type Trajectory struct {
	Start robot.Vector
	Goal  robot.Vector
	Steps int
}

// NewTrajectory returns a trajectory from start to goal. Both vectors are
// copied.
func NewTrajectory(start, goal robot.Vector, steps int) Trajectory {
	return Trajectory{Start: start.Clone(), Goal: goal.Clone(), Steps: steps}
}

// Len returns the number of waypoints.
func (t Trajectory) Len() int {
	if t.Steps < 0 {
		return 0
	}
	return t.Steps
}

// At returns waypoint step, for step in [0, Steps). Waypoint 0 is Start; the
// blend reaches Goal at step == Steps.
func (t Trajectory) At(step int) robot.Vector {
	if t.Steps <= 0 {
		return t.Goal.Clone()
	}
	return Interpolate(t.Start, t.Goal, MinJerk(float64(step)/float64(t.Steps)))
}

// Interpolate returns start + (goal - start) * s.
func Interpolate(start, goal robot.Vector, s float64) robot.Vector {
	out := make(robot.Vector, len(start))
	for i := range out {
		out[i] = start[i] + (goal[i]-start[i])*s
	}
	return out
}

// WithinTolerance reports whether every joint of actual is closer than tol
// to goal.
func WithinTolerance(goal, actual robot.Vector, tol float64) bool {
	if len(goal) != len(actual) {
		return false
	}
	for i := range goal {
		if !(math.Abs(goal[i]-actual[i]) < tol) {
			return false
		}
	}
	return true
}
