// Per-tick action processing: limits, PD control and safety damping
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package control turns a desired action into the torque command that is
// sent to the motors.
package control

import (
	"math"

	"blmc-robot-go/pkg/robot"
)

// Params are the limits and gains the pipeline works with.
type Params struct {
	// MaxTorque is the absolute torque limit in Nm, the same for all joints.
	MaxTorque float64
	// SafetyKd is the velocity damping gain per joint.
	SafetyKd robot.Vector
	// DefaultKp and DefaultKd are used where the action has no gain override.
	DefaultKp robot.Vector
	DefaultKd robot.Vector
	// Lower and Upper are the active position limits. Use infinite values for
	// unbounded joints.
	Lower robot.Vector
	Upper robot.Vector
}

// Process computes the applied action for one tick. desired is not
// modified. The steps run in this order:
//
//  1. clamp position targets into [Lower, Upper]
//  2. for joints measured outside the limits: drop torque pushing further
//     out, target the violated bound if no target is set, use default gains
//  3. if any joint has a target, add kp*(target-position) - kd*velocity
//  4. clamp torque to MaxTorque
//  5. subtract SafetyKd*velocity and clamp again
func Process(desired robot.Action, obs robot.Observation, p Params) robot.Action {
	n := len(desired.Torque)
	out := robot.Action{
		Torque:     desired.Torque.Clone(),
		Position:   make(robot.OptVector, n),
		PositionKp: make(robot.OptVector, n),
		PositionKd: make(robot.OptVector, n),
	}
	for i := 0; i < n; i++ {
		out.Position[i] = unsetNaN(desired.Position.At(i))
		out.PositionKp[i] = unsetNaN(desired.PositionKp.At(i))
		out.PositionKd[i] = unsetNaN(desired.PositionKd.At(i))
	}

	for i := 0; i < n; i++ {
		lower, upper := p.Lower[i], p.Upper[i]

		if target, ok := out.Position[i].Get(); ok {
			if target < lower {
				out.Position[i] = robot.Some(lower)
			} else if target > upper {
				out.Position[i] = robot.Some(upper)
			}
		}

		measured := obs.Position[i]
		if measured < lower {
			applyLimit(&out, i, -1, lower, p)
		} else if measured > upper {
			applyLimit(&out, i, +1, upper, p)
		}
	}

	if out.Position.AnySet() {
		for i := 0; i < n; i++ {
			target, ok := out.Position[i].Get()
			if !ok {
				continue
			}
			kp := out.PositionKp[i].Or(p.DefaultKp[i])
			kd := out.PositionKd[i].Or(p.DefaultKd[i])
			out.Torque[i] += kp*(target-obs.Position[i]) - kd*obs.Velocity[i]
		}
	}

	for i := 0; i < n; i++ {
		t := clamp(out.Torque[i], p.MaxTorque)
		t -= p.SafetyKd[i] * obs.Velocity[i]
		out.Torque[i] = clamp(t, p.MaxTorque)
	}
	return out
}

// applyLimit handles a joint whose measured position is beyond limit in
// direction sign.
func applyLimit(a *robot.Action, i int, sign, limit float64, p Params) {
	if a.Torque[i]*sign > 0 {
		a.Torque[i] = 0
	}
	if !a.Position[i].IsSet() {
		a.Position[i] = robot.Some(limit)
	}
	a.PositionKp[i] = robot.Some(p.DefaultKp[i])
	a.PositionKd[i] = robot.Some(p.DefaultKd[i])
}

// unsetNaN treats a NaN value as no value.
func unsetNaN(o robot.Opt) robot.Opt {
	if v, ok := o.Get(); ok && math.IsNaN(v) {
		return robot.Unset()
	}
	return o
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// Unbounded returns n-joint lower and upper limits of minus and plus
// infinity.
func Unbounded(n int) (lower, upper robot.Vector) {
	return robot.Constant(n, math.Inf(-1)), robot.Constant(n, math.Inf(1))
}
