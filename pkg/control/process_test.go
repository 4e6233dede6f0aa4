package control

import (
	"math"
	"math/rand"
	"testing"

	"blmc-robot-go/pkg/robot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(n int) Params {
	return Params{
		MaxTorque: 1,
		SafetyKd:  robot.Zeros(n),
		DefaultKp: robot.Constant(n, 2),
		DefaultKd: robot.Constant(n, 0.5),
		Lower:     robot.Constant(n, -1),
		Upper:     robot.Constant(n, 1),
	}
}

func observation(pos, vel robot.Vector) robot.Observation {
	return robot.Observation{Position: pos, Velocity: vel, Torque: robot.Zeros(len(pos))}
}

func TestClampsPositionTargets(t *testing.T) {
	p := params(2)
	desired := robot.PositionAction(robot.Vector{2, -2})

	out := Process(desired, observation(robot.Vector{0, 0}, robot.Vector{0, 0}), p)

	assert.Equal(t, 1.0, out.Position[0].Or(math.NaN()))
	assert.Equal(t, -1.0, out.Position[1].Or(math.NaN()))
	assert.True(t, desired.Position[0].IsSet())
	assert.Equal(t, 2.0, desired.Position[0].Or(0), "desired action must not be modified")
}

func TestSafetyDamping(t *testing.T) {
	p := params(2)
	p.SafetyKd = robot.Vector{0.1, 0.1}

	out := Process(robot.TorqueAction(robot.Vector{0, 0}),
		observation(robot.Vector{0, 0}, robot.Vector{2, -2}), p)

	assert.InDeltaSlice(t, []float64{-0.2, 0.2}, []float64(out.Torque), 1e-12)
	assert.False(t, out.Position.AnySet(), "no controller without targets")
}

func TestDampingIsReclamped(t *testing.T) {
	p := params(1)
	p.SafetyKd = robot.Vector{1}

	out := Process(robot.TorqueAction(robot.Vector{-1}),
		observation(robot.Vector{0}, robot.Vector{5}), p)
	assert.Equal(t, -1.0, out.Torque[0])
}

func TestTorqueClamp(t *testing.T) {
	p := params(2)
	out := Process(robot.TorqueAction(robot.Vector{5, -5}),
		observation(robot.Vector{0, 0}, robot.Vector{0, 0}), p)
	assert.Equal(t, robot.Vector{1, -1}, out.Torque)
}

func TestBoundaryOverrideAboveUpper(t *testing.T) {
	p := params(2)
	p.DefaultKp = robot.Vector{0.1, 0.1}
	p.DefaultKd = robot.Vector{0, 0}

	desired := robot.TorqueAction(robot.Vector{0.5, 0.5})
	desired.PositionKp[0] = robot.Some(100)

	out := Process(desired, observation(robot.Vector{1.5, 0}, robot.Vector{0, 0}), p)

	// joint 0 is out of range: outward torque dropped, target injected at
	// the bound with default gains, PD pulls it back
	assert.Equal(t, 1.0, out.Position[0].Or(math.NaN()))
	assert.Equal(t, 0.1, out.PositionKp[0].Or(math.NaN()))
	assert.InDelta(t, 0.1*(1-1.5), out.Torque[0], 1e-12)

	// joint 1 is untouched
	assert.False(t, out.Position[1].IsSet())
	assert.Equal(t, 0.5, out.Torque[1])
}

func TestNoOutwardTorqueAboveUpper(t *testing.T) {
	p := params(1)
	for _, desired := range []float64{-2, -0.5, 0, 0.5, 2} {
		out := Process(robot.TorqueAction(robot.Vector{desired}),
			observation(robot.Vector{1.2}, robot.Vector{0}), p)
		assert.LessOrEqual(t, out.Torque[0], 0.0, "desired %v", desired)
	}
}

func TestBoundaryOverrideBelowLowerKeepsInwardTorque(t *testing.T) {
	p := params(1)
	p.DefaultKp = robot.Vector{0}
	p.DefaultKd = robot.Vector{0}

	out := Process(robot.TorqueAction(robot.Vector{0.3}),
		observation(robot.Vector{-2}, robot.Vector{0}), p)
	assert.Equal(t, 0.3, out.Torque[0])
	assert.Equal(t, -1.0, out.Position[0].Or(math.NaN()))

	out = Process(robot.TorqueAction(robot.Vector{-0.3}),
		observation(robot.Vector{-2}, robot.Vector{0}), p)
	assert.Equal(t, 0.0, out.Torque[0])
}

func TestBoundaryOverrideIsPerJoint(t *testing.T) {
	p := params(2)
	desired := robot.PositionActionWithGains(robot.Vector{0, 0}, robot.Vector{7, 7}, robot.Vector{0, 0})

	out := Process(desired, observation(robot.Vector{5, 0}, robot.Vector{0, 0}), p)

	assert.Equal(t, 2.0, out.PositionKp[0].Or(0), "violating joint gets default gains")
	assert.Equal(t, 7.0, out.PositionKp[1].Or(0), "other joint keeps its override")
}

func TestPDMasksJointsWithoutTarget(t *testing.T) {
	p := params(2)
	p.MaxTorque = 100

	desired := robot.TorqueAction(robot.Vector{0.1, 0.2})
	desired.Position[0] = robot.Some(0.5)

	out := Process(desired, observation(robot.Vector{0, 0.3}, robot.Vector{1, 1}), p)

	assert.InDelta(t, 0.1+2*0.5-0.5*1, out.Torque[0], 1e-12)
	assert.Equal(t, 0.2, out.Torque[1])
	for _, v := range out.Torque {
		assert.False(t, math.IsNaN(v))
	}
}

func TestPDUsesGainOverrides(t *testing.T) {
	p := params(1)
	p.MaxTorque = 100

	desired := robot.PositionActionWithGains(robot.Vector{1}, robot.Vector{3}, robot.Vector{0.2})
	out := Process(desired, observation(robot.Vector{0.5}, robot.Vector{1}), p)
	assert.InDelta(t, 3*0.5-0.2*1, out.Torque[0], 1e-12)
}

func TestUnboundedLimits(t *testing.T) {
	p := params(2)
	p.Lower, p.Upper = Unbounded(2)

	out := Process(robot.PositionAction(robot.Vector{10, -10}),
		observation(robot.Vector{50, -50}, robot.Vector{0, 0}), p)
	assert.Equal(t, 10.0, out.Position[0].Or(0))
	assert.Equal(t, -10.0, out.Position[1].Or(0))
}

func TestRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const n = 3
	p := params(n)
	p.SafetyKd = robot.Constant(n, 0.05)

	for iter := 0; iter < 2000; iter++ {
		desired := robot.TorqueAction(robot.Zeros(n))
		pos, vel := robot.Zeros(n), robot.Zeros(n)
		for i := 0; i < n; i++ {
			desired.Torque[i] = rng.Float64()*4 - 2
			if rng.Intn(2) == 0 {
				desired.Position[i] = robot.Some(rng.Float64()*6 - 3)
			}
			pos[i] = rng.Float64()*4 - 2
			vel[i] = rng.Float64()*10 - 5
		}

		out := Process(desired, observation(pos, vel), p)
		require.Len(t, out.Torque, n)
		for i := 0; i < n; i++ {
			if target, ok := out.Position[i].Get(); ok {
				assert.GreaterOrEqual(t, target, p.Lower[i])
				assert.LessOrEqual(t, target, p.Upper[i])
			}
			assert.LessOrEqual(t, math.Abs(out.Torque[i]), p.MaxTorque)
			if pos[i] > p.Upper[i] {
				// only velocity damping may produce outward torque
				kd := p.DefaultKd[i] + p.SafetyKd[i]
				assert.LessOrEqual(t, out.Torque[i], math.Max(0, -kd*vel[i])+1e-12)
			}
		}
	}
}

func TestNaNTargetsAndGainsAreUnset(t *testing.T) {
	p := params(2)
	obs := observation(robot.Vector{0, 0}, robot.Vector{0, 0})

	desired := robot.TorqueAction(robot.Zeros(2))
	desired.Position[0] = robot.Some(math.NaN())
	desired.Position[1] = robot.Some(0.1)
	desired.PositionKp[1] = robot.Some(math.NaN())

	out := Process(desired, obs, p)
	assert.False(t, out.Position[0].IsSet())
	assert.False(t, out.PositionKp[1].IsSet())
	assert.Equal(t, robot.Vector{0, 0.2}, out.Torque)

	out = Process(robot.PositionAction(robot.Vector{math.NaN(), 0.1}), obs, p)
	assert.Equal(t, robot.Vector{0, 0.2}, out.Torque)
}
