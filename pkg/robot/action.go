package robot

// Action is a per-joint command. Torque is always present; the position
// target and gains are optional per joint.
type Action struct {
	Torque     Vector
	Position   OptVector
	PositionKp OptVector
	PositionKd OptVector
}

// PositionAction targets pos on every joint with zero feed-forward torque
// and default gains.
func PositionAction(pos Vector) Action {
	n := len(pos)
	return Action{
		Torque:     Zeros(n),
		Position:   SomeVector(pos),
		PositionKp: UnsetVector(n),
		PositionKd: UnsetVector(n),
	}
}

// PositionActionWithGains targets pos with explicit gains.
func PositionActionWithGains(pos, kp, kd Vector) Action {
	return Action{
		Torque:     Zeros(len(pos)),
		Position:   SomeVector(pos),
		PositionKp: SomeVector(kp),
		PositionKd: SomeVector(kd),
	}
}

// TorqueAction commands pure torque with no position targets.
func TorqueAction(torque Vector) Action {
	n := len(torque)
	return Action{
		Torque:     torque.Clone(),
		Position:   UnsetVector(n),
		PositionKp: UnsetVector(n),
		PositionKd: UnsetVector(n),
	}
}

// Clone returns a deep copy.
func (a Action) Clone() Action {
	return Action{
		Torque:     a.Torque.Clone(),
		Position:   a.Position.Clone(),
		PositionKp: a.PositionKp.Clone(),
		PositionKd: a.PositionKd.Clone(),
	}
}

// Observation is the latest measured joint state.
type Observation struct {
	Position Vector
	Velocity Vector
	Torque   Vector
}

// Clone returns a deep copy.
func (o Observation) Clone() Observation {
	return Observation{
		Position: o.Position.Clone(),
		Velocity: o.Velocity.Clone(),
		Torque:   o.Torque.Clone(),
	}
}
