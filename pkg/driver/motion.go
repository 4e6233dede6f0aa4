package driver

import (
	"context"

	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/motion"
	"blmc-robot-go/pkg/robot"
)

// MoveToPosition moves all joints to goal on a minimum-jerk trajectory of
// steps ticks and reports whether every joint ended closer than tolerance to
// goal. Soft limits apply once the driver has been Ready.
func (d *Driver) MoveToPosition(ctx context.Context, goal robot.Vector, tolerance float64, steps int) (bool, error) {
	if s := d.State(); s == StateStopped {
		return false, errors.InvalidStateError("move to position", s.String())
	}
	if len(goal) != d.n {
		return false, errors.DimensionError("goal", len(goal), d.n)
	}
	return d.moveToPosition(ctx, goal, tolerance, steps)
}

func (d *Driver) moveToPosition(ctx context.Context, goal robot.Vector, tolerance float64, steps int) (bool, error) {
	traj := motion.NewTrajectory(d.act.LatestObservation().Position, goal, steps)
	for t := 0; t < traj.Len(); t++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		d.applyUninitialized(ctx, robot.PositionAction(traj.At(t)))
	}
	return motion.WithinTolerance(goal, d.act.LatestObservation().Position, tolerance), nil
}
