package driver

import (
	"context"
	stderrors "errors"
	"fmt"

	"blmc-robot-go/pkg/errors"
)

// Shutdown moves the joints along the configured shutdown trajectory,
// pauses the motors and appends the action count to the run duration logs.
// The trajectory stops at the first step that misses its goal; the motors
// are paused and the logs written regardless. The driver ends Stopped.
//
// The returned error joins the trajectory failure and any log file errors.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if s := d.State(); s == StateShuttingDown || s == StateStopped {
		return errors.InvalidStateError("shutdown", s.String())
	}
	d.setState(StateShuttingDown)
	defer d.setState(StateStopped)

	var errs []error
	for i, step := range d.cfg.ShutdownTrajectory {
		reached, err := d.moveToPosition(ctx, step.TargetPositionRad,
			d.cfg.MoveToPositionToleranceRad, step.MoveSteps)
		if err != nil {
			errs = append(errs, fmt.Errorf("shutdown trajectory step %d: %w", i, err))
			break
		}
		if !reached {
			d.logger.WithField("step", i).
				Error("failed to reach rest position, robot may be blocked")
			errs = append(errs, errors.RuntimeError(
				fmt.Sprintf("shutdown trajectory step %d: failed to reach rest position, robot may be blocked", i)))
			break
		}
	}

	d.act.PauseMotors()

	errs = append(errs, d.writeRunDurationLogs()...)
	return stderrors.Join(errs...)
}
