package driver

import (
	"context"
	"math"

	"blmc-robot-go/pkg/config"
	"blmc-robot-go/pkg/motion"
	"blmc-robot-go/pkg/robot"
)

const (
	// indexSearchStepRad is the absolute step per tick of the encoder index
	// search.
	indexSearchStepRad = 0.0003

	// indexSearchMotorRevs bounds the index search to 1.5 motor revolutions.
	indexSearchMotorRevs = 1.5

	// releaseSteps is the number of zero-torque ticks before homing at an
	// end stop with ENDSTOP_RELEASE.
	releaseSteps = 1000
)

// home runs the configured homing method. It reports false when homing
// failed; a non-nil error only means ctx was cancelled.
func (d *Driver) home(ctx context.Context) (bool, error) {
	method := d.cfg.HomingMethod
	logger := d.logger.WithField("method", method.String())
	logger.Info("start homing")

	searchTorque := d.cfg.Calibration.EndstopSearchTorquesNm

	if method.SearchesEndstop() {
		if !d.cfg.HasEndstop {
			logger.Error("selected homing method needs an end stop but 'has_endstop' is false")
			d.rec.RecordHoming(method.String(), false)
			return false, nil
		}
		if searchTorque.IsZero() {
			logger.Error("homing with end stop search selected but 'endstop_search_torques_Nm' is zero")
			d.rec.RecordHoming(method.String(), false)
			return false, nil
		}

		blocked, err := d.moveUntilBlocking(ctx, searchTorque)
		if err != nil {
			return false, err
		}
		if !blocked {
			logger.WithField("max_steps", d.cfg.Calibration.EndstopSearchMaxSteps).
				Error("end stop not reached")
			d.rec.RecordHoming(method.String(), false)
			return false, nil
		}
		logger.Info("reached end stop")
	}

	status := robot.HomingNotInitialized
	switch method {
	case config.HomingNone:
		status = robot.HomingSucceeded

	case config.HomingNextIndex, config.HomingEndstopIndex:
		if searchTorque.IsZero() {
			logger.Error("homing with index search selected but 'endstop_search_torques_Nm' is zero;" +
				" its sign sets the index search direction (opposite to the end stop search)")
			d.rec.RecordHoming(method.String(), false)
			return false, nil
		}
		status = d.act.ExecuteHoming(ctx, d.indexSearchLimit(), d.cfg.HomeOffsetRad, d.indexSearchSteps())
		if err := ctx.Err(); err != nil {
			return false, err
		}

	case config.HomingCurrentPosition, config.HomingEndstop:
		status = d.act.ExecuteHomingAtCurrentPosition(d.cfg.HomeOffsetRad)

	case config.HomingEndstopRelease:
		// Stop pressing against the end stop before taking the reference.
		zero := robot.TorqueAction(robot.Zeros(d.n))
		for i := 0; i < releaseSteps; i++ {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			d.applyUninitialized(ctx, zero)
		}
		status = d.act.ExecuteHomingAtCurrentPosition(d.cfg.HomeOffsetRad)
	}

	ok := status == robot.HomingSucceeded
	d.rec.RecordHoming(method.String(), ok)
	logger.WithField("status", status.String()).Info("finished homing")
	return ok, nil
}

// indexSearchLimit is the search distance in joint radians.
func (d *Driver) indexSearchLimit() float64 {
	return indexSearchMotorRevs / d.motor.GearRatio * 2 * math.Pi
}

// indexSearchSteps moves each joint away from its end stop, i.e. against
// the sign of its search torque.
func (d *Driver) indexSearchSteps() robot.Vector {
	steps := robot.Constant(d.n, indexSearchStepRad)
	for i, t := range d.cfg.Calibration.EndstopSearchTorquesNm {
		if t > 0 {
			steps[i] = -steps[i]
		}
	}
	return steps
}

// moveUntilBlocking applies torque until all joints stopped moving. It
// reports false if calibration.endstop_search_max_steps is set and was
// reached first.
func (d *Driver) moveUntilBlocking(ctx context.Context, torque robot.Vector) (bool, error) {
	detector := motion.NewDefaultStallDetector(d.n)
	action := robot.TorqueAction(torque)
	maxSteps := d.cfg.Calibration.EndstopSearchMaxSteps

	for !detector.Stalled() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if maxSteps > 0 && detector.Steps() >= maxSteps {
			return false, nil
		}
		d.applyUninitialized(ctx, action)
		detector.Add(d.act.LatestObservation().Velocity)
	}
	return true, nil
}
