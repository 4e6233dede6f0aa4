// Robot driver configuration
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config holds the robot driver configuration: joint limits, gains,
// calibration and homing settings, and the shutdown trajectory.
package config

import (
	"fmt"
	"io"
	"math"

	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/motion"
	"blmc-robot-go/pkg/robot"

	"gopkg.in/yaml.v3"
)

// DefaultCalibrationMoveSteps is used when the calibration block does not
// set move_steps.
const DefaultCalibrationMoveSteps = 500

// Calibration parameters used by homing and the move to the initial pose.
type Calibration struct {
	// EndstopSearchTorquesNm is the torque applied while searching the end
	// stop. Its sign also selects the encoder index search direction.
	EndstopSearchTorquesNm robot.Vector `yaml:"endstop_search_torques_Nm"`

	// MoveSteps is the number of ticks for moving to the initial position.
	MoveSteps int `yaml:"move_steps"`

	// EndstopSearchMaxSteps bounds the end stop search. 0 means unlimited.
	EndstopSearchMaxSteps int `yaml:"endstop_search_max_steps,omitempty"`
}

// Gains are the default PD gains of the position controller.
type Gains struct {
	Kp robot.Vector `yaml:"kp"`
	Kd robot.Vector `yaml:"kd"`
}

// TrajectoryStep is one waypoint of the shutdown trajectory.
type TrajectoryStep struct {
	TargetPositionRad robot.Vector `yaml:"target_position_rad"`
	MoveSteps         int          `yaml:"move_steps"`
}

// Config is the driver configuration. It is not modified after loading.
type Config struct {
	CANPorts                   []string         `yaml:"can_ports"`
	MaxCurrentA                float64          `yaml:"max_current_A"`
	HasEndstop                 bool             `yaml:"has_endstop"`
	HomingMethod               HomingMethod     `yaml:"homing_method"`
	MoveToPositionToleranceRad float64          `yaml:"move_to_position_tolerance_rad"`
	Calibration                Calibration      `yaml:"calibration"`
	SafetyKd                   robot.Vector     `yaml:"safety_kd"`
	PositionControlGains       Gains            `yaml:"position_control_gains"`
	HardPositionLimitsLower    robot.Vector     `yaml:"hard_position_limits_lower"`
	HardPositionLimitsUpper    robot.Vector     `yaml:"hard_position_limits_upper"`
	SoftPositionLimitsLower    robot.Vector     `yaml:"soft_position_limits_lower"`
	SoftPositionLimitsUpper    robot.Vector     `yaml:"soft_position_limits_upper"`
	HomeOffsetRad              robot.Vector     `yaml:"home_offset_rad"`
	InitialPositionRad         robot.Vector     `yaml:"initial_position_rad"`
	ShutdownTrajectory         []TrajectoryStep `yaml:"shutdown_trajectory"`
	RunDurationLogfiles        []string         `yaml:"run_duration_logfiles"`
}

// NumJoints returns the joint count, which is the length of the lower hard
// limit vector.
func (c *Config) NumJoints() int {
	return len(c.HardPositionLimitsLower)
}

// NumBoards returns the number of motor boards needed for the joints. Each
// board drives two motors.
func (c *Config) NumBoards() int {
	return (c.NumJoints() + 1) / 2
}

// IsWithinHardLimits reports whether every joint of position lies within the
// hard limits, bounds included.
func (c *Config) IsWithinHardLimits(position robot.Vector) bool {
	if len(position) != c.NumJoints() {
		return false
	}
	for i, p := range position {
		if !(p >= c.HardPositionLimitsLower[i] && p <= c.HardPositionLimitsUpper[i]) {
			return false
		}
	}
	return true
}

// SetDefaults fills the optional fields that are still empty.
func (c *Config) SetDefaults() {
	n := c.NumJoints()
	if c.SoftPositionLimitsLower == nil {
		c.SoftPositionLimitsLower = robot.Constant(n, math.Inf(-1))
	}
	if c.SoftPositionLimitsUpper == nil {
		c.SoftPositionLimitsUpper = robot.Constant(n, math.Inf(1))
	}
	if c.Calibration.EndstopSearchTorquesNm == nil {
		c.Calibration.EndstopSearchTorquesNm = robot.Zeros(n)
	}
	if c.Calibration.MoveSteps == 0 {
		c.Calibration.MoveSteps = DefaultCalibrationMoveSteps
	}
	if c.PositionControlGains.Kp == nil {
		c.PositionControlGains.Kp = robot.Zeros(n)
	}
	if c.PositionControlGains.Kd == nil {
		c.PositionControlGains.Kd = robot.Zeros(n)
	}
}

// CheckDimensions verifies that every per-joint vector has n entries.
func (c *Config) CheckDimensions(n int) error {
	if n <= 0 {
		return errors.ConfigValidationError("", "hard_position_limits_lower",
			"must contain at least one joint")
	}
	vectors := []struct {
		section, option string
		v               robot.Vector
	}{
		{"", "hard_position_limits_lower", c.HardPositionLimitsLower},
		{"", "hard_position_limits_upper", c.HardPositionLimitsUpper},
		{"", "soft_position_limits_lower", c.SoftPositionLimitsLower},
		{"", "soft_position_limits_upper", c.SoftPositionLimitsUpper},
		{"", "safety_kd", c.SafetyKd},
		{"", "home_offset_rad", c.HomeOffsetRad},
		{"", "initial_position_rad", c.InitialPositionRad},
		{"position_control_gains", "kp", c.PositionControlGains.Kp},
		{"position_control_gains", "kd", c.PositionControlGains.Kd},
		{"calibration", "endstop_search_torques_Nm", c.Calibration.EndstopSearchTorquesNm},
	}
	for _, vec := range vectors {
		if len(vec.v) != n {
			return errors.ConfigValidationError(vec.section, vec.option,
				fmt.Sprintf("has %d entries, expected %d", len(vec.v), n))
		}
	}
	for i, step := range c.ShutdownTrajectory {
		if len(step.TargetPositionRad) != n {
			return errors.ConfigValidationError("shutdown_trajectory",
				fmt.Sprintf("[%d].target_position_rad", i),
				fmt.Sprintf("has %d entries, expected %d", len(step.TargetPositionRad), n))
		}
	}
	return nil
}

// Validate checks the whole configuration for consistency.
func (c *Config) Validate() error {
	n := c.NumJoints()
	if err := c.CheckDimensions(n); err != nil {
		return err
	}

	if len(c.CANPorts) != c.NumBoards() {
		return errors.ConfigValidationError("", "can_ports",
			fmt.Sprintf("has %d entries, %d joints need %d boards",
				len(c.CANPorts), n, c.NumBoards()))
	}
	for i, port := range c.CANPorts {
		if port == "" {
			return errors.ConfigValidationError("", "can_ports",
				fmt.Sprintf("entry %d is empty", i))
		}
	}
	if !(c.MaxCurrentA > 0) {
		return errors.ConfigValidationError("", "max_current_A", "must be positive")
	}
	if !(c.MoveToPositionToleranceRad > 0) {
		return errors.ConfigValidationError("", "move_to_position_tolerance_rad",
			"must be positive")
	}
	if c.Calibration.MoveSteps <= 0 {
		return errors.ConfigValidationError("calibration", "move_steps", "must be positive")
	}
	if m := c.Calibration.EndstopSearchMaxSteps; m != 0 && m <= motion.DefaultMinSteps {
		return errors.ConfigValidationError("calibration", "endstop_search_max_steps",
			fmt.Sprintf("must be 0 (unlimited) or above %d", motion.DefaultMinSteps))
	}

	for i := 0; i < n; i++ {
		hl, hu := c.HardPositionLimitsLower[i], c.HardPositionLimitsUpper[i]
		sl, su := c.SoftPositionLimitsLower[i], c.SoftPositionLimitsUpper[i]
		if !(hl <= hu) {
			return errors.ConfigValidationError("", "hard_position_limits_lower",
				fmt.Sprintf("joint %d: lower limit %g above upper limit %g", i, hl, hu))
		}
		if !(sl <= su) {
			return errors.ConfigValidationError("", "soft_position_limits_lower",
				fmt.Sprintf("joint %d: lower limit %g above upper limit %g", i, sl, su))
		}
		// Unbounded soft limits stand for "not set".
		if !math.IsInf(sl, -1) && sl < hl {
			return errors.ConfigValidationError("", "soft_position_limits_lower",
				fmt.Sprintf("joint %d: %g is outside the hard limit %g", i, sl, hl))
		}
		if !math.IsInf(su, 1) && su > hu {
			return errors.ConfigValidationError("", "soft_position_limits_upper",
				fmt.Sprintf("joint %d: %g is outside the hard limit %g", i, su, hu))
		}
	}

	if c.HomingMethod.UsesSearchTorque() && c.Calibration.EndstopSearchTorquesNm.IsZero() {
		return errors.ConfigValidationError("calibration", "endstop_search_torques_Nm",
			fmt.Sprintf("must not be zero for homing method %s, its sign sets the search direction",
				c.HomingMethod))
	}

	for i, step := range c.ShutdownTrajectory {
		if step.MoveSteps <= 0 {
			return errors.ConfigValidationError("shutdown_trajectory",
				fmt.Sprintf("[%d].move_steps", i), "must be positive")
		}
	}
	return nil
}

// Print writes the configuration in YAML form.
func (c *Config) Print(w io.Writer) error {
	fmt.Fprintln(w, "Configuration:")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
