// YAML configuration loader
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/log"

	"gopkg.in/yaml.v3"
)

// LoadResult is a successfully loaded configuration plus the warnings that
// were raised while loading it.
type LoadResult struct {
	Config   *Config
	Warnings []string
}

// LoadFile reads and validates the configuration file at path.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigFileError(path, err)
	}
	return load(path, data)
}

// Load parses and validates a configuration document. Errors are
// *errors.Error values with a CONFIG_* code; the caller decides whether to
// terminate.
func Load(data []byte) (*LoadResult, error) {
	return load("", data)
}

func load(path string, data []byte) (*LoadResult, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.ConfigFileError(path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.ConfigFileError(path, fmt.Errorf("document is empty"))
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.ConfigFileError(path, fmt.Errorf("top level is not a mapping"))
	}
	top, err := newMapping("", root.Content[0])
	if err != nil {
		return nil, err
	}

	l := &loader{logger: log.GetLogger("config")}
	cfg, err := l.decode(top)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Warnings: l.warnings}, nil
}

type loader struct {
	logger   *log.Logger
	warnings []string
}

func (l *loader) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.warnings = append(l.warnings, msg)
	l.logger.Warn("%s", msg)
}

func (l *loader) decode(top *mapping) (*Config, error) {
	cfg := &Config{}

	required := []struct {
		name   string
		target interface{}
	}{
		{"can_ports", &cfg.CANPorts},
		{"max_current_A", &cfg.MaxCurrentA},
		{"has_endstop", &cfg.HasEndstop},
		{"move_to_position_tolerance_rad", &cfg.MoveToPositionToleranceRad},
		{"safety_kd", &cfg.SafetyKd},
		{"hard_position_limits_lower", &cfg.HardPositionLimitsLower},
		{"hard_position_limits_upper", &cfg.HardPositionLimitsUpper},
		{"home_offset_rad", &cfg.HomeOffsetRad},
		{"initial_position_rad", &cfg.InitialPositionRad},
	}
	for _, r := range required {
		if err := top.required(r.name, r.target); err != nil {
			return nil, err
		}
	}

	if top.has("homing_with_index") {
		return nil, errors.ConfigValidationError("", "homing_with_index",
			"is obsolete, use 'homing_method' instead")
	}

	if top.has("homing_method") {
		var name string
		if err := top.required("homing_method", &name); err != nil {
			return nil, err
		}
		m, err := ParseHomingMethod(name)
		if err != nil {
			return nil, errors.ConfigValidationError("", "homing_method", err.Error())
		}
		cfg.HomingMethod = m
	} else {
		cfg.HomingMethod = HomingNextIndex
		if cfg.HasEndstop {
			cfg.HomingMethod = HomingEndstopIndex
		}
		l.warn("'homing_method' is not specified, using backward-compatible default %s;"+
			" specify a homing method explicitly to silence this warning", cfg.HomingMethod)
	}

	// Soft limits are optional, SetDefaults makes them unbounded.
	if _, err := top.optional("soft_position_limits_lower", &cfg.SoftPositionLimitsLower); err != nil {
		return nil, err
	}
	if _, err := top.optional("soft_position_limits_upper", &cfg.SoftPositionLimitsUpper); err != nil {
		return nil, err
	}

	if calib, err := top.child("calibration"); err != nil {
		return nil, err
	} else if calib != nil {
		if err := calib.required("endstop_search_torques_Nm", &cfg.Calibration.EndstopSearchTorquesNm); err != nil {
			return nil, err
		}
		if err := calib.required("move_steps", &cfg.Calibration.MoveSteps); err != nil {
			return nil, err
		}
		if _, err := calib.optional("endstop_search_max_steps", &cfg.Calibration.EndstopSearchMaxSteps); err != nil {
			return nil, err
		}
		l.warnUnused(calib)
	}

	if gains, err := top.child("position_control_gains"); err != nil {
		return nil, err
	} else if gains != nil {
		if err := gains.required("kp", &cfg.PositionControlGains.Kp); err != nil {
			return nil, err
		}
		if err := gains.required("kd", &cfg.PositionControlGains.Kd); err != nil {
			return nil, err
		}
		l.warnUnused(gains)
	}

	steps, err := top.sequence("shutdown_trajectory")
	if err != nil {
		return nil, err
	}
	for i, node := range steps {
		step, err := newMapping(fmt.Sprintf("shutdown_trajectory[%d]", i), node)
		if err != nil {
			return nil, err
		}
		var ts TrajectoryStep
		if err := step.required("target_position_rad", &ts.TargetPositionRad); err != nil {
			return nil, err
		}
		if err := step.required("move_steps", &ts.MoveSteps); err != nil {
			return nil, err
		}
		cfg.ShutdownTrajectory = append(cfg.ShutdownTrajectory, ts)
	}

	logfiles, err := top.sequence("run_duration_logfiles")
	if err != nil {
		return nil, err
	}
	for i, node := range logfiles {
		var name string
		if node.Kind != yaml.ScalarNode || node.Decode(&name) != nil {
			return nil, errors.ConfigTypeError("run_duration_logfiles",
				fmt.Sprintf("[%d]", i), "string", fmt.Errorf("line %d: not a string", node.Line))
		}
		cfg.RunDurationLogfiles = append(cfg.RunDurationLogfiles, name)
	}

	l.warnUnused(top)
	return cfg, nil
}

func (l *loader) warnUnused(m *mapping) {
	for _, key := range m.unused() {
		if m.section != "" {
			key = m.section + "." + key
		}
		l.warn("unknown option '%s' ignored", key)
	}
}

// mapping is a YAML mapping node with access tracking, so that options
// nobody asked for can be reported.
type mapping struct {
	section  string
	values   map[string]*yaml.Node
	order    []string
	accessed map[string]struct{}
}

func newMapping(section string, node *yaml.Node) (*mapping, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.ConfigTypeError(section, "", "mapping",
			fmt.Errorf("line %d: got %s", node.Line, kindName(node)))
	}
	m := &mapping{
		section:  section,
		values:   make(map[string]*yaml.Node, len(node.Content)/2),
		accessed: make(map[string]struct{}),
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := m.values[key]; !dup {
			m.order = append(m.order, key)
		}
		m.values[key] = node.Content[i+1]
	}
	return m, nil
}

func (m *mapping) has(name string) bool {
	_, ok := m.values[name]
	m.accessed[name] = struct{}{}
	return ok
}

// required decodes option name into target, failing when it is absent or
// null.
func (m *mapping) required(name string, target interface{}) error {
	ok, err := m.optional(name, target)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ConfigOptionError(m.section, name)
	}
	return nil
}

// optional decodes option name into target when it is present and not
// null, and reports whether it did.
func (m *mapping) optional(name string, target interface{}) (bool, error) {
	m.accessed[name] = struct{}{}
	node, ok := m.values[name]
	if !ok || node.Tag == "!!null" {
		return false, nil
	}
	if err := node.Decode(target); err != nil {
		return false, errors.ConfigTypeError(m.section, name, strings.TrimPrefix(fmt.Sprintf("%T", target), "*"), err)
	}
	return true, nil
}

// child returns the nested mapping for name, or nil when it is absent.
func (m *mapping) child(name string) (*mapping, error) {
	m.accessed[name] = struct{}{}
	node, ok := m.values[name]
	if !ok || node.Tag == "!!null" {
		return nil, nil
	}
	return newMapping(name, node)
}

// sequence returns the items of list option name, nil when it is absent.
func (m *mapping) sequence(name string) ([]*yaml.Node, error) {
	m.accessed[name] = struct{}{}
	node, ok := m.values[name]
	if !ok || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, errors.ConfigValidationError(m.section, name, "is not a list")
	}
	return node.Content, nil
}

func (m *mapping) unused() []string {
	var out []string
	for _, key := range m.order {
		if _, ok := m.accessed[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
