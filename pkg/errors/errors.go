// Unified error handling for the BLMC robot driver
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors. Fatal at load time, before any motor is energized.
	ErrConfigFile       ErrorCode = "CONFIG_FILE"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Homing errors. Recoverable, the driver stays uninitialized.
	ErrHoming ErrorCode = "HOMING"

	// Programming-contract violations
	ErrNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrInvalidState   ErrorCode = "INVALID_STATE"
	ErrDimension      ErrorCode = "DIMENSION"

	// Runtime errors
	ErrRuntime   ErrorCode = "RUNTIME"
	ErrTransport ErrorCode = "TRANSPORT"
)

// Error is the unified error type of the driver
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section (e.g. "calibration"), empty for top level
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Joint is the joint index the error refers to, -1 if none
	Joint int

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	where := e.Option
	if e.Section != "" && e.Option != "" {
		where = e.Section + "." + e.Option
	} else if e.Section != "" {
		where = e.Section
	}

	msg := e.Message
	if e.Joint >= 0 {
		msg = fmt.Sprintf("joint %d: %s", e.Joint, msg)
	}
	if where != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Code, where, msg)
	} else {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// SetSection sets the config section
func (e *Error) SetSection(section string) *Error {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *Error) SetOption(option string) *Error {
	e.Option = option
	return e
}

// SetJoint sets the joint index
func (e *Error) SetJoint(joint int) *Error {
	e.Joint = joint
	return e
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Joint: -1}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Joint: -1, Err: err}
}

// Config errors

// ConfigFileError creates an error for a config file that cannot be read or
// parsed
func ConfigFileError(path string, err error) *Error {
	msg := "failed to load configuration"
	if path != "" {
		msg = fmt.Sprintf("failed to load configuration from '%s'", path)
	}
	return Wrap(err, ErrConfigFile, msg)
}

// ConfigOptionError creates an error for a missing required option
func ConfigOptionError(section, option string) *Error {
	return New(ErrConfigOption, "must be specified").
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option, reason string) *Error {
	return New(ErrConfigValidation, reason).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for a value that cannot be decoded
func ConfigTypeError(section, option, targetType string, err error) *Error {
	return Wrap(err, ErrConfigType, fmt.Sprintf("failed to load value as %s", targetType)).
		SetSection(section).
		SetOption(option)
}

// Homing errors

// HomingError creates a recoverable homing failure
func HomingError(message string) *Error {
	return New(ErrHoming, message)
}

// Contract errors

// NotInitializedError is returned when actions are applied before initialize
func NotInitializedError() *Error {
	return New(ErrNotInitialized,
		"robot needs to be initialized before applying actions, run Initialize()")
}

// InvalidStateError is returned for a lifecycle call made in the wrong state
func InvalidStateError(operation, state string) *Error {
	return New(ErrInvalidState, fmt.Sprintf("%s not allowed in state %s", operation, state))
}

// DimensionError is returned when a vector has the wrong number of joints
func DimensionError(what string, got, want int) *Error {
	return New(ErrDimension, fmt.Sprintf("%s has %d entries, expected %d", what, got, want))
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *Error {
	return New(ErrRuntime, message)
}

// TransportError wraps a CAN transport failure
func TransportError(operation string, err error) *Error {
	return Wrap(err, ErrTransport, operation)
}

// RecoverPanic converts a recovered panic value into an error. Call it
// from a deferred function with the value returned by recover().
func RecoverPanic(r any) *Error {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, ErrRuntime, "panic")
	case error:
		return Wrap(x, ErrRuntime, "panic")
	case string:
		return RuntimeError("panic: " + x)
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if err (or anything it wraps) carries the given code
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigFile) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsHoming checks if error is a homing failure
func IsHoming(err error) bool {
	return Is(err, ErrHoming)
}

// IsContract checks if error is a programming-contract violation
func IsContract(err error) bool {
	return Is(err, ErrNotInitialized) ||
		Is(err, ErrInvalidState) ||
		Is(err, ErrDimension)
}
