// Per-joint vector type
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package robot holds the per-joint data types shared by the driver, the
// control pipeline and the motor board layer.
package robot

import (
	"fmt"
	"math"
	"strings"
)

// Vector holds one value per joint.
type Vector []float64

// Zeros returns a vector of n zeros.
func Zeros(n int) Vector {
	return make(Vector, n)
}

// Constant returns a vector of n copies of v.
func Constant(n int, v float64) Vector {
	out := make(Vector, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Clone returns a copy of v. A nil vector stays nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Len returns the number of joints.
func (v Vector) Len() int { return len(v) }

// IsZero reports whether every entry is exactly zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// MaxAbs returns the largest absolute entry, 0 for an empty vector.
func (v Vector) MaxAbs() float64 {
	m := 0.0
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	out := v.Clone()
	for i := range out {
		out[i] += o[i]
	}
	return out
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	out := v.Clone()
	for i := range out {
		out[i] -= o[i]
	}
	return out
}

// Scale returns s * v.
func (v Vector) Scale(s float64) Vector {
	out := v.Clone()
	for i := range out {
		out[i] *= s
	}
	return out
}

// String formats the vector as "[a b c]" with fixed precision.
func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
