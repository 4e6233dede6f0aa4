package robot

import "math"

// Opt is a float that may be unset.
type Opt struct {
	value float64
	set   bool
}

// Some returns an Opt holding v.
func Some(v float64) Opt {
	return Opt{value: v, set: true}
}

// Unset returns an empty Opt.
func Unset() Opt {
	return Opt{}
}

// OptFromFloat maps NaN to unset and anything else to Some. Used at the
// boundary to callers that still encode "no value" as NaN.
func OptFromFloat(v float64) Opt {
	if math.IsNaN(v) {
		return Unset()
	}
	return Some(v)
}

// Get returns the value and whether it is set.
func (o Opt) Get() (float64, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present.
func (o Opt) IsSet() bool {
	return o.set
}

// Or returns the value, or def when unset.
func (o Opt) Or(def float64) float64 {
	if o.set {
		return o.value
	}
	return def
}

// OptVector holds one optional value per joint.
type OptVector []Opt

// UnsetVector returns n unset entries.
func UnsetVector(n int) OptVector {
	return make(OptVector, n)
}

// SomeVector wraps every entry of v. NaN entries are unset.
func SomeVector(v Vector) OptVector {
	out := make(OptVector, len(v))
	for i, x := range v {
		out[i] = OptFromFloat(x)
	}
	return out
}

// AnySet reports whether at least one entry is set.
func (ov OptVector) AnySet() bool {
	for _, o := range ov {
		if o.set {
			return true
		}
	}
	return false
}

// Clone returns a copy of ov. A nil vector stays nil.
func (ov OptVector) Clone() OptVector {
	if ov == nil {
		return nil
	}
	out := make(OptVector, len(ov))
	copy(out, ov)
	return out
}

// At returns entry i, or unset when ov is shorter than i+1. A nil OptVector
// therefore reads as "all unset".
func (ov OptVector) At(i int) Opt {
	if i < 0 || i >= len(ov) {
		return Opt{}
	}
	return ov[i]
}
