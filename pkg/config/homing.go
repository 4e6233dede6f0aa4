package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// HomingMethod selects how the joints find their zero position.
type HomingMethod int

const (
	// HomingNone does not home. The current encoder zero is kept.
	HomingNone HomingMethod = iota
	// HomingNextIndex moves to the next encoder index.
	HomingNextIndex
	// HomingCurrentPosition uses the current position as reference.
	HomingCurrentPosition
	// HomingEndstop moves to the end stop and homes there.
	HomingEndstop
	// HomingEndstopIndex moves to the end stop, then to the next index.
	HomingEndstopIndex
	// HomingEndstopRelease moves to the end stop, releases the motors for a
	// moment, then homes at the resting position.
	HomingEndstopRelease
)

var homingMethodNames = map[HomingMethod]string{
	HomingNone:            "NONE",
	HomingNextIndex:       "NEXT_INDEX",
	HomingCurrentPosition: "CURRENT_POSITION",
	HomingEndstop:         "ENDSTOP",
	HomingEndstopIndex:    "ENDSTOP_INDEX",
	HomingEndstopRelease:  "ENDSTOP_RELEASE",
}

// String returns the configuration name of the method.
func (m HomingMethod) String() string {
	if name, ok := homingMethodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("HomingMethod(%d)", int(m))
}

// ParseHomingMethod maps a configuration name to a method. Names are case
// sensitive.
func ParseHomingMethod(name string) (HomingMethod, error) {
	for m, n := range homingMethodNames {
		if n == name {
			return m, nil
		}
	}
	valid := make([]string, 0, len(homingMethodNames))
	for m := HomingNone; m <= HomingEndstopRelease; m++ {
		valid = append(valid, homingMethodNames[m])
	}
	return HomingNone, fmt.Errorf("invalid homing method name %q, expected one of %s",
		name, strings.Join(valid, ", "))
}

// SearchesEndstop reports whether the method first drives into the end stop.
func (m HomingMethod) SearchesEndstop() bool {
	return m == HomingEndstop || m == HomingEndstopIndex || m == HomingEndstopRelease
}

// UsesIndex reports whether the method searches the encoder index.
func (m HomingMethod) UsesIndex() bool {
	return m == HomingNextIndex || m == HomingEndstopIndex
}

// UsesSearchTorque reports whether the method needs a non-zero
// endstop_search_torques_Nm, either to drive into the end stop or to pick
// the index search direction.
func (m HomingMethod) UsesSearchTorque() bool {
	return m.SearchesEndstop() || m.UsesIndex()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *HomingMethod) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseHomingMethod(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m HomingMethod) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}
