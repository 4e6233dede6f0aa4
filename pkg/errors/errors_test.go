package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "top level option",
			err:  ConfigOptionError("", "max_current_A"),
			want: "[CONFIG_OPTION:max_current_A] must be specified",
		},
		{
			name: "nested option",
			err:  ConfigValidationError("calibration", "move_steps", "must be positive"),
			want: "[CONFIG_VALIDATION:calibration.move_steps] must be positive",
		},
		{
			name: "file",
			err:  ConfigFileError("robot.yml", fmt.Errorf("no such file")),
			want: "[CONFIG_FILE] failed to load configuration from 'robot.yml': no such file",
		},
		{
			name: "joint",
			err:  HomingError("index not found").SetJoint(2),
			want: "[HOMING] joint 2: index not found",
		},
		{
			name: "wrapped",
			err:  TransportError("send torques", fmt.Errorf("socket closed")),
			want: "[TRANSPORT] send torques: socket closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsFollowsWrapping(t *testing.T) {
	err := fmt.Errorf("initialize: %w", HomingError("endstop missing"))

	assert.True(t, IsHoming(err))
	assert.False(t, IsConfig(err))
	assert.False(t, IsContract(err))
	assert.False(t, Is(nil, ErrHoming))
}

func TestCategoryHelpers(t *testing.T) {
	assert.True(t, IsConfig(ConfigFileError("robot.yml", stderrors.New("missing"))))
	assert.True(t, IsConfig(ConfigTypeError("", "safety_kd", "vector", stderrors.New("bad"))))
	assert.True(t, IsContract(NotInitializedError()))
	assert.True(t, IsContract(InvalidStateError("initialize", "ready")))
	assert.True(t, IsContract(DimensionError("torque", 2, 3)))
	assert.False(t, IsContract(RuntimeError("boom")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(cause, ErrRuntime, "context")
	assert.ErrorIs(t, err, cause)
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := func() (err error) {
		defer func() {
			if e := RecoverPanic(recover()); e != nil {
				err = e
			}
		}()
		var m map[string]int
		m["x"] = 1
		return nil
	}()
	require.Error(t, err)
	assert.True(t, Is(err, ErrRuntime))

	assert.Contains(t, RecoverPanic("bad thing").Error(), "panic: bad thing")
	assert.Contains(t, RecoverPanic(42).Error(), "panic: 42")
}
