package blmc

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/robot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardStartEnablesBoard(t *testing.T) {
	bus := newFakeBus()
	b := NewBoard("can0", bus, WithBoardLogger(quietLogger()), WithCANRecvTimeout(50*time.Millisecond))
	defer b.Close()

	require.NoError(t, b.Start(context.Background()))

	assert.Equal(t, []Command{
		CmdEnableSys, CmdSendAll, CmdEnableMotor1, CmdEnableMotor2,
		CmdEnablePosRolloverError, CmdSetCANRecvTimeout,
	}, bus.commands())
	frames := bus.frames()
	_, timeout := DecodeCommand(frames[len(frames)-1])
	assert.Equal(t, int32(50), timeout)
	assert.Equal(t, uint64(6), b.Stats().TxFrames)
}

func TestBoardTracksMeasurements(t *testing.T) {
	bus := newFakeBus()
	b := NewBoard("can0", bus, WithBoardLogger(quietLogger()))
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	assert.False(t, b.Status().Valid)
	assert.False(t, b.Measurements().Valid)

	bus.inject(EncodeStatus(robot.BoardStatus{SystemEnabled: true, Fault: robot.FaultEncoder}))
	bus.inject(MeasurementFrame(IDPosition, 0.5, -1.25))
	bus.inject(MeasurementFrame(IDSpeed, 1, 2))
	bus.inject(MeasurementFrame(IDCurrent, 0.1, -0.2))
	bus.inject(IndexFrame(1, 3.5))
	bus.inject(IndexFrame(1, 4.5))
	bus.inject(MeasurementFrame(0x7ff, 0, 0))

	require.Eventually(t, func() bool { return b.Stats().RxFrames == 7 },
		time.Second, time.Millisecond)

	st := b.Status()
	assert.True(t, st.Valid)
	assert.True(t, st.SystemEnabled)
	assert.Equal(t, robot.FaultEncoder, st.Fault)

	m := b.Measurements()
	assert.True(t, m.Valid)
	assert.Equal(t, [2]float64{0.5, -1.25}, m.Position)
	assert.Equal(t, [2]float64{1, 2}, m.Velocity)
	assert.InDelta(t, -0.2, m.Current[1], 1e-6)

	assert.Equal(t, IndexEvent{}, b.LastIndex(0))
	assert.Equal(t, IndexEvent{PositionMrev: 4.5, Count: 2}, b.LastIndex(1))
	assert.Equal(t, uint64(1), b.Stats().UnknownFrames)
}

func TestBoardWaitUntilReady(t *testing.T) {
	bus := newFakeBus()
	b := NewBoard("can0", bus, WithBoardLogger(quietLogger()))
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := b.WaitUntilReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	bus.inject(EncodeStatus(robot.BoardStatus{
		SystemEnabled: true,
		Motor1Enabled: true, Motor1Ready: true,
		Motor2Enabled: true, Motor2Ready: true,
	}))
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, b.WaitUntilReady(ctx2))
}

func TestBoardPauseDisarmsTimeout(t *testing.T) {
	bus := newFakeBus()
	b := NewBoard("can0", bus, WithBoardLogger(quietLogger()))
	ctx := context.Background()

	require.NoError(t, b.SendCurrents(ctx, 0.5, -0.5))
	require.NoError(t, b.PauseMotors(ctx))
	m1, m2, ok := bus.lastCurrents()
	require.True(t, ok)
	assert.Zero(t, m1)
	assert.Zero(t, m2)

	frames := bus.frames()
	cmd, value := DecodeCommand(frames[len(frames)-1])
	assert.Equal(t, CmdSetCANRecvTimeout, cmd)
	assert.Zero(t, value)

	// The next reference re-arms the timeout first.
	require.NoError(t, b.SendCurrents(ctx, 0.25, 0))
	frames = bus.frames()
	cmd, value = DecodeCommand(frames[len(frames)-2])
	assert.Equal(t, CmdSetCANRecvTimeout, cmd)
	assert.Equal(t, int32(100), value)
	assert.Equal(t, IDCurrentRef, frames[len(frames)-1].ID)

	require.NoError(t, b.SendCurrents(ctx, 0.25, 0))
	assert.Len(t, bus.frames(), len(frames)+1)
}

func TestBoardTransmitErrors(t *testing.T) {
	bus := newFakeBus()
	bus.txErr = stderrors.New("no buffer space")
	b := NewBoard("can0", bus, WithBoardLogger(quietLogger()))

	err := b.SendCurrents(context.Background(), 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.Equal(t, uint64(1), b.Stats().TxErrors)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.SendCurrents(context.Background(), 0, 0), ErrBusClosed)
}
