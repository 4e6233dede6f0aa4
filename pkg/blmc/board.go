// BLMC motor board: command sequencing and measurement tracking
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package blmc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/log"
	"blmc-robot-go/pkg/robot"

	"go.einride.tech/can"
)

// DefaultCANRecvTimeout is how long a board keeps its motors enabled
// without receiving a current reference.
const DefaultCANRecvTimeout = 100 * time.Millisecond

// Measurements are the newest values a board reported for its two motors.
type Measurements struct {
	// Current in A.
	Current [2]float64
	// Position in motor revolutions.
	Position [2]float64
	// Velocity in krpm.
	Velocity [2]float64
	// ADC are the analog inputs in V.
	ADC [2]float64
	// Valid is set once a position frame was received.
	Valid bool
}

// IndexEvent is the last encoder index seen on a motor.
type IndexEvent struct {
	// PositionMrev is the motor position at the index.
	PositionMrev float64
	// Count is the number of index events since start, 0 if none.
	Count uint64
}

// BusStats counts the frames exchanged with one board.
type BusStats struct {
	TxFrames      uint64
	RxFrames      uint64
	TxErrors      uint64
	UnknownFrames uint64
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithCANRecvTimeout sets the receive timeout programmed into the board.
func WithCANRecvTimeout(d time.Duration) BoardOption {
	return func(b *Board) { b.recvTimeout = d }
}

// WithBoardLogger sets the logger.
func WithBoardLogger(l *log.Logger) BoardOption {
	return func(b *Board) { b.logger = l }
}

// Board is one dual-motor board on its own CAN bus.
type Board struct {
	name        string
	bus         Bus
	recvTimeout time.Duration
	logger      *log.Logger

	mu     sync.RWMutex
	status robot.BoardStatus
	meas   Measurements
	index  [2]IndexEvent
	paused bool

	txFrames      atomic.Uint64
	rxFrames      atomic.Uint64
	txErrors      atomic.Uint64
	unknownFrames atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// NewBoard creates a board on bus. name identifies it in logs, usually the
// CAN interface.
func NewBoard(name string, bus Bus, opts ...BoardOption) *Board {
	b := &Board{
		name:        name,
		bus:         bus,
		recvTimeout: DefaultCANRecvTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = log.GetLogger("blmc")
	}
	b.logger = b.logger.With(log.Fields{"board": name})
	return b
}

// Name returns the board name.
func (b *Board) Name() string { return b.name }

// Start launches the receive loop and enables the board: system, streaming
// of all measurements, both motors and the receive timeout.
func (b *Board) Start(ctx context.Context) error {
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.receiveLoop()
	})

	enable := []struct {
		cmd   Command
		value int32
	}{
		{CmdEnableSys, 1},
		{CmdSendAll, 1},
		{CmdEnableMotor1, 1},
		{CmdEnableMotor2, 1},
		{CmdEnablePosRolloverError, 1},
		{CmdSetCANRecvTimeout, b.recvTimeoutMs()},
	}
	for _, e := range enable {
		if err := b.SendCommand(ctx, e.cmd, e.value); err != nil {
			return err
		}
	}
	b.logger.Info("board enabled")
	return nil
}

func (b *Board) recvTimeoutMs() int32 {
	return int32(b.recvTimeout / time.Millisecond)
}

// WaitUntilReady blocks until the board reports the system and both motors
// enabled and ready, or ctx is done.
func (b *Board) WaitUntilReady(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.Status().Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("blmc: board %s not ready: %w", b.name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SendCommand sends a board command.
func (b *Board) SendCommand(ctx context.Context, cmd Command, value int32) error {
	return b.transmit(ctx, CommandFrame(cmd, value))
}

// SendCurrents sends the current references of both motors in A. After a
// pause the receive timeout is armed again first.
func (b *Board) SendCurrents(ctx context.Context, motor1, motor2 float64) error {
	b.mu.Lock()
	resume := b.paused
	b.paused = false
	b.mu.Unlock()

	if resume {
		if err := b.SendCommand(ctx, CmdSetCANRecvTimeout, b.recvTimeoutMs()); err != nil {
			return err
		}
	}
	return b.transmit(ctx, CurrentRefFrame(motor1, motor2))
}

// PauseMotors sets both currents to zero and disarms the receive timeout,
// so the board does not fault while no references are sent.
func (b *Board) PauseMotors(ctx context.Context) error {
	if err := b.transmit(ctx, CurrentRefFrame(0, 0)); err != nil {
		return err
	}
	if err := b.SendCommand(ctx, CmdSetCANRecvTimeout, 0); err != nil {
		return err
	}
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
	return nil
}

func (b *Board) transmit(ctx context.Context, f can.Frame) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := b.bus.TransmitFrame(ctx, f); err != nil {
		b.txErrors.Add(1)
		return errors.TransportError(fmt.Sprintf("send frame 0x%03x on %s", f.ID, b.name), err)
	}
	b.txFrames.Add(1)
	return nil
}

// Status returns the last reported status. Valid is false before the first
// status frame.
func (b *Board) Status() robot.BoardStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Measurements returns the newest measurements of both motors.
func (b *Board) Measurements() Measurements {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meas
}

// LastIndex returns the last encoder index event of motor 0 or 1.
func (b *Board) LastIndex(motor int) IndexEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index[motor]
}

// Stats returns the frame counters.
func (b *Board) Stats() BusStats {
	return BusStats{
		TxFrames:      b.txFrames.Load(),
		RxFrames:      b.rxFrames.Load(),
		TxErrors:      b.txErrors.Load(),
		UnknownFrames: b.unknownFrames.Load(),
	}
}

// Close closes the bus and waits for the receive loop to exit.
func (b *Board) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = b.bus.Close()
		b.wg.Wait()
	})
	return err
}

func (b *Board) receiveLoop() {
	defer b.wg.Done()
	for b.bus.Receive() {
		b.handleFrame(b.bus.Frame())
	}
	if err := b.bus.Err(); err != nil && !b.closed.Load() {
		b.logger.WithError(err).Error("receive loop stopped")
	}
}

func (b *Board) handleFrame(f can.Frame) {
	b.rxFrames.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch f.ID {
	case IDStatus:
		b.status = DecodeStatus(f)
	case IDCurrent:
		b.meas.Current[0], b.meas.Current[1] = DecodePair(f)
	case IDPosition:
		b.meas.Position[0], b.meas.Position[1] = DecodePair(f)
		b.meas.Valid = true
	case IDSpeed:
		b.meas.Velocity[0], b.meas.Velocity[1] = DecodePair(f)
	case IDADC6:
		b.meas.ADC[0], b.meas.ADC[1] = DecodePair(f)
	case IDEncoderIndex:
		motor, pos := DecodeIndex(f)
		if motor < 0 || motor > 1 {
			b.unknownFrames.Add(1)
			return
		}
		b.index[motor] = IndexEvent{PositionMrev: pos, Count: b.index[motor].Count + 1}
	default:
		b.unknownFrames.Add(1)
	}
}
