// CAN bus transport for BLMC boards
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package blmc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// ErrBusClosed is returned when sending on a closed bus.
var ErrBusClosed = errors.New("blmc: bus closed")

// Bus is a CAN interface. The receive half follows the scanner pattern:
// Receive blocks until a frame is available and returns false once the bus
// is closed or broken, after which Err explains why.
type Bus interface {
	TransmitFrame(ctx context.Context, f can.Frame) error
	Receive() bool
	Frame() can.Frame
	Err() error
	Close() error
}

// SocketCANBus is a Bus on a Linux SocketCAN interface.
type SocketCANBus struct {
	iface string
	conn  net.Conn
	tx    *socketcan.Transmitter
	rx    *socketcan.Receiver

	closeOnce sync.Once
	closeErr  error
}

// DialSocketCAN opens the SocketCAN interface iface, e.g. "can0".
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANBus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("blmc: socketcan dial %s: %w", iface, err)
	}
	return &SocketCANBus{
		iface: iface,
		conn:  conn,
		tx:    socketcan.NewTransmitter(conn),
		rx:    socketcan.NewReceiver(conn),
	}, nil
}

// Interface returns the interface name.
func (b *SocketCANBus) Interface() string { return b.iface }

// TransmitFrame sends f.
func (b *SocketCANBus) TransmitFrame(ctx context.Context, f can.Frame) error {
	return b.tx.TransmitFrame(ctx, f)
}

// Receive blocks until the next frame arrives.
func (b *SocketCANBus) Receive() bool { return b.rx.Receive() }

// Frame returns the frame read by the last successful Receive.
func (b *SocketCANBus) Frame() can.Frame { return b.rx.Frame() }

// Err returns the error that stopped Receive.
func (b *SocketCANBus) Err() error { return b.rx.Err() }

// Close closes the socket, which also unblocks Receive.
func (b *SocketCANBus) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}
