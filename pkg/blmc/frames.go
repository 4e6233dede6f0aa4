// Package blmc talks to dual-motor BLMC boards over CAN. Every board
// drives two motors and streams their measurements at 1 kHz.
//
// CAN ID Assignment:
//   - Command (Host->Board):           0x000
//   - Current reference (Host->Board): 0x005
//   - Status:                          0x010
//   - Motor current:                   0x020
//   - Motor position:                  0x030
//   - Motor speed:                     0x040
//   - Analog inputs:                   0x050
//   - Encoder index:                   0x060
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package blmc

import (
	"encoding/binary"
	"math"

	"blmc-robot-go/pkg/robot"

	"go.einride.tech/can"
)

// Frame IDs
const (
	IDCommand      uint32 = 0x000
	IDCurrentRef   uint32 = 0x005
	IDStatus       uint32 = 0x010
	IDCurrent      uint32 = 0x020
	IDPosition     uint32 = 0x030
	IDSpeed        uint32 = 0x040
	IDADC6         uint32 = 0x050
	IDEncoderIndex uint32 = 0x060
)

const frameDataLength = 8

// Command is a board command ID.
type Command uint32

// Board commands
const (
	CmdEnableSys              Command = 1
	CmdEnableMotor1           Command = 2
	CmdEnableMotor2           Command = 3
	CmdSendCurrent            Command = 12
	CmdSendPosition           Command = 13
	CmdSendVelocity           Command = 14
	CmdSendADC6               Command = 15
	CmdSendEncIndex           Command = 16
	CmdSendAll                Command = 20
	CmdSetCANRecvTimeout      Command = 30
	CmdEnablePosRolloverError Command = 31
)

// Status byte layout
const (
	statusSysEnabled    = 1 << 0
	statusMotor1Enabled = 1 << 1
	statusMotor1Ready   = 1 << 2
	statusMotor2Enabled = 1 << 3
	statusMotor2Ready   = 1 << 4
	statusErrorShift    = 5
	statusErrorMask     = 0x7
)

const q24One = 1 << 24

// ToQ24 converts v to signed Q8.24 fixed point.
func ToQ24(v float64) int32 {
	return int32(math.Round(v * q24One))
}

// FromQ24 converts signed Q8.24 fixed point to float.
func FromQ24(q int32) float64 {
	return float64(q) / q24One
}

// CommandFrame encodes a board command: value in bytes 0-3 and the command
// ID in bytes 4-7, both big endian.
func CommandFrame(cmd Command, value int32) can.Frame {
	f := can.Frame{ID: IDCommand, Length: frameDataLength}
	binary.BigEndian.PutUint32(f.Data[0:4], uint32(value))
	binary.BigEndian.PutUint32(f.Data[4:8], uint32(cmd))
	return f
}

// DecodeCommand is the inverse of CommandFrame.
func DecodeCommand(f can.Frame) (Command, int32) {
	value := int32(binary.BigEndian.Uint32(f.Data[0:4]))
	return Command(binary.BigEndian.Uint32(f.Data[4:8])), value
}

// CurrentRefFrame encodes the current references of both motors in A.
func CurrentRefFrame(motor1, motor2 float64) can.Frame {
	return pairFrame(IDCurrentRef, motor1, motor2)
}

func pairFrame(id uint32, motor1, motor2 float64) can.Frame {
	f := can.Frame{ID: id, Length: frameDataLength}
	binary.BigEndian.PutUint32(f.Data[0:4], uint32(ToQ24(motor1)))
	binary.BigEndian.PutUint32(f.Data[4:8], uint32(ToQ24(motor2)))
	return f
}

// DecodePair returns the two Q24 values of a measurement frame.
func DecodePair(f can.Frame) (motor1, motor2 float64) {
	motor1 = FromQ24(int32(binary.BigEndian.Uint32(f.Data[0:4])))
	motor2 = FromQ24(int32(binary.BigEndian.Uint32(f.Data[4:8])))
	return motor1, motor2
}

// DecodeStatus decodes the status byte of a status frame.
func DecodeStatus(f can.Frame) robot.BoardStatus {
	b := f.Data[0]
	return robot.BoardStatus{
		Valid:         true,
		SystemEnabled: b&statusSysEnabled != 0,
		Motor1Enabled: b&statusMotor1Enabled != 0,
		Motor1Ready:   b&statusMotor1Ready != 0,
		Motor2Enabled: b&statusMotor2Enabled != 0,
		Motor2Ready:   b&statusMotor2Ready != 0,
		Fault:         robot.FaultCode((b >> statusErrorShift) & statusErrorMask),
	}
}

// EncodeStatus is the inverse of DecodeStatus.
func EncodeStatus(s robot.BoardStatus) can.Frame {
	var b byte
	flags := []struct {
		set bool
		bit byte
	}{
		{s.SystemEnabled, statusSysEnabled},
		{s.Motor1Enabled, statusMotor1Enabled},
		{s.Motor1Ready, statusMotor1Ready},
		{s.Motor2Enabled, statusMotor2Enabled},
		{s.Motor2Ready, statusMotor2Ready},
	}
	for _, fl := range flags {
		if fl.set {
			b |= fl.bit
		}
	}
	b |= (byte(s.Fault) & statusErrorMask) << statusErrorShift
	f := can.Frame{ID: IDStatus, Length: 1}
	f.Data[0] = b
	return f
}

// IndexFrame encodes an encoder index event: the motor position in mrev
// at the index in bytes 0-3 and the motor (0 or 1) in byte 4.
func IndexFrame(motor int, positionMrev float64) can.Frame {
	f := can.Frame{ID: IDEncoderIndex, Length: 5}
	binary.BigEndian.PutUint32(f.Data[0:4], uint32(ToQ24(positionMrev)))
	f.Data[4] = byte(motor)
	return f
}

// DecodeIndex is the inverse of IndexFrame.
func DecodeIndex(f can.Frame) (motor int, positionMrev float64) {
	return int(f.Data[4]), FromQ24(int32(binary.BigEndian.Uint32(f.Data[0:4])))
}

// MeasurementFrame encodes a two-motor measurement frame with the given ID.
func MeasurementFrame(id uint32, motor1, motor2 float64) can.Frame {
	return pairFrame(id, motor1, motor2)
}
