package robot

// FaultCode is the error code a motor board reports in its status.
type FaultCode uint8

const (
	FaultNone           FaultCode = 0
	FaultEncoder        FaultCode = 1
	FaultCANRecvTimeout FaultCode = 2
	FaultCritTemp       FaultCode = 3
	FaultPosConv        FaultCode = 4
	FaultPosRollover    FaultCode = 5
	FaultOther          FaultCode = 7
)

// Message returns the operator-facing phrase for the fault. Codes outside
// the known set map to "Unknown Error".
func (f FaultCode) Message() string {
	switch f {
	case FaultNone:
		return ""
	case FaultEncoder:
		return "Encoder Error"
	case FaultCANRecvTimeout:
		return "CAN Receive Timeout"
	case FaultCritTemp:
		return "Critical Temperature"
	case FaultPosConv:
		return "Error in SpinTAC Position Convert module"
	case FaultPosRollover:
		return "Position Rollover"
	case FaultOther:
		return "Other Error"
	default:
		return "Unknown Error"
	}
}

// BoardStatus is the last status reported by one motor board. Valid is false
// until the board sent its first status frame.
type BoardStatus struct {
	Valid         bool
	SystemEnabled bool
	Motor1Enabled bool
	Motor1Ready   bool
	Motor2Enabled bool
	Motor2Ready   bool
	Fault         FaultCode
}

// Ready reports whether the system and both motors are enabled and ready.
func (s BoardStatus) Ready() bool {
	return s.Valid && s.SystemEnabled &&
		s.Motor1Enabled && s.Motor1Ready &&
		s.Motor2Enabled && s.Motor2Ready
}

// HomingStatus is the result of a homing procedure.
type HomingStatus int

const (
	HomingNotInitialized HomingStatus = iota
	HomingRunning
	HomingSucceeded
	HomingFailed
)

// String returns the status name.
func (s HomingStatus) String() string {
	switch s {
	case HomingNotInitialized:
		return "not_initialized"
	case HomingRunning:
		return "running"
	case HomingSucceeded:
		return "succeeded"
	case HomingFailed:
		return "failed"
	default:
		return "unknown"
	}
}
