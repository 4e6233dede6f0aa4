package driver

// State is the lifecycle state of the driver.
type State int32

const (
	// StateUninitialized is the state before Initialize and after a failed
	// initialization.
	StateUninitialized State = iota

	// StateInitializing indicates homing and the move to the initial
	// position are in progress.
	StateInitializing

	// StateReady indicates the driver accepts actions with soft limits
	// active.
	StateReady

	// StateShuttingDown indicates the shutdown trajectory is running.
	StateShuttingDown

	// StateStopped is final. Motors are paused.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// IsInitialized reports whether the driver is Ready.
func (d *Driver) IsInitialized() bool {
	return d.State() == StateReady
}

// OnStateChange registers a callback invoked after every state transition.
// Callbacks run on the goroutine that performed the transition.
func (d *Driver) OnStateChange(fn func(oldState, newState State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onStateChange = append(d.onStateChange, fn)
}

func (d *Driver) setState(s State) {
	old := State(d.state.Swap(int32(s)))
	if old == s {
		return
	}

	d.mu.Lock()
	callbacks := make([]func(State, State), len(d.onStateChange))
	copy(callbacks, d.onStateChange)
	d.mu.Unlock()

	d.logger.Debug("state %s -> %s", old, s)
	d.rec.RecordState(s)
	for _, fn := range callbacks {
		fn(old, s)
	}
}
