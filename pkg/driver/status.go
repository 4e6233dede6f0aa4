package driver

import (
	"fmt"
	"strings"
)

const positionLimitsExceeded = "Position limits exceeded."

// GetError describes the current hardware faults: one "[Board i] <fault>"
// entry per board that reported an error, and a note when a joint is beyond
// its hard limits. An empty string means no error.
func (d *Driver) GetError() string {
	var boards []string
	for i, st := range d.act.BoardStatuses() {
		if !st.Valid {
			continue
		}
		if msg := st.Fault.Message(); msg != "" {
			boards = append(boards, fmt.Sprintf("[Board %d] %s", i, msg))
		}
	}
	msg := strings.Join(boards, "  ")

	if !d.cfg.IsWithinHardLimits(d.act.LatestObservation().Position) {
		if msg != "" {
			msg += " | "
		}
		msg += positionLimitsExceeded
	}
	return msg
}
