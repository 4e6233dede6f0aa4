//go:build linux

package rt

import "golang.org/x/sys/unix"

// setRealtime switches the calling thread to SCHED_FIFO at priority.
func setRealtime(priority int) error {
	attr := unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	return unix.SchedSetAttr(0, &attr, 0)
}

// LockMemory locks current and future pages of the process into RAM so the
// control loop does not page fault.
func LockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

// UnlockMemory reverts LockMemory.
func UnlockMemory() error {
	return unix.Munlockall()
}
