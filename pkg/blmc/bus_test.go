package blmc

import (
	"context"
	"io"
	"sync"
	"testing"

	"blmc-robot-go/pkg/log"

	"go.einride.tech/can"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *log.Logger {
	return log.NewWithWriter("blmc", io.Discard, log.DEBUG, log.FormatText)
}

// fakeBus records transmitted frames and delivers injected ones.
type fakeBus struct {
	mu         sync.Mutex
	sent       []can.Frame
	onTransmit func(can.Frame)
	txErr      error

	rx        chan can.Frame
	done      chan struct{}
	closeOnce sync.Once
	frame     can.Frame
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		rx:   make(chan can.Frame, 64),
		done: make(chan struct{}),
	}
}

func (b *fakeBus) TransmitFrame(_ context.Context, f can.Frame) error {
	b.mu.Lock()
	if b.txErr != nil {
		err := b.txErr
		b.mu.Unlock()
		return err
	}
	b.sent = append(b.sent, f)
	hook := b.onTransmit
	b.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

func (b *fakeBus) Receive() bool {
	select {
	case f := <-b.rx:
		b.frame = f
		return true
	case <-b.done:
		return false
	}
}

func (b *fakeBus) Frame() can.Frame { return b.frame }
func (b *fakeBus) Err() error       { return nil }

func (b *fakeBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

func (b *fakeBus) inject(f can.Frame) { b.rx <- f }

func (b *fakeBus) frames() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]can.Frame(nil), b.sent...)
}

// commands returns the board commands sent so far.
func (b *fakeBus) commands() []Command {
	var out []Command
	for _, f := range b.frames() {
		if f.ID == IDCommand {
			cmd, _ := DecodeCommand(f)
			out = append(out, cmd)
		}
	}
	return out
}

// lastCurrents decodes the newest current reference frame.
func (b *fakeBus) lastCurrents() (float64, float64, bool) {
	frames := b.frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].ID == IDCurrentRef {
			m1, m2 := DecodePair(frames[i])
			return m1, m2, true
		}
	}
	return 0, 0, false
}
