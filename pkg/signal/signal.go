package signal

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// Termination are the signals that request a graceful stop.
var Termination = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

// Source delivers termination requests. stop releases the subscription.
type Source func() (ch <-chan os.Signal, stop func())

// Notify subscribes to the termination signals of this process.
func Notify() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, Termination...)
	return ch, func() { signal.Stop(ch) }
}

// Manual returns a Source fed by the returned send function.
func Manual() (Source, func(os.Signal)) {
	ch := make(chan os.Signal, 1)
	src := func() (<-chan os.Signal, func()) {
		return ch, func() {}
	}
	send := func(sig os.Signal) {
		select {
		case ch <- sig:
		default:
		}
	}
	return src, send
}

// Terminate sends SIGTERM to pid.
func Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
