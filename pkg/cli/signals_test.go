package cli

import (
	"testing"
	"time"
)

func TestSetupSignalHandlerStartsLive(t *testing.T) {
	ctx := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal arrived")
	default:
	}

	if ctx.Err() != nil {
		t.Errorf("Err() = %v, want nil", ctx.Err())
	}
}

func TestSetupSignalHandlerDrivesShutdown(t *testing.T) {
	// The context is the sole shutdown channel for a run in flight: a
	// goroutine blocked on it must stay blocked until cancellation.
	ctx := SetupSignalHandler()

	released := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("waiter released without a signal")
	case <-time.After(10 * time.Millisecond):
	}
}
