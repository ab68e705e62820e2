package tsauth

import (
	"context"
	"testing"
	"time"
)

func TestOTPSweeperRunsUntilCancelled(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if err := te.engine.RequestCode(ctx, "stale@x.com"); err != nil {
		t.Fatalf("RequestCode failed: %v", err)
	}
	te.clock.Advance(2 * time.Minute)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		NewOTPSweeper(te.engine, 10*time.Millisecond, nil).Run(runCtx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for te.rdb.Exists(ctx, "tso:rec:stale@x.com").Val() != 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("sweeper did not remove expired record")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestOTPSweeperDefaultsToConfiguredInterval(t *testing.T) {
	te := newTestEngine(t, nil)

	s := NewOTPSweeper(te.engine, 0, nil)
	if s.interval != 90*time.Second {
		t.Fatalf("expected 90s default interval, got %v", s.interval)
	}
}
