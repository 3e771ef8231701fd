package instance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForReadyReturnsAtFirstReadyTick(t *testing.T) {
	want := &Instance{Address: "127.0.0.1:40002"}
	probe := &fakeProbe{readyAfter: 3, inst: want}

	inst, ready, err := WaitForReady(context.Background(), probe, time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForReady failed: %v", err)
	}
	if !ready {
		t.Fatal("expected ready")
	}
	if inst.Address != want.Address {
		t.Errorf("unexpected instance: %+v", inst)
	}
	if probe.polls != 4 {
		t.Errorf("polled %d times, want 4", probe.polls)
	}
}

func TestWaitForReadyTimeoutWindow(t *testing.T) {
	const (
		timeout  = 100 * time.Millisecond
		interval = 20 * time.Millisecond
	)

	start := time.Now()
	_, ready, err := WaitForReady(context.Background(), &fakeProbe{readyAfter: -1}, timeout, interval)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("WaitForReady failed: %v", err)
	}
	if ready {
		t.Fatal("expected timeout, got ready")
	}
	if elapsed < timeout {
		t.Errorf("returned after %v, before the %v timeout", elapsed, timeout)
	}
	// Generous upper bound to avoid scheduler flakes; the contract is
	// timeout + one interval.
	if elapsed > timeout+10*interval {
		t.Errorf("returned after %v, far beyond timeout+interval", elapsed)
	}
}

type erroringProbe struct {
	polls int
	inst  *Instance
}

func (e *erroringProbe) Poll(ctx context.Context) (*Instance, bool, error) {
	e.polls++
	if e.polls < 3 {
		return nil, false, errors.New("transient store error")
	}
	return e.inst, true, nil
}

func TestWaitForReadySwallowsTransientErrors(t *testing.T) {
	want := &Instance{Address: "localhost:40002"}
	probe := &erroringProbe{inst: want}

	inst, ready, err := WaitForReady(context.Background(), probe, time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForReady failed: %v", err)
	}
	if !ready || inst.Address != want.Address {
		t.Fatalf("unexpected result: ready=%v inst=%+v", ready, inst)
	}
}

func TestWaitForReadyCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ready, err := WaitForReady(ctx, &fakeProbe{readyAfter: -1}, time.Minute, 5*time.Millisecond)
	if ready {
		t.Fatal("expected cancellation, got ready")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
