package instance

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeProbe reports ready after a fixed number of polls. A threshold
// of -1 means never ready.
type fakeProbe struct {
	readyAfter int
	polls      int
	inst       *Instance
}

func (f *fakeProbe) Poll(ctx context.Context) (*Instance, bool, error) {
	f.polls++
	if f.readyAfter >= 0 && f.polls > f.readyAfter {
		return f.inst, true, nil
	}
	return nil, false, nil
}

func testConfig(probe ReadinessProbe) Config {
	return Config{
		HostPort:     40001,
		CorePort:     40002,
		Probe:        probe,
		LockTimeout:  2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		hostArgv:     []string{"sleep", "300"},
		coreArgv:     []string{"sleep", "300"},
	}
}

func TestSupervisorStartDiscoversInstance(t *testing.T) {
	want := &Instance{Address: "localhost:40002", LockTarget: "instance", LockedAt: "2026-08-27T00:00:00Z"}
	probe := &fakeProbe{readyAfter: 2, inst: want}

	sup, err := New(testConfig(probe))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sup.Stop()

	inst, err := sup.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Address != want.Address {
		t.Errorf("unexpected address: %s", inst.Address)
	}
	if !sup.IsRunning() {
		t.Error("IsRunning false after successful start")
	}
	if probe.polls < 3 {
		t.Errorf("probe polled %d times, want at least 3", probe.polls)
	}
}

func TestSupervisorStartTimesOut(t *testing.T) {
	cfg := testConfig(&fakeProbe{readyAfter: -1})
	cfg.LockTimeout = 50 * time.Millisecond

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = sup.Start(context.Background())
	if !errors.Is(err, ErrLockNotFound) {
		t.Fatalf("expected ErrLockNotFound, got %v", err)
	}
	if sup.IsRunning() {
		t.Error("processes still running after timed-out start")
	}
}

func TestSupervisorStopIdempotent(t *testing.T) {
	sup, err := New(testConfig(&fakeProbe{readyAfter: 0, inst: &Instance{Address: "localhost:40002"}}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := sup.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if sup.IsRunning() {
		t.Error("IsRunning true after Stop")
	}
	if err := sup.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestSupervisorStartTwiceFails(t *testing.T) {
	sup, err := New(testConfig(&fakeProbe{readyAfter: 0, inst: &Instance{Address: "localhost:40002"}}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sup.Stop()

	if _, err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := sup.Start(context.Background()); err == nil {
		t.Fatal("second Start did not fail")
	}
}

func TestSupervisorStartCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sup, err := New(testConfig(&fakeProbe{readyAfter: -1}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := sup.Start(ctx); err == nil {
		t.Fatal("Start did not fail on cancelled context")
	}
	if sup.IsRunning() {
		t.Error("processes still running after cancelled start")
	}
}

func TestNewRequiresProbe(t *testing.T) {
	if _, err := New(Config{HostPort: 1, CorePort: 2}); err == nil {
		t.Fatal("New accepted config without probe")
	}
}
