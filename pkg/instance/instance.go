// Package instance launches and supervises a Cline core/host process
// pair and discovers the running instance's address through a
// readiness probe.
package instance

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/linger"

	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

// ErrLockNotFound is returned by Supervisor.Start when no instance
// lock appears within the configured timeout.
var ErrLockNotFound = errors.New("instance lock not found")

// Instance is the discovered network identity of a running core
// process. It is produced once and never mutated.
type Instance struct {
	// Address is the held_by value from the lock store, e.g.
	// "localhost:51234".
	Address string

	// LockTarget is the resource the instance lock refers to.
	LockTarget string

	// LockedAt is the lock acquisition timestamp as recorded by the
	// core process.
	LockedAt string
}

// ReadinessProbe performs a single readiness check. Implementations
// must be cheap enough to call every poll tick and must report
// transient failures as "not ready" rather than errors; a returned
// error is logged and the poll loop keeps ticking.
type ReadinessProbe interface {
	Poll(ctx context.Context) (inst *Instance, ready bool, err error)
}

// WaitForReady drives a ReadinessProbe until it reports ready, the
// timeout elapses, or ctx is cancelled. It returns (nil, false, nil)
// on timeout: the caller decides whether that is fatal. The probe is
// tried immediately and then once per interval, so a timeout result
// arrives no earlier than timeout and no later than timeout plus one
// interval.
func WaitForReady(ctx context.Context, probe ReadinessProbe, timeout, interval time.Duration) (*Instance, bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		inst, ready, err := probe.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			clinekitlog.Debug("readiness probe error, retrying", "error", err)
		}
		if ready {
			return inst, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		if err := linger.Sleep(ctx, interval); err != nil {
			return nil, false, err
		}
	}
}
