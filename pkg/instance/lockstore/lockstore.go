// Package lockstore discovers a running core instance by polling the
// shared SQLite lock database.
//
// The core process does not notify its supervisor when it becomes
// reachable; the only readiness signal is a row it writes into
// <config-dir>/data/locks.db once its server is listening. This probe
// reads that store and nothing else: it never writes, and it treats a
// missing file, a partially written database, or an empty result set
// as "not ready yet" rather than failure.
package lockstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cline-tools/clinekit/pkg/instance"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

const lockQuery = `
	SELECT held_by, lock_target, locked_at
	FROM locks
	WHERE held_by = ? AND lock_type = 'instance'
`

// Probe polls the lock database for an instance lock held by the
// expected core port. It implements instance.ReadinessProbe.
type Probe struct {
	dbPath string
	port   int
}

// New creates a Probe over <configDir>/data/locks.db.
func New(configDir string, corePort int) *Probe {
	return &Probe{
		dbPath: filepath.Join(configDir, "data", "locks.db"),
		port:   corePort,
	}
}

// DBPath returns the lock database path the probe watches.
func (p *Probe) DBPath() string {
	return p.dbPath
}

// Poll performs one readiness check. The core may register its address
// under either host spelling, so both localhost:<port> and
// 127.0.0.1:<port> are queried. Transient SQLite errors (locked or
// half-written database) are logged at debug and reported as not
// ready; the caller's tick loop retries.
func (p *Probe) Poll(ctx context.Context) (*instance.Instance, bool, error) {
	if _, err := os.Stat(p.dbPath); err != nil {
		clinekitlog.Debug("lock database not present yet", "path", p.dbPath)
		return nil, false, nil
	}

	// Read-only so the probe can never create or mutate the store.
	db, err := sql.Open("sqlite3", "file:"+p.dbPath+"?mode=ro")
	if err != nil {
		clinekitlog.Debug("failed to open lock database", "path", p.dbPath, "error", err)
		return nil, false, nil
	}
	defer db.Close()

	for _, heldBy := range p.heldByVariants() {
		inst, err := p.queryLock(ctx, db, heldBy)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			clinekitlog.Debug("lock query failed, will retry", "held_by", heldBy, "error", err)
			continue
		}
		if inst != nil {
			return inst, true, nil
		}
	}
	return nil, false, nil
}

func (p *Probe) heldByVariants() []string {
	return []string{
		fmt.Sprintf("localhost:%d", p.port),
		fmt.Sprintf("127.0.0.1:%d", p.port),
	}
}

func (p *Probe) queryLock(ctx context.Context, db *sql.DB, heldBy string) (*instance.Instance, error) {
	var inst instance.Instance
	err := db.QueryRowContext(ctx, lockQuery, heldBy).Scan(
		&inst.Address,
		&inst.LockTarget,
		&inst.LockedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
