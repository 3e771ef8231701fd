package lockstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cline-tools/clinekit/pkg/instance"
)

func createLockDB(t *testing.T, configDir string) *sql.DB {
	t.Helper()
	dataDir := filepath.Join(configDir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "locks.db"))
	if err != nil {
		t.Fatalf("failed to open lock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE locks (
		held_by TEXT,
		lock_target TEXT,
		lock_type TEXT,
		locked_at TEXT
	)`)
	if err != nil {
		t.Fatalf("failed to create locks table: %v", err)
	}
	return db
}

func insertLock(t *testing.T, db *sql.DB, heldBy, lockType string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO locks (held_by, lock_target, lock_type, locked_at) VALUES (?, ?, ?, ?)`,
		heldBy, "task-1", lockType, "2026-08-27T12:00:00Z",
	)
	if err != nil {
		t.Fatalf("failed to insert lock: %v", err)
	}
}

func TestPollMissingDatabaseNotReady(t *testing.T) {
	probe := New(t.TempDir(), 51000)

	inst, ready, err := probe.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if ready || inst != nil {
		t.Fatal("missing database reported ready")
	}
}

func TestPollEmptyTableNotReady(t *testing.T) {
	dir := t.TempDir()
	createLockDB(t, dir)
	probe := New(dir, 51000)

	_, ready, err := probe.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if ready {
		t.Fatal("empty table reported ready")
	}
}

func TestPollFindsLocalhostLock(t *testing.T) {
	dir := t.TempDir()
	db := createLockDB(t, dir)
	insertLock(t, db, "localhost:51000", "instance")

	probe := New(dir, 51000)
	inst, ready, err := probe.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if !ready {
		t.Fatal("matching lock not found")
	}
	if inst.Address != "localhost:51000" {
		t.Errorf("unexpected address: %s", inst.Address)
	}
	if inst.LockTarget != "task-1" {
		t.Errorf("unexpected lock target: %s", inst.LockTarget)
	}
	if inst.LockedAt != "2026-08-27T12:00:00Z" {
		t.Errorf("unexpected locked_at: %s", inst.LockedAt)
	}
}

func TestPollFindsLoopbackSpelling(t *testing.T) {
	dir := t.TempDir()
	db := createLockDB(t, dir)
	insertLock(t, db, "127.0.0.1:51000", "instance")

	probe := New(dir, 51000)
	inst, ready, err := probe.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if !ready {
		t.Fatal("matching loopback lock not found")
	}
	if inst.Address != "127.0.0.1:51000" {
		t.Errorf("unexpected address: %s", inst.Address)
	}
}

func TestPollIgnoresNonMatchingRows(t *testing.T) {
	dir := t.TempDir()
	db := createLockDB(t, dir)
	insertLock(t, db, "localhost:59999", "instance") // wrong port
	insertLock(t, db, "localhost:51000", "file")     // wrong lock type

	probe := New(dir, 51000)
	_, ready, err := probe.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if ready {
		t.Fatal("non-matching rows reported ready")
	}
}

func TestPollCorruptDatabaseNotReady(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "locks.db"), []byte("not a database"), 0644); err != nil {
		t.Fatalf("failed to write garbage: %v", err)
	}

	probe := New(dir, 51000)
	_, ready, err := probe.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll should swallow corruption, got: %v", err)
	}
	if ready {
		t.Fatal("corrupt database reported ready")
	}
}

func TestWaitForReadyPicksUpLateRow(t *testing.T) {
	dir := t.TempDir()
	db := createLockDB(t, dir)
	probe := New(dir, 51000)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = db.Exec(
			`INSERT INTO locks (held_by, lock_target, lock_type, locked_at) VALUES (?, ?, ?, ?)`,
			"localhost:51000", "task-1", "instance", "2026-08-27T12:00:00Z",
		)
	}()

	inst, ready, err := instance.WaitForReady(context.Background(), probe, 5*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForReady failed: %v", err)
	}
	if !ready {
		t.Fatal("late lock row never discovered")
	}
	if inst.Address != "localhost:51000" {
		t.Errorf("unexpected address: %s", inst.Address)
	}
}
