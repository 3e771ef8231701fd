package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/cline-tools/clinekit/pkg/config"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
	"github.com/cline-tools/clinekit/pkg/ports"
)

// Config describes a supervised core/host pair.
type Config struct {
	// HostPort is the port the bridge/host process binds.
	HostPort int

	// CorePort is the port the core process binds; the instance lock's
	// held_by value is derived from it.
	CorePort int

	// Dir is the working directory the host process runs in, typically
	// the workspace the agent operates on.
	Dir string

	// ConfigDir is the shared configuration directory. The core
	// process keeps its lock database under <ConfigDir>/data.
	ConfigDir string

	// ClinePath optionally pins the core entry point; see
	// ResolveCorePath for the automatic chain.
	ClinePath string

	// Probe discovers the running instance. Required.
	Probe ReadinessProbe

	// LockTimeout bounds the readiness wait. Zero means the default.
	LockTimeout time.Duration

	// PollInterval is the readiness poll tick. Zero means the default.
	PollInterval time.Duration

	// hostArgv and coreArgv replace the launch command lines entirely
	// when set. Test seams.
	hostArgv []string
	coreArgv []string
}

// Supervisor owns the two child process handles. It is the only thing
// that mutates them: Start spawns both, Stop terminates and waits for
// both. There is no watchdog; IsRunning is a point-in-time check.
type Supervisor struct {
	cfg Config

	mu   sync.Mutex
	host *proc
	core *proc
}

// New creates a Supervisor for the given configuration.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Probe == nil {
		return nil, errors.New("readiness probe is required")
	}
	if cfg.HostPort == 0 || cfg.CorePort == 0 {
		return nil, errors.New("both ports are required")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = config.DefaultLockTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	return &Supervisor{cfg: cfg}, nil
}

// NewWithFreePorts allocates an ephemeral port pair and fills it into
// cfg before constructing the Supervisor. The caller still provides
// the probe, which usually needs the core port; use the returned
// config's CorePort.
func NewWithFreePorts(cfg Config, makeProbe func(corePort int) ReadinessProbe) (*Supervisor, error) {
	hostPort, corePort, err := ports.FreePair()
	if err != nil {
		return nil, err
	}
	cfg.HostPort = hostPort
	cfg.CorePort = corePort
	if makeProbe != nil {
		cfg.Probe = makeProbe(corePort)
	}
	return New(cfg)
}

// Start spawns the host process, resolves and spawns the core process,
// and blocks until the readiness probe reports the instance or the
// lock timeout elapses. On timeout both processes are stopped and the
// returned error wraps ErrLockNotFound.
func (s *Supervisor) Start(ctx context.Context) (*Instance, error) {
	s.mu.Lock()
	if s.host != nil || s.core != nil {
		s.mu.Unlock()
		return nil, errors.New("supervisor already started")
	}

	host, err := s.startHost()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.host = host

	core, err := s.startCore()
	if err != nil {
		s.host = nil
		s.mu.Unlock()
		_ = host.terminate()
		return nil, err
	}
	s.core = core
	s.mu.Unlock()

	clinekitlog.Info("process pair started",
		"host_port", s.cfg.HostPort,
		"core_port", s.cfg.CorePort,
		"workdir", s.cfg.Dir,
	)

	inst, ready, err := WaitForReady(ctx, s.cfg.Probe, s.cfg.LockTimeout, s.cfg.PollInterval)
	if err != nil {
		stopErr := s.Stop()
		return nil, multierr.Append(err, stopErr)
	}
	if !ready {
		stopErr := s.Stop()
		return nil, multierr.Append(
			fmt.Errorf("no instance lock for port %d within %s: %w", s.cfg.CorePort, s.cfg.LockTimeout, ErrLockNotFound),
			stopErr,
		)
	}

	clinekitlog.Info("instance discovered", "address", inst.Address, "locked_at", inst.LockedAt)
	return inst, nil
}

// Stop terminates both processes and waits for each to exit. Order
// does not matter. Stop is idempotent: calling it when already stopped
// is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	host, core := s.host, s.core
	s.host, s.core = nil, nil
	s.mu.Unlock()

	var err error
	if core != nil {
		err = multierr.Append(err, core.terminate())
	}
	if host != nil {
		err = multierr.Append(err, host.terminate())
	}
	return err
}

// IsRunning reports whether both processes exist and neither has
// exited. This is a point-in-time check, not a monitored event: a
// child can die between calls without notice.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	host, core := s.host, s.core
	s.mu.Unlock()

	return host != nil && host.running() && core != nil && core.running()
}

func (s *Supervisor) startHost() (*proc, error) {
	argv := s.cfg.hostArgv
	if argv == nil {
		argv = []string{"cline-host", "--verbose", "--port", strconv.Itoa(s.cfg.HostPort)}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.Dir
	// Stdout/stderr intentionally discarded; the host is chatty and its
	// diagnostics are not ours.
	return startProc(cmd, "host")
}

func (s *Supervisor) startCore() (*proc, error) {
	argv := s.cfg.coreArgv
	var cmd *exec.Cmd

	if argv == nil {
		corePath, err := ResolveCorePath(s.cfg.ClinePath)
		if err != nil {
			return nil, err
		}
		coreDir := filepath.Dir(corePath)

		cmd = exec.Command("node", corePath,
			"--port", strconv.Itoa(s.cfg.CorePort),
			"--host-bridge-port", strconv.Itoa(s.cfg.HostPort),
			"--config", s.cfg.ConfigDir,
		)
		cmd.Dir = coreDir
		cmd.Env = coreEnv(coreDir)
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}

	return startProc(cmd, "core")
}

// coreEnv builds the core process environment from scratch: the
// caller's PATH, a NODE_PATH overlay combining the real node_modules
// with a stub directory that satisfies optional dependencies, and
// verbose gRPC tracing.
func coreEnv(coreDir string) []string {
	nodePath := filepath.Join(coreDir, "node_modules") +
		string(os.PathListSeparator) +
		filepath.Join(coreDir, "fake_node_modules")

	return []string{
		"PATH=" + os.Getenv("PATH"),
		"NODE_PATH=" + nodePath,
		"GRPC_TRACE=all",
		"GRPC_VERBOSITY=DEBUG",
		"NODE_ENV=development",
	}
}

// proc wraps a child process handle. A single goroutine owns Wait so
// exit status can be observed from both IsRunning and terminate
// without racing.
type proc struct {
	cmd  *exec.Cmd
	name string
	done chan struct{}
	err  error
}

func startProc(cmd *exec.Cmd, name string) (*proc, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s process: %w", name, err)
	}

	p := &proc{cmd: cmd, name: name, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *proc) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// terminate sends SIGTERM and blocks until the process has exited.
// The wait is uninterruptible: leaving a half-dead child behind is
// worse than blocking shutdown.
func (p *proc) terminate() error {
	if p.running() {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to signal %s process: %w", p.name, err)
		}
	}
	<-p.done

	// Exit status from a SIGTERM we sent is expected, not an error.
	var exitErr *exec.ExitError
	if p.err != nil && !errors.As(p.err, &exitErr) {
		return fmt.Errorf("failed to wait for %s process: %w", p.name, p.err)
	}
	return nil
}
