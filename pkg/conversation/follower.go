package conversation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dogmatiq/linger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cline-tools/clinekit/pkg/config"
	"github.com/cline-tools/clinekit/pkg/coreclient"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

// Options configures a Follower.
type Options struct {
	// Interactive keeps the session alive after completion and enables
	// the operator input loop.
	Interactive bool

	// Mode switches the instance to plan or act before following.
	// Empty leaves the mode alone.
	Mode string

	// PollInterval is the snapshot fetch tick. Zero means the default.
	PollInterval time.Duration

	// HistoryLimit caps replayed history. Zero means the default.
	HistoryLimit int

	// Input is the operator input stream. Nil means os.Stdin.
	Input io.Reader
}

// Result reports how a follow session ended. Cancellation is a normal
// terminal state, distinct from observing a completion event.
type Result struct {
	Completed bool
	Cancelled bool
}

// Follower drives one conversation session: a state-poll loop, an
// optional approval loop, and an optional interactive input loop, all
// sharing one Coordinator. The loops race on independently-fetched
// snapshots; the dedup set is the only strict exclusivity guarantee
// (at-most-once display, not at-most-once RPC).
type Follower struct {
	svc     Service
	coord   *Coordinator
	proc    *Processor
	display *Printer
	gate    *Gate
	opts    Options

	mu        sync.Mutex
	mode      string
	completed bool

	sessionID string
	log       interface {
		Debugw(msg string, kv ...interface{})
		Warnw(msg string, kv ...interface{})
	}
}

// New creates a Follower over the given service.
func New(svc Service, opts Options) *Follower {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = config.DefaultHistoryLimit
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	coord := NewCoordinator()
	display := NewPrinter(os.Stdout)
	sessionID := uuid.NewString()

	return &Follower{
		svc:       svc,
		coord:     coord,
		proc:      NewProcessor(coord, display),
		display:   display,
		opts:      opts,
		sessionID: sessionID,
		log:       clinekitlog.With("session", sessionID),
	}
}

// Coordinator exposes the session's coordinator so collaborating
// components (for example a prompter) can share its input gate.
func (f *Follower) Coordinator() *Coordinator {
	return f.coord
}

// SetDisplay replaces the output writer. Must be called before Run.
func (f *Follower) SetDisplay(out io.Writer) {
	f.display = NewPrinter(out)
	f.proc = NewProcessor(f.coord, f.display)
}

// SetGate installs an approval gate; nil disables the approval loop.
// Must be called before Run.
func (f *Follower) SetGate(gate *Gate) {
	f.gate = gate
}

// Mode returns the instance mode as of the last snapshot.
func (f *Follower) Mode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Run follows the conversation until completion (non-interactive),
// cancellation, or an unrecoverable setup failure. Transient RPC
// errors inside the loops are logged and retried on the next tick.
func (f *Follower) Run(ctx context.Context) (Result, error) {
	if f.opts.Mode != "" {
		if err := f.svc.TogglePlanActMode(ctx, f.opts.Mode); err != nil {
			f.log.Warnw("failed to set mode", "mode", f.opts.Mode, "error", err)
		}
	}

	total := f.loadHistory(ctx)
	f.coord.SetTurnStart(total)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return f.stateLoop(gctx, cancel)
	})

	if f.gate != nil {
		g.Go(func() error {
			return f.approvalLoop(gctx)
		})
	}

	if f.opts.Interactive {
		g.Go(func() error {
			return f.inputLoop(gctx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return Result{}, err
	}

	f.mu.Lock()
	completed := f.completed
	f.mu.Unlock()

	return Result{
		Completed: completed,
		Cancelled: ctx.Err() != nil && !completed,
	}, nil
}

// loadHistory replays recent complete messages and returns the total
// message count, which becomes the first turn boundary. Failure here
// is not fatal; the session just starts without history.
func (f *Follower) loadHistory(ctx context.Context) int {
	snap, err := f.svc.GetLatestState(ctx)
	if err != nil {
		f.log.Warnw("failed to load conversation history", "error", err)
		return 0
	}

	total := len(snap.Messages)
	if total == 0 {
		return 0
	}
	f.trackMode(snap)

	start := total - f.opts.HistoryLimit
	if start < 0 {
		start = 0
	}
	if start > 0 {
		f.display.Banner(historyBanner(total-start, total))
	} else {
		f.display.Banner(historyBanner(total, total))
	}

	for i := start; i < total; i++ {
		if !snap.Messages[i].Partial {
			f.display.Render(snap.Messages[i], i)
		}
	}
	return total
}

// stateLoop fetches a snapshot immediately and then every poll tick,
// draining each through the processor. In non-interactive mode an
// observed completion ends the session.
func (f *Follower) stateLoop(ctx context.Context, cancel context.CancelFunc) error {
	for {
		snap, err := f.svc.GetLatestState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warnw("state fetch failed, retrying next tick", "error", err)
		} else {
			f.trackMode(snap)
			if f.proc.Drain(snap) {
				f.mu.Lock()
				f.completed = true
				f.mu.Unlock()
				if !f.opts.Interactive {
					cancel()
					return nil
				}
			}
		}

		if err := linger.Sleep(ctx, f.opts.PollInterval); err != nil {
			return nil
		}
	}
}

// approvalLoop runs the gate once per tick. Gate errors are transient
// by construction and retried on the next tick.
func (f *Follower) approvalLoop(ctx context.Context) error {
	for {
		if err := f.gate.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warnw("approval pass failed, retrying next tick", "error", err)
		}
		if err := linger.Sleep(ctx, f.opts.PollInterval); err != nil {
			return nil
		}
	}
}

// inputLoop forwards operator lines to the core. The stdin read blocks
// in its own goroutine: terminal reads are uninterruptible, so the
// reader may outlive the session, but the loop itself observes
// cancellation between lines.
func (f *Follower) inputLoop(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f.opts.Input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			f.handleInput(ctx, line)
		}
	}
}

func (f *Follower) handleInput(ctx context.Context, line string) {
	text := strings.TrimSpace(line)
	if text == "" {
		return
	}

	if mode, rest, ok := modeCommand(text); ok {
		if err := f.svc.TogglePlanActMode(ctx, mode); err != nil {
			f.log.Warnw("failed to toggle mode", "mode", mode, "error", err)
			return
		}
		f.display.Notice("mode set to " + mode)
		if rest == "" {
			return
		}
		// Let the mode switch land before the message arrives.
		if err := linger.Sleep(ctx, f.opts.PollInterval); err != nil {
			return
		}
		f.sendMessage(ctx, rest)
		return
	}

	if text == "/cancel" {
		if err := f.svc.CancelTask(ctx); err != nil {
			f.log.Warnw("failed to cancel task", "error", err)
		}
		return
	}

	f.sendMessage(ctx, text)
}

// modeCommand parses "/plan" or "/act", optionally followed by a
// message to send once the mode has switched.
func modeCommand(text string) (mode, rest string, ok bool) {
	for _, m := range []string{coreclient.ModePlan, coreclient.ModeAct} {
		prefix := "/" + m
		if text == prefix {
			return m, "", true
		}
		if strings.HasPrefix(text, prefix+" ") {
			return m, strings.TrimSpace(text[len(prefix):]), true
		}
	}
	return "", "", false
}

func (f *Follower) sendMessage(ctx context.Context, text string) {
	ok, err := f.sendEnabled(ctx)
	if err != nil {
		f.log.Warnw("failed to check send gate", "error", err)
		return
	}
	if !ok {
		f.display.Notice("cannot send right now, agent is busy")
		return
	}

	if err := f.svc.SendResponse(ctx, coreclient.ResponseMessage, text, nil, nil); err != nil {
		f.log.Warnw("failed to send message", "error", err)
	}
}

// sendEnabled reports whether the operator may send a message, judged
// from the trailing message of a fresh snapshot: sendable on a
// complete ask (except streaming command output), on a partial ask
// only for error subtypes, and never while a request is in flight or
// right after completion.
func (f *Follower) sendEnabled(ctx context.Context) (bool, error) {
	snap, err := f.svc.GetLatestState(ctx)
	if err != nil {
		return false, err
	}
	if len(snap.Messages) == 0 {
		return true, nil
	}

	last := snap.Messages[len(snap.Messages)-1]

	if last.Partial {
		if last.Type == "ask" &&
			last.Ask != coreclient.AskAPIReqFailed &&
			last.Ask != coreclient.AskMistakeLimitReached {
			return false, nil
		}
	}

	if last.Type == "ask" {
		return last.Ask != coreclient.AskCommandOutput, nil
	}

	if last.Type == "say" &&
		(last.Say == coreclient.SayAPIReqStarted || last.Say == coreclient.SayCompletionResult) {
		return false, nil
	}

	return false, nil
}

func (f *Follower) trackMode(snap *coreclient.Snapshot) {
	if snap.Mode == "" {
		return
	}
	f.mu.Lock()
	f.mode = snap.Mode
	f.mu.Unlock()
}

func historyBanner(shown, total int) string {
	if shown == total {
		return fmt.Sprintf("conversation history (%d messages)", total)
	}
	return fmt.Sprintf("conversation history (%d of %d messages)", shown, total)
}
