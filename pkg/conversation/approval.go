package conversation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dogmatiq/linger"

	"github.com/cline-tools/clinekit/pkg/coreclient"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

// Action is an auto-approval category.
type Action string

const (
	ActionReadFiles          Action = "read_files"
	ActionEditFiles          Action = "edit_files"
	ActionExecuteAllCommands Action = "execute_all_commands"
	ActionUseBrowser         Action = "use_browser"
	ActionUseMCP             Action = "use_mcp"
)

// ParseAction validates a string as an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionReadFiles, ActionEditFiles, ActionExecuteAllCommands, ActionUseBrowser, ActionUseMCP:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action category %q", s)
}

// Decision is the outcome of an approval policy.
type Decision struct {
	Approved bool
	Feedback string
}

// Policy resolves an approval request for a classified action.
type Policy interface {
	Decide(ctx context.Context, action Action) (Decision, error)
}

// toolPayload is the decoded body of a tool ask.
type toolPayload struct {
	Tool string `json:"tool"`
}

// ClassifyAsk maps an ask message to its auto-approval category. Tool
// asks carry a JSON payload naming the tool; a tool identifier we do
// not recognize (or a payload that does not decode) is assigned
// unknownTool, which is an explicit configuration choice rather than a
// hidden default. Returns false for ask subtypes that do not request
// approval.
func ClassifyAsk(msg coreclient.Message, unknownTool Action) (Action, bool) {
	switch msg.Ask {
	case coreclient.AskTool:
		var payload toolPayload
		if err := json.Unmarshal([]byte(msg.Text), &payload); err != nil || payload.Tool == "" {
			clinekitlog.Debug("tool ask payload not decodable, using configured default", "default", unknownTool)
			return unknownTool, true
		}
		switch payload.Tool {
		case "readFile":
			return ActionReadFiles, true
		case "editedExistingFile", "newFileCreated":
			return ActionEditFiles, true
		default:
			clinekitlog.Debug("unrecognized tool identifier, using configured default", "tool", payload.Tool, "default", unknownTool)
			return unknownTool, true
		}
	case coreclient.AskCommand:
		return ActionExecuteAllCommands, true
	case coreclient.AskBrowserActionLaunch:
		return ActionUseBrowser, true
	case coreclient.AskMCPServerRequest:
		return ActionUseMCP, true
	}
	return "", false
}

// pendingAsk returns the snapshot's trailing approval request, if any.
// Only a complete (non-partial) ask of an approvable subtype counts.
func pendingAsk(snap *coreclient.Snapshot) (coreclient.Message, bool) {
	if len(snap.Messages) == 0 {
		return coreclient.Message{}, false
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Type != "ask" || last.Partial {
		return coreclient.Message{}, false
	}
	switch last.Ask {
	case coreclient.AskTool, coreclient.AskCommand, coreclient.AskBrowserActionLaunch, coreclient.AskMCPServerRequest:
		return last, true
	}
	return coreclient.Message{}, false
}

// StaticPolicy approves a fixed allow-list of action categories and
// denies everything else with a fixed reason.
type StaticPolicy struct {
	allow map[Action]struct{}
}

// NewStaticPolicy creates a StaticPolicy from the allowed categories.
func NewStaticPolicy(allow []Action) *StaticPolicy {
	set := make(map[Action]struct{}, len(allow))
	for _, a := range allow {
		set[a] = struct{}{}
	}
	return &StaticPolicy{allow: set}
}

// Decide implements Policy.
func (p *StaticPolicy) Decide(_ context.Context, action Action) (Decision, error) {
	if _, ok := p.allow[action]; ok {
		return Decision{Approved: true}, nil
	}
	return Decision{Approved: false, Feedback: "action not auto-approved"}, nil
}

// Prompter asks the operator for a decision. The second return value
// reports whether the operator asked for the choice to persist as an
// auto-approval setting.
type Prompter interface {
	Confirm(ctx context.Context, action Action) (Decision, bool, error)
}

// TerminalPrompter blocks on a plain terminal prompt. The read itself
// is uninterruptible; the surrounding input-allowed flag lets the
// presentation layer know a prompt is active.
type TerminalPrompter struct {
	in    *bufio.Reader
	out   io.Writer
	coord *Coordinator
}

// NewTerminalPrompter creates a TerminalPrompter.
func NewTerminalPrompter(in io.Reader, out io.Writer, coord *Coordinator) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out, coord: coord}
}

// Confirm implements Prompter. Answers: y approves once, a approves
// and persists, anything else denies.
func (p *TerminalPrompter) Confirm(_ context.Context, action Action) (Decision, bool, error) {
	p.coord.SetInputAllowed(true)
	defer p.coord.SetInputAllowed(false)

	fmt.Fprintf(p.out, "approve %s? [y/N/a(lways)] ", action)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return Decision{}, false, fmt.Errorf("failed to read approval answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Decision{Approved: true}, false, nil
	case "a", "always":
		return Decision{Approved: true}, true, nil
	default:
		return Decision{Approved: false, Feedback: "denied by operator"}, false, nil
	}
}

// SettingsPolicy consults the instance's own auto-approval settings
// and falls back to prompting the operator when the category is not
// enabled. With persist set, an "always" answer is written back so
// future requests of that category skip the prompt.
type SettingsPolicy struct {
	source  StateSource
	updater SettingsUpdater
	prompt  Prompter
	persist bool
}

// NewSettingsPolicy creates a SettingsPolicy.
func NewSettingsPolicy(source StateSource, updater SettingsUpdater, prompt Prompter, persist bool) *SettingsPolicy {
	return &SettingsPolicy{source: source, updater: updater, prompt: prompt, persist: persist}
}

// Decide implements Policy.
func (p *SettingsPolicy) Decide(ctx context.Context, action Action) (Decision, error) {
	snap, err := p.source.GetLatestState(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read auto-approval settings: %w", err)
	}

	if actionEnabled(snap.AutoApproval.Actions, action) {
		return Decision{Approved: true}, nil
	}

	dec, always, err := p.prompt.Confirm(ctx, action)
	if err != nil {
		return Decision{}, err
	}
	if always && p.persist {
		if err := p.updater.UpdateAutoApproval(ctx, string(action)); err != nil {
			clinekitlog.Warn("failed to persist auto-approval setting", "action", action, "error", err)
		}
	}
	return dec, nil
}

func actionEnabled(actions coreclient.AutoApprovalActions, action Action) bool {
	switch action {
	case ActionReadFiles:
		return actions.ReadFiles
	case ActionEditFiles:
		return actions.EditFiles
	case ActionExecuteAllCommands:
		return actions.ExecuteAllCommands
	case ActionUseBrowser:
		return actions.UseBrowser
	case ActionUseMCP:
		return actions.UseMCP
	}
	return false
}

// Gate inspects the trailing message of each snapshot for a pending
// approval request, classifies it, resolves it through the policy, and
// releases the decision.
type Gate struct {
	source      StateSource
	responder   Responder
	policy      Policy
	unknownTool Action

	// settle is how long to pause after releasing a decision so the
	// core's state can catch up before the next snapshot fetch.
	settle time.Duration
}

// NewGate creates a Gate.
func NewGate(source StateSource, responder Responder, policy Policy, unknownTool Action) *Gate {
	return &Gate{
		source:      source,
		responder:   responder,
		policy:      policy,
		unknownTool: unknownTool,
		settle:      750 * time.Millisecond,
	}
}

// PollOnce performs one approval pass: fetch a snapshot, and if its
// trailing message is a pending approval request, decide and respond.
// Errors are returned for the caller's poll loop to log and swallow;
// a single failed pass must not end the session.
func (g *Gate) PollOnce(ctx context.Context) error {
	snap, err := g.source.GetLatestState(ctx)
	if err != nil {
		return err
	}

	msg, ok := pendingAsk(snap)
	if !ok {
		return nil
	}

	action, ok := ClassifyAsk(msg, g.unknownTool)
	if !ok {
		return nil
	}

	dec, err := g.policy.Decide(ctx, action)
	if err != nil {
		return err
	}

	responseType := coreclient.ResponseNo
	if dec.Approved {
		responseType = coreclient.ResponseYes
		clinekitlog.Info("approved action", "action", action)
	} else {
		clinekitlog.Info("denied action", "action", action, "feedback", dec.Feedback)
	}

	if err := g.responder.SendResponse(ctx, responseType, dec.Feedback, nil, nil); err != nil {
		return err
	}

	return linger.Sleep(ctx, g.settle)
}
