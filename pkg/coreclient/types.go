package coreclient

// Message is one entry in the conversation log. The sequence is
// append-only; each snapshot carries the entire log.
type Message struct {
	// Type is "say" (narrative/status) or "ask" (requires a response).
	Type string `json:"type"`

	// Ask is the ask subtype, set when Type is "ask".
	Ask string `json:"ask,omitempty"`

	// Say is the say subtype, set when Type is "say".
	Say string `json:"say,omitempty"`

	// Text is the message body. For tool asks it carries a JSON
	// payload describing the requested operation.
	Text string `json:"text,omitempty"`

	// Partial marks a message still being streamed.
	Partial bool `json:"partial,omitempty"`

	// Timestamp is the message creation time in Unix milliseconds.
	// Zero when the core did not record one.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Say subtypes the follower cares about.
const (
	SayText             = "text"
	SayCompletionResult = "completion_result"
	SayUserFeedback     = "user_feedback"
	SayAPIReqStarted    = "api_req_started"
)

// Ask subtypes. The first four request an approval decision; the last
// three gate whether the operator may send input.
const (
	AskTool                = "tool"
	AskCommand             = "command"
	AskBrowserActionLaunch = "browser_action_launch"
	AskMCPServerRequest    = "mcp_server_request"

	AskCommandOutput       = "command_output"
	AskAPIReqFailed        = "api_req_failed"
	AskMistakeLimitReached = "mistake_limit_reached"
)

// AutoApprovalActions mirrors the core's per-category auto-approval
// switches.
type AutoApprovalActions struct {
	ReadFiles          bool `json:"read_files"`
	EditFiles          bool `json:"edit_files"`
	ExecuteAllCommands bool `json:"execute_all_commands"`
	UseBrowser         bool `json:"use_browser"`
	UseMCP             bool `json:"use_mcp"`
}

// AutoApprovalSettings is the auto-approval section of the snapshot.
type AutoApprovalSettings struct {
	Actions AutoApprovalActions `json:"actions"`
}

// Snapshot is the full conversation/state payload returned by
// GetLatestState. There is no incremental fetch: every poll receives
// the whole thing.
type Snapshot struct {
	Messages     []Message            `json:"clineMessages"`
	Mode         string               `json:"mode"`
	AutoApproval AutoApprovalSettings `json:"autoApprovalSettings"`
}

// ResponseType discriminates an askResponse call.
type ResponseType string

const (
	// ResponseMessage carries a plain operator message.
	ResponseMessage ResponseType = "messageResponse"
	// ResponseYes approves a pending ask.
	ResponseYes ResponseType = "yesButtonClicked"
	// ResponseNo denies a pending ask.
	ResponseNo ResponseType = "noButtonClicked"
)

// Plan/act modes accepted by TogglePlanActMode.
const (
	ModePlan = "plan"
	ModeAct  = "act"
)
