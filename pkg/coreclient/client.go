// Package coreclient is a JSON-RPC 2.0 client for the core service's
// request/response surface.
package coreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client talks to a single core instance over HTTP POST.
type Client struct {
	rpcURL    string
	client    *http.Client
	requestID atomic.Int64
}

// New creates a Client for the given instance address. Accepts a bare
// "host:port" (as read from the lock store) or a full URL.
func New(address string) *Client {
	rpcURL := address
	if !strings.Contains(rpcURL, "://") {
		rpcURL = "http://" + rpcURL
	}
	rpcURL = strings.TrimSuffix(rpcURL, "/")
	if !strings.HasSuffix(rpcURL, "/rpc") {
		rpcURL += "/rpc"
	}
	return &Client{
		rpcURL: rpcURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetTimeout updates the per-call HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.client.Timeout = timeout
}

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call makes one JSON-RPC call.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	requestID := int(c.requestID.Add(1))

	paramsJSON := json.RawMessage("null")
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	bodyBytes, err := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  method,
		Params:  paramsJSON,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error (code %d): %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// GetLatestState fetches the full conversation/state snapshot. The
// service returns its state as an embedded JSON document, which is
// decoded here so callers only ever see the typed Snapshot.
func (c *Client) GetLatestState(ctx context.Context) (*Snapshot, error) {
	var resp struct {
		StateJSON string `json:"stateJson"`
	}
	if err := c.call(ctx, "state/getLatestState", nil, &resp); err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(resp.StateJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode state payload: %w", err)
	}
	return &snap, nil
}

// SendResponse answers the current ask, or sends a plain operator
// message when responseType is ResponseMessage.
func (c *Client) SendResponse(ctx context.Context, responseType ResponseType, text string, images, files []string) error {
	params := struct {
		ResponseType ResponseType `json:"responseType"`
		Text         string       `json:"text,omitempty"`
		Images       []string     `json:"images,omitempty"`
		Files        []string     `json:"files,omitempty"`
	}{responseType, text, images, files}
	return c.call(ctx, "task/askResponse", params, nil)
}

// NewTask creates a task from the given text and returns its ID.
func (c *Client) NewTask(ctx context.Context, text string) (string, error) {
	params := struct {
		Text string `json:"text"`
	}{text}
	var resp struct {
		TaskID string `json:"taskId"`
	}
	if err := c.call(ctx, "task/newTask", params, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// CancelTask cancels the current task.
func (c *Client) CancelTask(ctx context.Context) error {
	return c.call(ctx, "task/cancelTask", nil, nil)
}

// TogglePlanActMode switches the instance between plan and act modes.
func (c *Client) TogglePlanActMode(ctx context.Context, mode string) error {
	if mode != ModePlan && mode != ModeAct {
		return fmt.Errorf("invalid mode %q", mode)
	}
	params := struct {
		Mode string `json:"mode"`
	}{mode}
	return c.call(ctx, "state/togglePlanActMode", params, nil)
}

// UpdateAutoApproval enables auto-approval for one action category.
func (c *Client) UpdateAutoApproval(ctx context.Context, action string) error {
	actions := map[string]bool{action: true}
	params := struct {
		Settings struct {
			AutoApprovalSettings struct {
				Actions map[string]bool `json:"actions"`
			} `json:"autoApprovalSettings"`
		} `json:"settings"`
	}{}
	params.Settings.AutoApprovalSettings.Actions = actions
	return c.call(ctx, "state/updateTaskSettings", params, nil)
}
