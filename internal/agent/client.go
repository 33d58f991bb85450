// Package agent implements the fleet agent: a coordinator client, a
// telemetry collector, the command execution engine and the poll loop
// that ties them together. The agent only ever makes outbound HTTP
// calls; the coordinator has no way to reach it.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gpufleet/fleet/internal/protocol"
)

// ErrUnauthorized is returned when the coordinator rejects the agent's
// credential. The poll loop reacts by re-registering once.
var ErrUnauthorized = errors.New("coordinator rejected credential")

// PendingCommand is one unit of work fetched from the coordinator.
type PendingCommand struct {
	ID   int64
	Text string
}

// Coordinator is the agent's view of the dispatch protocol.
type Coordinator interface {
	Register(ctx context.Context, agentID string) (string, error)
	SubmitTelemetry(ctx context.Context, req protocol.TelemetryRequest) error
	FetchNextCommand(ctx context.Context) (*PendingCommand, error)
	ReportOutput(ctx context.Context, commandID int64, status, output string) error
	PollCommandStatus(ctx context.Context, commandID int64) (string, error)
}

// Client talks to the coordinator over HTTP. The credential lives here
// rather than in any global state, so a re-registration swaps it for
// every subsequent call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	credential string
}

var _ Coordinator = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetCredential installs a credential loaded from disk.
func (c *Client) SetCredential(credential string) {
	c.credential = credential
}

func (c *Client) Credential() string {
	return c.credential
}

// Register obtains the credential for agentID and installs it on the
// client. Safe to call repeatedly; the coordinator returns the same
// credential every time.
func (c *Client) Register(ctx context.Context, agentID string) (string, error) {
	var resp protocol.RegisterResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/register", false,
		protocol.RegisterRequest{AgentID: agentID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Credential == "" {
		return "", fmt.Errorf("coordinator returned no credential")
	}
	c.credential = resp.Credential
	return resp.Credential, nil
}

func (c *Client) SubmitTelemetry(ctx context.Context, req protocol.TelemetryRequest) error {
	var resp protocol.AckResponse
	return c.doJSON(ctx, http.MethodPost, "/api/v1/telemetry", true, req, &resp)
}

// FetchNextCommand returns the next command to run, or nil when the
// agent's queue is empty.
func (c *Client) FetchNextCommand(ctx context.Context) (*PendingCommand, error) {
	var resp protocol.NextCommandResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/commands/next", true, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Command == nil {
		return nil, nil
	}
	return &PendingCommand{ID: resp.CommandID, Text: *resp.Command}, nil
}

func (c *Client) ReportOutput(ctx context.Context, commandID int64, status, output string) error {
	var resp protocol.AckResponse
	return c.doJSON(ctx, http.MethodPost, "/api/v1/commands/report", true,
		protocol.ReportOutputRequest{CommandID: commandID, Status: status, Output: output}, &resp)
}

// PollCommandStatus reads the coordinator-side status of a command.
// Used mid-execution to detect a stop request.
func (c *Client) PollCommandStatus(ctx context.Context, commandID int64) (string, error) {
	var resp protocol.CommandStatusResponse
	path := fmt.Sprintf("/api/v1/commands/%d/status", commandID)
	if err := c.doJSON(ctx, http.MethodGet, path, false, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, authenticated bool, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp protocol.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", method, path, errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
