// Package cli implements pilotctl, the operator command line for a running
// tradepilot server.
package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

// DecisionList is the response of the list endpoints.
type DecisionList struct {
	Decisions []domain.Decision `json:"decisions"`
	Count     int               `json:"count"`
}

// Client talks to the tradepilot HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client for baseURL. apiKey may be empty when the
// server runs without authentication.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(timeout)
	c.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

// do sends a request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("cli: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if eb, ok := resp.Error().(*errorBody); ok && eb.Error != "" {
			msg = eb.Error
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}

// Status fetches the engine status.
func (c *Client) Status(ctx context.Context) (autopilot.Status, error) {
	var st autopilot.Status
	err := c.do(ctx, resty.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Pending lists decisions awaiting approval.
func (c *Client) Pending(ctx context.Context) ([]domain.Decision, error) {
	var out DecisionList
	err := c.do(ctx, resty.MethodGet, "/api/decisions/pending", nil, &out)
	return out.Decisions, err
}

// History lists recent decisions, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]domain.Decision, error) {
	var out DecisionList
	err := c.do(ctx, resty.MethodGet, "/api/decisions?limit="+strconv.Itoa(limit), nil, &out)
	return out.Decisions, err
}

// Decision fetches one decision.
func (c *Client) Decision(ctx context.Context, id string) (domain.Decision, error) {
	var d domain.Decision
	err := c.do(ctx, resty.MethodGet, "/api/decisions/"+url.PathEscape(id), nil, &d)
	return d, err
}

// Evaluate submits an opportunity for evaluation.
func (c *Client) Evaluate(ctx context.Context, opp domain.Opportunity, analysis domain.Analysis) (domain.Decision, error) {
	var d domain.Decision
	body := map[string]any{"opportunity": opp, "analysis": analysis}
	err := c.do(ctx, resty.MethodPost, "/api/decisions/evaluate", body, &d)
	return d, err
}

// Approve approves a pending decision.
func (c *Client) Approve(ctx context.Context, id, approver string) (domain.Decision, error) {
	var d domain.Decision
	err := c.do(ctx, resty.MethodPost, "/api/decisions/"+url.PathEscape(id)+"/approve",
		map[string]string{"approver": approver}, &d)
	return d, err
}

// Reject rejects a pending decision.
func (c *Client) Reject(ctx context.Context, id, reason string) (domain.Decision, error) {
	var d domain.Decision
	err := c.do(ctx, resty.MethodPost, "/api/decisions/"+url.PathEscape(id)+"/reject",
		map[string]string{"reason": reason}, &d)
	return d, err
}

// Kill stops the engine until reset.
func (c *Client) Kill(ctx context.Context, reason string) (autopilot.Status, error) {
	var st autopilot.Status
	err := c.do(ctx, resty.MethodPost, "/api/control/kill", map[string]string{"reason": reason}, &st)
	return st, err
}

// Control posts one of the body-less switches: pause, resume or reset.
func (c *Client) Control(ctx context.Context, action string) (autopilot.Status, error) {
	var st autopilot.Status
	err := c.do(ctx, resty.MethodPost, "/api/control/"+action, nil, &st)
	return st, err
}

// SetMode switches the autonomy mode.
func (c *Client) SetMode(ctx context.Context, mode string) (autopilot.Status, error) {
	var st autopilot.Status
	err := c.do(ctx, resty.MethodPut, "/api/mode", map[string]string{"mode": mode}, &st)
	return st, err
}

// Risk fetches the current risk state.
func (c *Client) Risk(ctx context.Context) (domain.RiskState, error) {
	var rs domain.RiskState
	err := c.do(ctx, resty.MethodGet, "/api/risk", nil, &rs)
	return rs, err
}

// UpdateRisk sends a partial risk-state update.
func (c *Client) UpdateRisk(ctx context.Context, patch domain.RiskStatePatch) (domain.RiskState, error) {
	var rs domain.RiskState
	err := c.do(ctx, resty.MethodPatch, "/api/risk", patch, &rs)
	return rs, err
}
