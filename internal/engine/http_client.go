package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/poker-table-coordinator/internal/model"
)

// HTTPClient talks to a rules engine exposing
//
//	POST /v1/hands        {hand_id, seats}            -> State
//	POST /v1/hands/apply  {raw, user_id, action}      -> State
//	POST /v1/hands/state  {raw}                       -> State
//
// A 422 response is a rules violation; anything else non-2xx is an
// infrastructure error.
type HTTPClient struct {
	base string
	hc   *http.Client
}

// NewHTTPClient returns a client for the engine at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

type startRequest struct {
	HandID string `json:"hand_id"`
	Seats  []Seat `json:"seats"`
	Blinds Blinds `json:"blinds,omitzero"`
}

type applyRequest struct {
	Raw    json.RawMessage `json:"raw"`
	UserID string          `json:"user_id"`
	Action model.Action    `json:"action"`
}

type describeRequest struct {
	Raw json.RawMessage `json:"raw"`
}

// Start implements Engine.
func (c *HTTPClient) Start(ctx context.Context, handID string, seats []Seat, blinds Blinds) (State, error) {
	return c.post(ctx, "/v1/hands", startRequest{HandID: handID, Seats: seats, Blinds: blinds})
}

// Apply implements Engine.
func (c *HTTPClient) Apply(ctx context.Context, raw []byte, userID string, action model.Action) (State, error) {
	return c.post(ctx, "/v1/hands/apply", applyRequest{Raw: json.RawMessage(raw), UserID: userID, Action: action})
}

// Describe implements Engine.
func (c *HTTPClient) Describe(ctx context.Context, raw []byte) (State, error) {
	return c.post(ctx, "/v1/hands/state", describeRequest{Raw: json.RawMessage(raw)})
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (State, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return State{}, fmt.Errorf("engine: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return State{}, fmt.Errorf("engine: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("engine: %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return State{}, fmt.Errorf("engine: read %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(payload, &e)
		return State{}, fmt.Errorf("%w: %s", ErrRulesViolation, e.Error)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return State{}, fmt.Errorf("engine: %s returned %d", path, resp.StatusCode)
	}
	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return State{}, fmt.Errorf("engine: decode %s: %w", path, err)
	}
	return st, nil
}
