/*
Package api is the REST client for the chat backend.

Client performs raw JSON requests and maps HTTP failures onto apperr kinds.
The services in this package take a Doer, so the same code runs against the
bare Client (auth endpoints) or the token-refreshing gateway (everything else).
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/concord-chat/teamchat/internal/apperr"
)

// Request describes one REST call relative to the base URL
type Request struct {
	Method string
	Path   string
	Body   interface{}
}

// Doer executes a request and decodes a JSON response into out
type Doer interface {
	Do(ctx context.Context, req Request, out interface{}) error
}

// Client talks to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client. A zero timeout means 10 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Send performs req with token as bearer credential. An empty token sends no
// Authorization header. Non-2xx responses become *apperr.Error with the kind
// chosen by status.
func (c *Client) Send(ctx context.Context, req Request, token string, out interface{}) error {
	op := strings.ToLower(req.Method) + " " + req.Path

	var body io.Reader
	if req.Body != nil {
		jsonData, err := json.Marshal(req.Body)
		if err != nil {
			return apperr.Wrap(apperr.KindUnknown, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.Wrap(apperr.KindTransport, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.FromStatus(op, resp.StatusCode, serverMessage(data))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.KindServer, op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// Do performs an unauthenticated request
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	return c.Send(ctx, req, "", out)
}

func serverMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}
