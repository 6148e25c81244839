package mcpproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DaemonClient forwards tool calls to a running daemon over HTTP.
type DaemonClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewDaemonClient creates a client for the daemon at baseURL. Each call is
// abandoned after timeout.
func NewDaemonClient(baseURL string, timeout time.Duration) *DaemonClient {
	return &DaemonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

type daemonResponse struct {
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
	Timeout *bool           `json:"timeout"`
}

type errorText struct {
	Error   string `json:"error"`
	Timeout *bool  `json:"timeout,omitempty"`
}

// CallTool posts args to /tool/{name} and returns the text handed back to the
// MCP client. Daemon-reported failures and the proxy's own deadline are
// encoded in the text; only transport problems return an error.
func (c *DaemonClient) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/tool/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(args))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if proxyTimedOut(ctx, callCtx) {
			return timeoutText(), nil
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if proxyTimedOut(ctx, callCtx) {
			return timeoutText(), nil
		}
		return "", fmt.Errorf("read daemon response: %w", err)
	}

	var dr daemonResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return "", fmt.Errorf("decode daemon response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !dr.OK {
		msg := dr.Error
		if msg == "" {
			msg = "Unknown error"
		}
		out, _ := json.Marshal(errorText{Error: msg, Timeout: dr.Timeout})
		return string(out), nil
	}
	return resultText(dr.Result), nil
}

// resultText returns string results verbatim and anything else as compact JSON.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func timeoutText() string {
	yes := true
	out, _ := json.Marshal(errorText{Error: "MCP proxy timeout", Timeout: &yes})
	return string(out)
}

// proxyTimedOut reports whether the per-call deadline fired, as opposed to
// the caller's own context ending.
func proxyTimedOut(parent, call context.Context) bool {
	return parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded)
}
