package api

import (
	"encoding/json"

	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/history"
)

// ToolResponse is returned by POST /tool/{name}.
type ToolResponse struct {
	OK        bool            `json:"ok"`
	ID        string          `json:"id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timeout   bool            `json:"timeout,omitempty"`
	TimeoutMs int64           `json:"timeoutMs,omitempty"`
}

// PollResponse is returned by GET /poll.
type PollResponse struct {
	HasCommand bool            `json:"hasCommand"`
	ID         string          `json:"id,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// ResultRequest is the JSON body for POST /result. Error is kept raw so any
// truthy value counts as a failure report.
type ResultRequest struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// AckResponse is returned by POST /result and on request errors.
type AckResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /health and GET /healthz.
type HealthResponse struct {
	OK            bool   `json:"ok"`
	Service       string `json:"service"`
	Port          int    `json:"port"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Pending       int    `json:"pending"`
	Queued        int    `json:"queued"`
	Claimed       int    `json:"claimed"`
	Waiters       int    `json:"waiters"`
}

// CommandsResponse is returned by GET /commands.
type CommandsResponse struct {
	Commands []broker.Snapshot `json:"commands"`
	Stats    broker.Stats      `json:"stats"`
}

// ToolInfo describes one catalog entry for GET /tools.
type ToolInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ToolsResponse is returned by GET /tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
}
