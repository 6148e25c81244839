package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/toolbridge/internal/broker"
)

// handleTool handles POST /tool/{name}. The request stays open until the
// worker reports back or the command's deadline passes.
func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "name")

	args, err := readArgs(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pending, err := s.broker.Submit(tool, args)
	if err != nil {
		if errors.Is(err, broker.ErrMalformed) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit failed", "tool", tool, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := pending.Wait(r.Context())
	switch {
	case err == nil:
		if len(result) > 0 && !json.Valid(result) {
			result, _ = json.Marshal(string(result))
		}
		respondJSON(w, http.StatusOK, ToolResponse{OK: true, ID: pending.ID, Result: result})
	case r.Context().Err() != nil:
		// Caller went away; the command stays pending until it resolves or expires.
		s.logger.Debug("caller disconnected while waiting", "command_id", pending.ID, "tool", tool)
	default:
		resp := ToolResponse{OK: false, ID: pending.ID, Error: err.Error()}
		var te *broker.TimeoutError
		if errors.As(err, &te) {
			resp.Timeout = true
			resp.TimeoutMs = te.TimeoutMs()
		}
		respondJSON(w, http.StatusInternalServerError, resp)
	}
}

// handlePoll handles GET /poll for the Studio worker.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	wait := s.config.PollWait
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := parseWait(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		wait = d
	}
	if wait > s.config.MaxPollWait {
		wait = s.config.MaxPollWait
	}

	cmd, ok, err := s.broker.Poll(r.Context(), wait)
	if err != nil {
		// Poller disconnected; nothing to write.
		s.logger.Debug("poll abandoned", "error", err)
		return
	}
	if !ok {
		respondJSON(w, http.StatusOK, PollResponse{HasCommand: false})
		return
	}
	respondJSON(w, http.StatusOK, PollResponse{
		HasCommand: true,
		ID:         cmd.ID,
		Tool:       cmd.Tool,
		Args:       cmd.Args,
	})
}

// handleResult handles POST /result from the worker.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	var req ResultRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "Missing id")
		return
	}

	var err error
	if msg, failed := errorMessage(req.Error); failed {
		err = s.broker.Fail(req.ID, msg)
	} else {
		err = s.broker.Complete(req.ID, req.Result)
	}
	if err != nil {
		if !errors.Is(err, broker.ErrNotFound) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Debug("result for unknown or settled command", "command_id", req.ID)
	}
	respondJSON(w, http.StatusOK, AckResponse{OK: true})
}

// handleHealth handles GET /health and GET /healthz. It never mutates the broker.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.broker.Stats()
	respondJSON(w, http.StatusOK, HealthResponse{
		OK:            true,
		Service:       s.config.Service,
		Port:          s.port(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Pending:       stats.Pending,
		Queued:        stats.Queued,
		Claimed:       stats.Claimed,
		Waiters:       stats.Waiters,
	})
}

// handleCommands handles GET /commands.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, CommandsResponse{
		Commands: s.broker.Pending(),
		Stats:    s.broker.Stats(),
	})
}

// handleTools handles GET /tools.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.writeError(w, http.StatusNotFound, "tool catalog not loaded")
		return
	}
	tools := s.catalog.Tools()
	resp := ToolsResponse{Tools: make([]ToolInfo, 0, len(tools))}
	for _, t := range tools {
		resp.Tools = append(resp.Tools, ToolInfo{
			Name:        t.Name,
			Category:    t.Category,
			Description: t.Description,
			InputSchema: t.InputSchema(),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleHistory handles GET /history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Records: records})
}

// readArgs returns the tool arguments from the request body. An empty body
// means no arguments.
func readArgs(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("Invalid JSON body: %v", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage(`{}`), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("Invalid JSON body: %v", err)
	}
	if obj == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(body), nil
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("Invalid JSON body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("Invalid JSON body: %v", err)
	}
	return nil
}

// errorMessage interprets the worker's error field. Absent, null, false,
// zero and empty string mean success.
func errorMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), true
	}
	switch e := v.(type) {
	case nil:
		return "", false
	case bool:
		if !e {
			return "", false
		}
	case float64:
		if e == 0 {
			return "", false
		}
	case string:
		return e, e != ""
	}
	return string(raw), true
}

// parseWait accepts a Go duration ("5s") or whole milliseconds ("5000").
func parseWait(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("wait must not be negative")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("wait must be a duration like 5s or milliseconds")
	}
	return d, nil
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an {ok:false,error} response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, AckResponse{OK: false, Error: message})
}
