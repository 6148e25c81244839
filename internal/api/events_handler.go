package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/toolbridge/internal/events"
)

const sseKeepAlive = 15 * time.Second

// sseStream writes event-stream frames and flushes after each one.
type sseStream struct {
	w      io.Writer
	rc     *http.ResponseController
	lastID int64
	types  map[string]bool // nil means every type
}

func (s *sseStream) send(ev events.Event) error {
	if ev.ID <= s.lastID {
		return nil
	}
	s.lastID = ev.ID
	if s.types != nil && !s.types[ev.Type] {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	// Payloads are single-line JSON.
	fmt.Fprintf(&b, "data: %s\n\n", ev.Data)
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseStream) ping() error {
	if _, err := io.WriteString(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// handleEvents handles GET /events, a server-sent event stream of broker
// transitions. Last-Event-ID resumes from the replay buffer and ?type=
// (repeatable or comma separated) narrows the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := &sseStream{
		w:      w,
		rc:     http.NewResponseController(w),
		lastID: parseLastEventID(r.Header.Get("Last-Event-ID")),
		types:  parseTypes(r.URL.Query()["type"]),
	}
	for _, ev := range s.events.Since(stream.lastID) {
		if err := stream.send(ev); err != nil {
			return
		}
	}
	if err := stream.rc.Flush(); err != nil {
		s.logger.Debug("event stream not flushable", "error", err)
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			err = stream.send(ev)
		case <-keepAlive.C:
			err = stream.ping()
		}
		if err != nil {
			return
		}
	}
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseTypes(values []string) map[string]bool {
	var types map[string]bool
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				if types == nil {
					types = make(map[string]bool)
				}
				types[t] = true
			}
		}
	}
	return types
}
