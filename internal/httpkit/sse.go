package httpkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSE writes a text/event-stream response.
type SSE struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSE sets the event-stream headers and flushes them. It fails when the
// writer cannot flush.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return nil, fmt.Errorf("streaming unsupported: %w", err)
		}
		return nil, err
	}
	return &SSE{w: w, rc: rc}, nil
}

// Send writes one event with a JSON payload and flushes it.
func (s *SSE) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Comment writes a keep-alive comment line.
func (s *SSE) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.rc.Flush()
}
