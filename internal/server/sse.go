package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

const (
	eventMessage    = "message"
	eventScroll     = "scroll"
	eventPlay       = "play"
	eventDesign     = "design"
	eventWhiteboard = "whiteboard"
	eventError      = "error"
	eventDone       = "done"
)

// sseWriter opens the event stream on the first event so that a request
// rejected before streaming still gets a plain JSON error. Events may come
// from several goroutines.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	_ = s.rc.Flush()
}

func (s *sseWriter) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
