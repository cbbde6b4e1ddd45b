package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/awkwardescape/internal/call"
)

// writeTimeout bounds one event write to a slow client.
const writeTimeout = 5 * time.Second

// eventFrame is one message on the events stream.
type eventFrame struct {
	Type string       `json:"type"`
	Call call.Session `json:"call"`
}

// latestSession holds the newest unsent session. Older unsent sessions are
// overwritten so a slow client always converges on the current state.
type latestSession struct {
	mu      sync.Mutex
	session call.Session
	pending bool
	ready   chan struct{}
}

func newLatestSession() *latestSession {
	return &latestSession{ready: make(chan struct{}, 1)}
}

func (l *latestSession) put(s call.Session) {
	l.mu.Lock()
	l.session, l.pending = s, true
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latestSession) take() (call.Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.session, l.pending
	l.pending = false
	return s, ok
}

// handleEvents upgrades to a websocket and streams the call session: one
// "snapshot" frame on connect, then a "call" frame per change. Incoming
// messages are discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("api: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	latest := newLatestSession()
	unsubscribe := s.svc.OnCallChange(latest.put)
	defer unsubscribe()

	if err := writeFrame(ctx, conn, eventFrame{Type: "snapshot", Call: s.svc.Call()}); err != nil {
		slog.Debug("api: events write", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-latest.ready:
			sess, ok := latest.take()
			if !ok {
				continue
			}
			if err := writeFrame(ctx, conn, eventFrame{Type: "call", Call: sess}); err != nil {
				slog.Debug("api: events write", "err", err)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f eventFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
