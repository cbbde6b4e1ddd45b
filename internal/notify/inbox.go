package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Inbox is a [Backend] for hosts without a notification center. Messages
// are delivered into memory when due and handed to subscribers, which the
// HTTP API streams to the front end.
type Inbox struct {
	now func() time.Time

	mu        sync.Mutex
	delivered []Message
	timers    map[string]*time.Timer
	subs      map[int]func(Message)
	nextSub   int
	limit     int
}

var _ Backend = (*Inbox)(nil)

// DefaultInboxLimit caps how many delivered messages are retained.
const DefaultInboxLimit = 50

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		subs:   make(map[int]func(Message)),
		limit:  DefaultInboxLimit,
	}
}

// PermissionGranted implements [Backend]. An inbox needs no permission.
func (in *Inbox) PermissionGranted(context.Context) (bool, error) { return true, nil }

// RequestPermission implements [Backend].
func (in *Inbox) RequestPermission(context.Context) (bool, error) { return true, nil }

// Schedule implements [Backend].
func (in *Inbox) Schedule(_ context.Context, title, body string, delay time.Duration) (Message, error) {
	msg := Message{ID: uuid.NewString(), Title: title, Body: body, DueAt: in.now().Add(delay)}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.timers[msg.ID] = time.AfterFunc(delay, func() { in.deliver(msg) })
	return msg, nil
}

func (in *Inbox) deliver(msg Message) {
	in.mu.Lock()
	if _, ok := in.timers[msg.ID]; !ok {
		in.mu.Unlock()
		return
	}
	delete(in.timers, msg.ID)
	in.delivered = append(in.delivered, msg)
	if over := len(in.delivered) - in.limit; over > 0 {
		in.delivered = append([]Message(nil), in.delivered[over:]...)
	}
	subs := make([]func(Message), 0, len(in.subs))
	for _, fn := range in.subs {
		subs = append(subs, fn)
	}
	in.mu.Unlock()

	slog.Debug("notify: message delivered", "id", msg.ID)
	for _, fn := range subs {
		fn(msg)
	}
}

// Messages returns delivered messages, oldest first.
func (in *Inbox) Messages() []Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Message(nil), in.delivered...)
}

// Pending returns how many messages are scheduled but not yet delivered.
func (in *Inbox) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.timers)
}

// Subscribe calls fn for every message delivered from now on. fn runs on a
// timer goroutine and must not block.
func (in *Inbox) Subscribe(fn func(Message)) (unsubscribe func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	id := in.nextSub
	in.nextSub++
	in.subs[id] = fn
	return func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		delete(in.subs, id)
	}
}

// Close cancels every pending message.
func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, t := range in.timers {
		t.Stop()
		delete(in.timers, id)
	}
}
