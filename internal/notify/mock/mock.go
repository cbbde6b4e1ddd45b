// Package mock provides an in-memory [notify.Backend] for unit tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/awkwardescape/internal/notify"
)

// ScheduleCall records a single [Backend.Schedule] invocation.
type ScheduleCall struct {
	Title string
	Body  string
	Delay time.Duration
}

// Backend is a mock [notify.Backend]. It is safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	// Granted is the current permission state.
	Granted bool

	// GrantOnRequest is what RequestPermission answers; a grant sticks.
	GrantOnRequest bool

	// StatusErr is returned by PermissionGranted.
	StatusErr error

	// ScheduleErr is returned by Schedule.
	ScheduleErr error

	StatusCalls  int
	RequestCalls int
	Scheduled    []ScheduleCall
}

var _ notify.Backend = (*Backend)(nil)

// PermissionGranted implements [notify.Backend].
func (b *Backend) PermissionGranted(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StatusCalls++
	return b.Granted, b.StatusErr
}

// RequestPermission implements [notify.Backend].
func (b *Backend) RequestPermission(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.RequestCalls++
	if b.GrantOnRequest {
		b.Granted = true
	}
	return b.GrantOnRequest, nil
}

// Schedule implements [notify.Backend].
func (b *Backend) Schedule(_ context.Context, title, body string, delay time.Duration) (notify.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ScheduleErr != nil {
		return notify.Message{}, b.ScheduleErr
	}
	b.Scheduled = append(b.Scheduled, ScheduleCall{Title: title, Body: body, Delay: delay})
	return notify.Message{ID: fmt.Sprintf("msg-%d", len(b.Scheduled)), Title: title, Body: body}, nil
}

// Calls returns a copy of the recorded Schedule calls.
func (b *Backend) Calls() []ScheduleCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ScheduleCall(nil), b.Scheduled...)
}
