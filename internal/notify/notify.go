// Package notify schedules the fake text messages of silent-message mode
// as local notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/awkwardescape/internal/observe"
)

// DefaultDelay is the gap between the trigger and the notification.
const DefaultDelay = 2 * time.Second

// Message is one scheduled notification.
type Message struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	DueAt time.Time `json:"dueAt"`
}

// Backend is the platform notification service.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// PermissionGranted reports whether notifications may already be shown.
	PermissionGranted(ctx context.Context) (bool, error)

	// RequestPermission asks the user for permission.
	RequestPermission(ctx context.Context) (bool, error)

	// Schedule delivers title and body after delay and returns the
	// scheduled message.
	Schedule(ctx context.Context, title, body string, delay time.Duration) (Message, error)
}

// Service wraps a [Backend] with the permission flow.
type Service struct {
	backend Backend
	metrics *observe.Metrics
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a service that schedules through backend.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{backend: backend}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// EnsurePermission checks the existing grant and asks only when missing.
func (s *Service) EnsurePermission(ctx context.Context) (bool, error) {
	granted, err := s.backend.PermissionGranted(ctx)
	if err != nil {
		return false, fmt.Errorf("notify: permission status: %w", err)
	}
	if granted {
		return true, nil
	}
	granted, err = s.backend.RequestPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("notify: request permission: %w", err)
	}
	return granted, nil
}

// ScheduleFakeMessage shows title and body after delay. A non-positive
// delay means [DefaultDelay]. Denied permission and platform errors are
// logged and reported as false; they never reach the user as errors.
func (s *Service) ScheduleFakeMessage(ctx context.Context, title, body string, delay time.Duration) bool {
	if delay <= 0 {
		delay = DefaultDelay
	}
	granted, err := s.EnsurePermission(ctx)
	if err != nil {
		slog.Warn("notify: permission check failed", "err", err)
		return false
	}
	if !granted {
		s.metrics.RecordPermissionDenied(ctx, "notifications")
		slog.Info("notify: permission denied")
		return false
	}
	msg, err := s.backend.Schedule(ctx, title, body, delay)
	if err != nil {
		slog.Warn("notify: schedule failed", "err", err)
		return false
	}
	slog.Info("notify: message scheduled", "id", msg.ID, "title", title, "due_at", msg.DueAt)
	return true
}
