package members

import (
	"context"
	"time"
)

// EventType enumerates the analytics events the service emits.
type EventType string

const (
	EventGuestCreated    EventType = "guest_created"
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailed     EventType = "login_failed"
	EventPasswordChanged EventType = "password_changed"
	EventGuestExpired    EventType = "guest_expired"
	EventStatusChanged   EventType = "member_status_changed"
)

// Event captures a single analytics occurrence. MemberNumber may be empty
// for failed logins against unknown identifiers.
type Event struct {
	EventType    EventType
	MemberNumber string
	AccountType  AccountType
	Plan         string
	Metadata     map[string]any
	OccurredAt   time.Time
}

// EventSink consumes analytics events for the append-only activity log.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

// Record implements EventSink.
func (f EventSinkFunc) Record(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopEventSink struct{}

func (noopEventSink) Record(context.Context, Event) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}
