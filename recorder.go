package members

import (
	"context"
	"sync"
	"time"
)

// Recorder is an EventSink that persists events asynchronously through a
// bounded queue. Enqueueing never blocks the caller: when the queue is full
// the event is dropped and the loss is logged. A failure to persist an event
// never affects the operation that produced it.
type Recorder struct {
	events   AnalyticsEvents
	logger   Logger
	queue    chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	timeout  time.Duration
	stopOnce sync.Once
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderQueueSize sets the bounded queue capacity.
func WithRecorderQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// WithRecorderLogger overrides the logger.
func WithRecorderLogger(l Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorderWriteTimeout bounds each persistence attempt.
func WithRecorderWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder starts a Recorder draining into the analytics store. Call
// Close to flush the queue on shutdown.
func NewRecorder(events AnalyticsEvents, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		events:  events,
		logger:  defLogger{},
		queue:   make(chan Event, 256),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.wg.Add(1)
	go r.loop()

	return r
}

// Record implements EventSink. It stamps OccurredAt when unset and enqueues
// without blocking; a full queue drops the event.
func (r *Recorder) Record(_ context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case <-r.done:
		return nil
	default:
	}

	select {
	case r.queue <- event:
	default:
		r.logger.Warn("analytics queue full, dropping event", "event_type", event.EventType, "member_number", event.MemberNumber)
	}
	return nil
}

// Close stops accepting events and drains what is already queued. The queue
// channel is never closed so a Record racing Close can at worst leave an
// event behind, never panic.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) loop() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.queue:
			r.persist(event)
		case <-r.done:
			for {
				select {
				case event := <-r.queue:
					r.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	occurredAt := event.OccurredAt
	record := &AnalyticsEvent{
		EventType:    string(event.EventType),
		MemberNumber: event.MemberNumber,
		AccountType:  event.AccountType,
		Plan:         event.Plan,
		Payload:      event.Metadata,
		CreatedAt:    &occurredAt,
	}

	if _, err := r.events.Append(ctx, record); err != nil {
		r.logger.Error("failed to persist analytics event", "event_type", event.EventType, "error", err)
	}
}
