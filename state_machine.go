package members

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// MemberStateMachine defines account lifecycle operations.
type MemberStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, member *Member, target AccountStatus, opts ...TransitionOption) (*Member, error)
	CurrentStatus(member *Member) AccountStatus
}

// StatusUpdater persists a status change across the member and credential
// records. RepositoryManager satisfies it.
type StatusUpdater interface {
	UpdateMemberStatus(ctx context.Context, member *Member, status AccountStatus) (*Member, error)
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*memberStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *memberStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineEventSink sets the EventSink used to publish status changes.
func WithStateMachineEventSink(sink EventSink) StateMachineOption {
	return func(sm *memberStateMachine) {
		sm.eventSink = normalizeEventSink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *memberStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewMemberStateMachine returns the default implementation backed by the
// provided status updater.
func NewMemberStateMachine(store StatusUpdater, opts ...StateMachineOption) MemberStateMachine {
	sm := &memberStateMachine{
		store: store,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusActive: {
				AccountStatusSuspended: {},
			},
			AccountStatusSuspended: {
				AccountStatusActive: {},
			},
		},
		now:       time.Now,
		eventSink: noopEventSink{},
		logger:    defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type memberStateMachine struct {
	store       StatusUpdater
	transitions map[AccountStatus]map[AccountStatus]struct{}
	now         func() time.Time
	eventSink   EventSink
	logger      Logger
}

type transitionOptions struct {
	metadata TransitionMetadata
}

func (sm *memberStateMachine) Transition(ctx context.Context, actor ActorRef, member *Member, target AccountStatus, opts ...TransitionOption) (*Member, error) {
	if member == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "member is nil",
		})
	}

	member.EnsureStatus()
	from := member.Status
	if target == "" {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from == target {
		return member, nil
	}

	if !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	updated, err := sm.store.UpdateMemberStatus(ctx, member, target)
	if err != nil {
		return nil, err
	}

	if updated != nil {
		member.Status = updated.Status
		member.SuspendedAt = updated.SuspendedAt
	} else {
		member.Status = target
	}

	sm.recordStatusChange(ctx, actor, member, from, target, options.metadata)

	return member, nil
}

func (sm *memberStateMachine) CurrentStatus(member *Member) AccountStatus {
	if member == nil {
		return ""
	}
	member.EnsureStatus()
	return member.Status
}

func (sm *memberStateMachine) canTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *memberStateMachine) recordStatusChange(ctx context.Context, actor ActorRef, member *Member, from, to AccountStatus, meta TransitionMetadata) {
	if actor == (ActorRef{}) {
		actor = ActorRef{Type: "system"}
	}

	metadata := map[string]any{
		"from":       from,
		"to":         to,
		"actor_type": actor.Type,
	}
	if actor.ID != "" {
		metadata["actor_id"] = actor.ID
	}
	if meta.Reason != "" {
		metadata["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		metadata[k] = v
	}

	sink := normalizeEventSink(sm.eventSink)
	err := sink.Record(ctx, Event{
		EventType:    EventStatusChanged,
		MemberNumber: member.MemberNumber,
		AccountType:  member.AccountType,
		Plan:         member.Plan,
		Metadata:     metadata,
		OccurredAt:   sm.now(),
	})
	if err != nil {
		sm.logger.Warn("state machine event sink error: %v", err)
	}
}
