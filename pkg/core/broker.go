package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrEventTypeExists is returned when an event type name is registered twice.
	ErrEventTypeExists = errors.New("event type already registered")
	// ErrUnknownEventType is returned when publishing a type nobody registered.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrInvalidEvent is returned when an event does not match its PayloadSpec.
	ErrInvalidEvent = errors.New("invalid event")
)

// EventBroker keeps the event type registry and dispatches events to
// subscribers. Only registered types are dispatched.
type EventBroker struct {
	mu          sync.RWMutex
	types       map[EventTypeName]EventTypeDesc
	subscribers map[string][]Listener
}

func NewEventBroker() *EventBroker {
	return &EventBroker{
		types:       make(map[EventTypeName]EventTypeDesc),
		subscribers: make(map[string][]Listener),
	}
}

// defaultBroker backs the package-level helpers and every ModuleManager, so
// plugins loaded from .so files share it with the host.
var defaultBroker = NewEventBroker()

// RegisterEventType adds desc. Names must be non-empty and may not contain
// the '*' wildcard.
func (b *EventBroker) RegisterEventType(desc EventTypeDesc) error {
	if strings.TrimSpace(string(desc.Name)) == "" || strings.Contains(string(desc.Name), "*") {
		return fmt.Errorf("%w: bad event type name %q", ErrInvalidEvent, desc.Name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.types[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrEventTypeExists, desc.Name)
	}
	b.types[desc.Name] = desc
	slog.Debug("Registered event type", "name", desc.Name, "description", desc.Description)
	return nil
}

func (b *EventBroker) LookupEventType(name EventTypeName) (EventTypeDesc, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	desc, ok := b.types[name]
	return desc, ok
}

// EventTypes lists registered event types sorted by name.
func (b *EventBroker) EventTypes() []EventTypeDesc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]EventTypeDesc, 0, len(b.types))
	for _, desc := range b.types {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe registers handler for an exact type or a "prefix_*" pattern.
func (b *EventBroker) Subscribe(pattern string, handler Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[pattern] = append(b.subscribers[pattern], handler)
	slog.Debug("Subscribed to pattern", "pattern", pattern)
}

// Validate checks event against its registered PayloadSpec. Required fields
// must be present and fields typed "string" must hold strings.
func (b *EventBroker) Validate(event InternalEvent) error {
	desc, ok := b.LookupEventType(event.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, event.Type)
	}
	var errs []error
	for field, spec := range desc.PayloadSpec {
		value, has := event.Details[field]
		if !has {
			if spec.Required {
				errs = append(errs, fmt.Errorf("missing field %s", field))
			}
			continue
		}
		if spec.Type == "string" {
			if _, isString := value.(string); !isString {
				errs = append(errs, fmt.Errorf("field %s is %T, want string", field, value))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %s: %w", ErrInvalidEvent, event.Type, errors.Join(errs...))
	}
	return nil
}

// Publish validates event and dispatches it to matching subscribers
// asynchronously. Invalid events are not dispatched.
func (b *EventBroker) Publish(ctx context.Context, event InternalEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.Validate(event); err != nil {
		return err
	}
	event.Timestamp = time.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, listeners := range b.subscribers {
		if matchesPattern(string(event.Type), pattern) {
			for _, listener := range listeners {
				go listener(ctx, event)
			}
		}
	}
	return nil
}

// RegisterEventType registers desc on the shared broker.
func RegisterEventType(desc EventTypeDesc) error {
	return defaultBroker.RegisterEventType(desc)
}

func LookupEventType(name EventTypeName) (EventTypeDesc, bool) {
	return defaultBroker.LookupEventType(name)
}

func Subscribe(pattern string, handler Listener) {
	defaultBroker.Subscribe(pattern, handler)
}

func Publish(ctx context.Context, event InternalEvent) error {
	return defaultBroker.Publish(ctx, event)
}

// matchesPattern: "credential_*" matches "credential_rejected"
func matchesPattern(eventType, pattern string) bool {
	if pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
