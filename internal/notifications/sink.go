package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/eventbus"
	"github.com/richxcame/ridecore/pkg/resilience"
	"github.com/richxcame/ridecore/pkg/websocket"
)

// Sink delivers one event to a user or a room.
type Sink interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, event string, payload json.RawMessage) error
	NotifyRoom(ctx context.Context, room, event string, payload json.RawMessage) error
}

// HubSink pushes events to websocket connections held by this instance.
type HubSink struct {
	hub *websocket.Hub
}

func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) NotifyUser(ctx context.Context, userID uuid.UUID, event string, payload json.RawMessage) error {
	return s.NotifyRoom(ctx, websocket.UserRoom(userID.String()), event, payload)
}

func (s *HubSink) NotifyRoom(ctx context.Context, room, event string, payload json.RawMessage) error {
	msg, err := websocket.NewMessage(event, payload)
	if err != nil {
		return err
	}
	return s.hub.SendToRoom(ctx, room, msg)
}

// Publisher is the part of the event bus BusSink needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}

// BusSink publishes events to JetStream so every API instance can relay them
// to its own websocket connections.
type BusSink struct {
	bus     Publisher
	source  string
	breaker *resilience.CircuitBreaker
}

// NewBusSink wraps publishes in breaker when it is non-nil.
func NewBusSink(bus Publisher, source string, breaker *resilience.CircuitBreaker) *BusSink {
	return &BusSink{bus: bus, source: source, breaker: breaker}
}

func (s *BusSink) NotifyUser(ctx context.Context, userID uuid.UUID, event string, payload json.RawMessage) error {
	return s.publish(ctx, busTarget(TargetUser, userID.String()), event, payload)
}

func (s *BusSink) NotifyRoom(ctx context.Context, room, event string, payload json.RawMessage) error {
	return s.publish(ctx, busTarget(TargetRoom, room), event, payload)
}

func (s *BusSink) publish(ctx context.Context, target, name string, payload json.RawMessage) error {
	ev := &eventbus.Event{
		ID:     uuid.New().String(),
		Type:   name,
		Source: s.source,
		Target: target,
		Data:   payload,
	}
	ev.Timestamp = nowUTC()

	if s.breaker == nil {
		return s.bus.Publish(ctx, eventbus.SubjectFor(name), ev)
	}
	_, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.bus.Publish(ctx, eventbus.SubjectFor(name), ev)
	})
	return err
}

func busTarget(kind TargetKind, target string) string {
	return string(kind) + ":" + target
}

// parseBusTarget splits "user:<id>" or "room:<name>".
func parseBusTarget(target string) (TargetKind, string, error) {
	kind, rest, ok := strings.Cut(target, ":")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("malformed event target %q", target)
	}
	switch TargetKind(kind) {
	case TargetUser, TargetRoom:
		return TargetKind(kind), rest, nil
	default:
		return "", "", fmt.Errorf("unknown target kind %q", kind)
	}
}

// FanoutSink delivers to every sink and returns the first error.
type FanoutSink struct {
	sinks []Sink
}

func NewFanoutSink(sinks ...Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (f *FanoutSink) NotifyUser(ctx context.Context, userID uuid.UUID, event string, payload json.RawMessage) error {
	var first error
	for _, s := range f.sinks {
		if err := s.NotifyUser(ctx, userID, event, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *FanoutSink) NotifyRoom(ctx context.Context, room, event string, payload json.RawMessage) error {
	var first error
	for _, s := range f.sinks {
		if err := s.NotifyRoom(ctx, room, event, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var errUnknownTarget = errors.New("unknown outbox target kind")
