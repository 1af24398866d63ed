package notifications

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/eventbus"
	"github.com/richxcame/ridecore/pkg/logger"
	"go.uber.org/zap"
)

// Subscriber is the part of the event bus the relay needs.
type Subscriber interface {
	Subscribe(ctx context.Context, subject, consumerName string, handler eventbus.HandlerFunc) error
}

// Relay forwards events published on the bus by any instance to the local sink,
// normally the websocket hub.
type Relay struct {
	bus  Subscriber
	sink Sink
}

func NewRelay(bus Subscriber, sink Sink) *Relay {
	return &Relay{bus: bus, sink: sink}
}

// Start creates a durable consumer unique to this instance.
func (r *Relay) Start(ctx context.Context) error {
	consumer := "ws-relay-" + instanceName()
	if err := r.bus.Subscribe(ctx, eventbus.SubjectPrefix+".>", consumer, r.Handle); err != nil {
		return fmt.Errorf("subscribe websocket relay: %w", err)
	}
	return nil
}

// Handle delivers one bus event. Malformed targets are dropped.
func (r *Relay) Handle(ctx context.Context, ev *eventbus.Event) error {
	kind, target, err := parseBusTarget(ev.Target)
	if err != nil {
		logger.Warn("dropping bus event with bad target",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
		return nil
	}

	switch kind {
	case TargetUser:
		userID, err := uuid.Parse(target)
		if err != nil {
			logger.Warn("dropping bus event with bad user target", zap.String("target", target))
			return nil
		}
		return r.sink.NotifyUser(ctx, userID, ev.Type, ev.Data)
	default:
		return r.sink.NotifyRoom(ctx, target, ev.Type, ev.Data)
	}
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()[:8]
	}
	return strings.NewReplacer(".", "-", "*", "-", ">", "-").Replace(host)
}
