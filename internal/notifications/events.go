package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/websocket"
)

// Event names delivered to clients.
const (
	EventRideNew        = "ride:new"
	EventRideAccepted   = "ride:accepted"
	EventRideStarted    = "ride:started"
	EventRideArrived    = "ride:arrived"
	EventRideCompleted  = "ride:completed"
	EventRideCancelled  = "ride:cancelled"
	EventDriverLocation = "driver:location"
	EventEmergencyAlert = "emergency:alert"
)

// AdminRoom receives safety escalations.
const AdminRoom = websocket.AdminRoom

// TargetKind says how Target is addressed.
type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetRoom TargetKind = "room"
)

// Event is one outbound notification, persisted in the outbox until delivered.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	TargetKind TargetKind      `json:"target_kind"`
	Target     string          `json:"target"`
	Name       string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	Attempts   int             `json:"attempts"`
}

// ToUser builds an event addressed to every connection of userID.
func ToUser(userID uuid.UUID, name string, payload interface{}) (Event, error) {
	return newEvent(TargetUser, userID.String(), name, payload)
}

// ToRoom builds an event addressed to a named room.
func ToRoom(room, name string, payload interface{}) (Event, error) {
	return newEvent(TargetRoom, room, name, payload)
}

func newEvent(kind TargetKind, target, name string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Event{
		ID:         uuid.New(),
		TargetKind: kind,
		Target:     target,
		Name:       name,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
