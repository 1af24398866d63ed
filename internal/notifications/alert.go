package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SMSSender sends a text message under a context deadline.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// EmergencyPayload is the body of an emergency:alert event.
type EmergencyPayload struct {
	RideID      uuid.UUID `json:"ride_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	PassengerID uuid.UUID `json:"passenger_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Source      string    `json:"location_source"`
}

// AlertSink escalates emergency alerts to the on-call phone by SMS. Every other
// event is ignored.
type AlertSink struct {
	sms   SMSSender
	phone string
}

func NewAlertSink(sms SMSSender, phone string) *AlertSink {
	return &AlertSink{sms: sms, phone: phone}
}

func (s *AlertSink) NotifyUser(context.Context, uuid.UUID, string, json.RawMessage) error {
	return nil
}

func (s *AlertSink) NotifyRoom(ctx context.Context, room, event string, payload json.RawMessage) error {
	if event != EventEmergencyAlert || s.sms == nil || s.phone == "" {
		return nil
	}

	var p EmergencyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode emergency payload: %w", err)
	}
	_, err := s.sms.Send(ctx, s.phone, emergencyText(p))
	return err
}

func emergencyText(p EmergencyPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY: driver %s reported an emergency on ride %s.", p.DriverID, p.RideID)
	fmt.Fprintf(&b, " Location: https://maps.google.com/?q=%.6f,%.6f", p.Latitude, p.Longitude)
	if p.Source != "" {
		fmt.Fprintf(&b, " (%s)", p.Source)
	}
	return b.String()
}
