package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/eventbus"
	"github.com/richxcame/ridecore/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	return m.Called(ctx, subject, event).Error(0)
}

type mockSMS struct {
	mock.Mock
}

func (m *mockSMS) Send(ctx context.Context, to, body string) (string, error) {
	args := m.Called(ctx, to, body)
	return args.String(0), args.Error(1)
}

type mockSubscriber struct {
	mock.Mock
}

func (m *mockSubscriber) Subscribe(ctx context.Context, subject, consumer string, handler eventbus.HandlerFunc) error {
	return m.Called(ctx, subject, consumer, handler).Error(0)
}

func TestFanoutAttemptsEverySinkAndReturnsFirstError(t *testing.T) {
	userID := uuid.New()
	payload := json.RawMessage(`{"ride_id":"r1"}`)
	first := errors.New("first")

	a, b, c := new(mockSink), new(mockSink), new(mockSink)
	a.On("NotifyUser", mock.Anything, userID, EventRideAccepted, payload).Return(nil)
	b.On("NotifyUser", mock.Anything, userID, EventRideAccepted, payload).Return(first)
	c.On("NotifyUser", mock.Anything, userID, EventRideAccepted, payload).Return(errors.New("second"))

	err := NewFanoutSink(a, b, c).NotifyUser(context.Background(), userID, EventRideAccepted, payload)
	assert.ErrorIs(t, err, first)
	a.AssertExpectations(t)
	b.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestHubSinkReachesUserConnections(t *testing.T) {
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	userID := uuid.New()
	client := websocket.NewClient(userID.String(), "passenger", nil, hub)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.RoomSize(websocket.UserRoom(userID.String())) == 1 },
		time.Second, 5*time.Millisecond)

	sink := NewHubSink(hub)
	require.NoError(t, sink.NotifyUser(ctx, userID, EventRideArrived, json.RawMessage(`{"ride_id":"r9"}`)))

	select {
	case msg := <-client.Messages():
		assert.Equal(t, EventRideArrived, msg.Event)
		assert.JSONEq(t, `{"ride_id":"r9"}`, string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestBusSinkPublishesWithTarget(t *testing.T) {
	userID := uuid.New()
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, "ridecore.ride.cancelled", mock.MatchedBy(func(ev *eventbus.Event) bool {
		return ev.Type == EventRideCancelled && ev.Target == "user:"+userID.String() && ev.Source == "rides"
	})).Return(nil)

	err := NewBusSink(pub, "rides", nil).NotifyUser(context.Background(), userID, EventRideCancelled, json.RawMessage(`{}`))
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestAlertSinkOnlyEscalatesEmergencies(t *testing.T) {
	sms := new(mockSMS)
	payload, err := json.Marshal(EmergencyPayload{RideID: uuid.New(), DriverID: uuid.New(), Latitude: 30.1, Longitude: 31.1})
	require.NoError(t, err)
	sms.On("Send", mock.Anything, "+15550100", mock.MatchedBy(func(body string) bool {
		return assert.Contains(t, body, "30.100000,31.100000")
	})).Return("SM1", nil).Once()

	sink := NewAlertSink(sms, "+15550100")
	require.NoError(t, sink.NotifyRoom(context.Background(), AdminRoom, EventEmergencyAlert, payload))
	require.NoError(t, sink.NotifyRoom(context.Background(), AdminRoom, EventRideNew, payload))
	require.NoError(t, sink.NotifyUser(context.Background(), uuid.New(), EventEmergencyAlert, payload))
	sms.AssertExpectations(t)
}

func TestRelayRoutesBusEventsToSink(t *testing.T) {
	userID := uuid.New()
	sink := new(mockSink)
	sink.On("NotifyUser", mock.Anything, userID, EventDriverLocation, json.RawMessage(`{"lat":1}`)).Return(nil)
	sink.On("NotifyRoom", mock.Anything, AdminRoom, EventEmergencyAlert, json.RawMessage(`{}`)).Return(nil)

	relay := NewRelay(new(mockSubscriber), sink)
	ctx := context.Background()

	require.NoError(t, relay.Handle(ctx, &eventbus.Event{Type: EventDriverLocation, Target: "user:" + userID.String(), Data: json.RawMessage(`{"lat":1}`)}))
	require.NoError(t, relay.Handle(ctx, &eventbus.Event{Type: EventEmergencyAlert, Target: "room:" + AdminRoom, Data: json.RawMessage(`{}`)}))
	require.NoError(t, relay.Handle(ctx, &eventbus.Event{Type: EventRideNew, Target: "garbage"}), "bad targets are acked and dropped")
	sink.AssertExpectations(t)
}

func TestRelayStartSubscribesToAllSubjects(t *testing.T) {
	sub := new(mockSubscriber)
	sub.On("Subscribe", mock.Anything, "ridecore.>", mock.MatchedBy(func(name string) bool {
		return len(name) > len("ws-relay-")
	}), mock.Anything).Return(nil)

	require.NoError(t, NewRelay(sub, new(mockSink)).Start(context.Background()))
	sub.AssertExpectations(t)
}
