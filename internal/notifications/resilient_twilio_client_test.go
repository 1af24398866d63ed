package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSMSClient struct {
	mock.Mock
}

func (m *mockSMSClient) SendSMS(to, body string) (string, error) {
	args := m.Called(to, body)
	return args.String(0), args.Error(1)
}

func fastSMS(client SMSClient) *ResilientSMS {
	r := NewResilientSMS(client, nil)
	r.retry.InitialBackoff = time.Millisecond
	r.retry.MaxBackoff = time.Millisecond
	return r
}

func TestResilientSMSRetriesTransientFailures(t *testing.T) {
	client := new(mockSMSClient)
	client.On("SendSMS", "+15550100", "help").Return("", errors.New("20503 service unavailable")).Once()
	client.On("SendSMS", "+15550100", "help").Return("SM42", nil).Once()

	sid, err := fastSMS(client).Send(context.Background(), "+15550100", "help")
	require.NoError(t, err)
	assert.Equal(t, "SM42", sid)
	client.AssertExpectations(t)
}

func TestResilientSMSDoesNotRetryInvalidNumbers(t *testing.T) {
	client := new(mockSMSClient)
	client.On("SendSMS", "bad", "help").Return("", errors.New("21211 invalid 'To' phone number")).Once()

	_, err := fastSMS(client).Send(context.Background(), "bad", "help")
	assert.Error(t, err)
	client.AssertNumberOfCalls(t, "SendSMS", 1)
}

func TestMaskPhoneNumber(t *testing.T) {
	assert.Equal(t, "***0100", maskPhoneNumber("+15550100"))
	assert.Equal(t, "***", maskPhoneNumber("123"))
}
