package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/resilience"
	"go.uber.org/zap"
)

// ResilientSMS wraps an SMSClient with circuit breaker and retry logic
type ResilientSMS struct {
	client  SMSClient
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewResilientSMS creates a resilient wrapper around client. A nil breaker gets twilio defaults.
func NewResilientSMS(client SMSClient, breaker *resilience.CircuitBreaker) *ResilientSMS {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "twilio-sms",
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
		}, nil)
	}

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.MaxAttempts = 3
	retryConfig.InitialBackoff = 500 * time.Millisecond
	retryConfig.MaxBackoff = 5 * time.Second
	retryConfig.RetryableChecker = isTwilioRetryable

	return &ResilientSMS{
		client:  client,
		breaker: breaker,
		retry:   retryConfig,
	}
}

// Send delivers body to the number with retry and circuit breaker, giving up when ctx ends.
func (r *ResilientSMS) Send(ctx context.Context, to, body string) (string, error) {
	result, err := resilience.RetryWithBreaker(ctx, r.retry, r.breaker, func(ctx context.Context) (interface{}, error) {
		return r.client.SendSMS(to, body)
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to send SMS after retries",
			zap.Error(err),
			zap.String("to", maskPhoneNumber(to)),
		)
		return "", err
	}

	sid, _ := result.(string)
	logger.DebugContext(ctx, "Successfully sent SMS",
		zap.String("message_sid", sid),
		zap.String("to", maskPhoneNumber(to)),
	)
	return sid, nil
}

// isTwilioRetryable determines if a Twilio error should be retried
func isTwilioRetryable(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	nonRetryableErrors := []string{
		"21211", // Invalid 'To' phone number
		"21212", // Invalid 'From' phone number
		"21408", // Permission denied
		"21606", // Phone number is not a mobile number
		"21610", // Attempt to send to unsubscribed recipient
		"21614", // 'To' number is not a valid mobile number
		"invalid",
		"unauthorized",
		"forbidden",
	}
	for _, code := range nonRetryableErrors {
		if strings.Contains(errMsg, code) {
			return false
		}
	}

	return true
}

// maskPhoneNumber masks phone number for logging (show only last 4 digits)
func maskPhoneNumber(phoneNumber string) string {
	if len(phoneNumber) <= 4 {
		return "***"
	}
	return "***" + phoneNumber[len(phoneNumber)-4:]
}
