package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerCredentials_Complete(t *testing.T) {
	var nilCreds *BrokerCredentials
	assert.False(t, nilCreds.Complete())
	assert.False(t, (&BrokerCredentials{Username: "alice"}).Complete())
	assert.False(t, (&BrokerCredentials{Password: "secret"}).Complete())
	assert.True(t, (&BrokerCredentials{Username: "alice", Password: "secret"}).Complete())
	assert.True(t, (&BrokerCredentials{Username: "alice", Password: "secret", MFA: "123456"}).Complete())
}

func TestSentinelErrors_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("login failed: %w", ErrAuthRejected)
	assert.True(t, errors.Is(err, ErrAuthRejected))
	assert.False(t, errors.Is(err, ErrInstrumentNotFound))
}
