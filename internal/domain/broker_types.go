package domain

import (
	"errors"
	"time"
)

// Sentinel errors returned by BrokerClient implementations
var (
	// ErrAuthRejected means the broker refused the credentials or MFA code
	ErrAuthRejected = errors.New("broker rejected credentials")
	// ErrInstrumentNotFound means the broker has no instrument for the identifier
	ErrInstrumentNotFound = errors.New("instrument not found")
)

// BrokerCredentials is the opaque secret bundle used to log in
type BrokerCredentials struct {
	Username string `json:"username" msgpack:"username"`
	Password string `json:"password" msgpack:"password"`
	MFA      string `json:"mfa,omitempty" msgpack:"mfa"`
}

// Complete reports whether enough is present to attempt a login
func (c *BrokerCredentials) Complete() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

// BrokerSession is an authenticated broker session
type BrokerSession struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// RawHolding is one entry of the broker's holdings snapshot.
// Numeric fields are kept as sent (string or number) so that coercion
// failures can be reported per entry.
type RawHolding struct {
	Symbol          string      `json:"symbol" msgpack:"symbol"`
	Quantity        interface{} `json:"quantity" msgpack:"quantity"`
	AverageBuyPrice interface{} `json:"average_buy_price" msgpack:"average_buy_price"`
	Name            interface{} `json:"name" msgpack:"name"`
}

// RawOrder is one broker order with its executions
type RawOrder struct {
	ID            string         `json:"id" msgpack:"id"`
	Type          string         `json:"type" msgpack:"type"`
	Side          string         `json:"side" msgpack:"side"`
	State         string         `json:"state" msgpack:"state"`
	InstrumentRef string         `json:"instrument" msgpack:"instrument"`
	Executions    []RawExecution `json:"executions" msgpack:"executions"`
}

// RawExecution is a single fill inside an order
type RawExecution struct {
	ID        string      `json:"id" msgpack:"id"`
	Quantity  interface{} `json:"quantity" msgpack:"quantity"`
	Price     interface{} `json:"price" msgpack:"price"`
	Timestamp string      `json:"timestamp" msgpack:"timestamp"`
	// Fee sub-fields keyed by name: fees, sec_fee, taf_fee, cat_fee
	Fees map[string]interface{} `json:"fees" msgpack:"fees"`
}

// BrokerInstrument is the broker's description of a tradable instrument
type BrokerInstrument struct {
	ID     string
	Symbol string
	Name   string
}
