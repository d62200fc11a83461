package domain

import "context"

// BrokerClient defines the broker operations used by the sync pipeline.
// Every call is bounded by the caller's context.
type BrokerClient interface {
	// Login authenticates and returns a session. Returns ErrAuthRejected
	// (possibly wrapped) when the broker refuses the credentials.
	Login(ctx context.Context, creds BrokerCredentials) (*BrokerSession, error)

	// FetchHoldings returns the holdings snapshot in broker order
	FetchHoldings(ctx context.Context, session *BrokerSession) ([]RawHolding, error)

	// FetchOrders returns all stock orders with their executions
	FetchOrders(ctx context.Context, session *BrokerSession) ([]RawOrder, error)

	// ResolveInstrument looks up an instrument by its broker identifier.
	// Returns ErrInstrumentNotFound when the broker has no such instrument.
	ResolveInstrument(ctx context.Context, session *BrokerSession, id string) (*BrokerInstrument, error)

	// Logout revokes the session
	Logout(ctx context.Context, session *BrokerSession) error
}
