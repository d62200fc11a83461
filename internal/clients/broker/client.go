// Package broker implements domain.BrokerClient over the broker REST API.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aristath/folio/internal/clients/broker/sdk"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/metrics"
	"github.com/rs/zerolog"
)

// Config configures the broker client
type Config = sdk.Options

// Client wraps the SDK client and converts responses to domain types
type Client struct {
	sdkClient *sdk.Client
	log       zerolog.Logger
}

// NewClient creates a new broker client
func NewClient(cfg Config, m *metrics.Metrics, log zerolog.Logger) *Client {
	cfg.Metrics = m
	return &Client{
		sdkClient: sdk.NewClient(cfg, log),
		log:       log.With().Str("client", "broker").Logger(),
	}
}

// Close stops the request worker
func (c *Client) Close() {
	c.sdkClient.Close()
}

// Login implements domain.BrokerClient
func (c *Client) Login(ctx context.Context, creds domain.BrokerCredentials) (*domain.BrokerSession, error) {
	c.log.Debug().Str("username", creds.Username).Bool("mfa", creds.MFA != "").Msg("Logging in")

	result, err := c.sdkClient.Token(ctx, creds.Username, creds.Password, creds.MFA)
	if err != nil {
		var apiErr *sdk.APIError
		if errors.As(err, &apiErr) && isAuthStatus(apiErr.StatusCode) {
			return nil, fmt.Errorf("login failed with status %d: %w", apiErr.StatusCode, domain.ErrAuthRejected)
		}
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	session, err := transformToken(result)
	if err != nil {
		return nil, err
	}

	c.log.Info().Msg("Logged in to broker")
	return session, nil
}

// FetchHoldings implements domain.BrokerClient
func (c *Client) FetchHoldings(ctx context.Context, session *domain.BrokerSession) ([]domain.RawHolding, error) {
	c.log.Debug().Msg("Fetching holdings")

	items, err := c.sdkClient.GetPaginated(ctx, session.AccessToken, "holdings/", "holdings")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holdings: %w", err)
	}

	holdings := transformHoldings(items, c.log)
	c.log.Debug().Int("count", len(holdings)).Msg("Fetched holdings")
	return holdings, nil
}

// FetchOrders implements domain.BrokerClient
func (c *Client) FetchOrders(ctx context.Context, session *domain.BrokerSession) ([]domain.RawOrder, error) {
	c.log.Debug().Msg("Fetching orders")

	items, err := c.sdkClient.GetPaginated(ctx, session.AccessToken, "orders/", "orders")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	orders := transformOrders(items, c.log)
	c.log.Debug().Int("count", len(orders)).Msg("Fetched orders")
	return orders, nil
}

// ResolveInstrument implements domain.BrokerClient
func (c *Client) ResolveInstrument(ctx context.Context, session *domain.BrokerSession, id string) (*domain.BrokerInstrument, error) {
	result, err := c.sdkClient.Get(ctx, session.AccessToken, "instruments/"+url.PathEscape(id)+"/", "instrument")
	if err != nil {
		var apiErr *sdk.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("instrument %s: %w", id, domain.ErrInstrumentNotFound)
		}
		return nil, fmt.Errorf("failed to resolve instrument %s: %w", id, err)
	}

	return transformInstrument(result, id)
}

// Logout implements domain.BrokerClient
func (c *Client) Logout(ctx context.Context, session *domain.BrokerSession) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	if err := c.sdkClient.RevokeToken(ctx, session.AccessToken); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

func isAuthStatus(code int) bool {
	return code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden
}

// Verify interface implementation
var _ domain.BrokerClient = (*Client)(nil)
