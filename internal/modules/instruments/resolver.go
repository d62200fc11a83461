// Package instruments resolves broker instrument references to ticker symbols.
package instruments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrUnresolved means the broker could not name the instrument. Callers drop
// the order that referenced it and carry on.
var ErrUnresolved = errors.New("instrument could not be resolved")

// Resolver caches instrument reference → symbol lookups for its lifetime.
// Failed lookups are not cached, so the next sync retries them.
type Resolver struct {
	client  domain.BrokerClient
	timeout time.Duration // Per lookup; 0 leaves only the caller's deadline
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver creates a resolver backed by the given broker client
func NewResolver(client domain.BrokerClient, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *Resolver {
	return &Resolver{
		client:  client,
		timeout: timeout,
		metrics: m,
		log:     log.With().Str("component", "instrument_resolver").Logger(),
		cache:   make(map[string]string),
	}
}

// Resolve returns the symbol for an instrument reference.
//
// Parameters:
//   - ctx: Parent context; each broker call on a cache miss gets its own timeout
//   - session: Authenticated broker session
//   - ref: URL-like instrument reference, e.g. https://api.example.com/instruments/abc-123/
//
// Returns:
//   - string: Ticker symbol
//   - error: wraps ErrUnresolved when the broker has no usable answer for ref.
//     Deadline and cancellation errors are returned as-is so the caller can
//     abort instead of dropping every remaining order.
func (r *Resolver) Resolve(ctx context.Context, session *domain.BrokerSession, ref string) (string, error) {
	r.mu.RLock()
	symbol, ok := r.cache[ref]
	r.mu.RUnlock()
	if ok {
		r.metrics.ResolverLookup("hit")
		return symbol, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.metrics.ResolverLookup("miss")

	id := ExtractID(ref)
	if id == "" {
		r.metrics.ResolverLookup("failure")
		r.log.Warn().Str("ref", ref).Msg("Instrument reference has no identifier")
		return "", fmt.Errorf("%w: reference %q has no identifier", ErrUnresolved, ref)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	instrument, err := r.client.ResolveInstrument(callCtx, session, id)
	if err != nil {
		r.metrics.ResolverLookup("failure")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("instrument %s: %w", id, err)
		}
		r.log.Warn().Err(err).Str("instrument_id", id).Msg("Failed to resolve instrument")
		return "", fmt.Errorf("%w: %s: %v", ErrUnresolved, id, err)
	}
	if instrument == nil || strings.TrimSpace(instrument.Symbol) == "" {
		r.metrics.ResolverLookup("failure")
		r.log.Warn().Str("instrument_id", id).Msg("Broker returned no symbol for instrument")
		return "", fmt.Errorf("%w: %s has no symbol", ErrUnresolved, id)
	}

	symbol = strings.TrimSpace(instrument.Symbol)

	r.mu.Lock()
	r.cache[ref] = symbol
	r.mu.Unlock()

	return symbol, nil
}

// Len returns the number of cached references
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// ExtractID returns the last non-empty path segment of an instrument reference
func ExtractID(ref string) string {
	segments := strings.Split(strings.TrimSpace(ref), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
