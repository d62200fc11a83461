package testing

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// MockBrokerClient is a thread-safe mock implementation of domain.BrokerClient for testing.
// It records how many times each call was made so tests can assert that no network
// traffic happened.
type MockBrokerClient struct {
	mu          sync.RWMutex
	holdings    []domain.RawHolding
	orders      []domain.RawOrder
	instruments map[string]*domain.BrokerInstrument

	loginErr    error
	holdingsErr error
	ordersErr   error
	resolveErr  error
	logoutErr   error

	// loginGate, when set, blocks Login until it is closed or ctx is done
	loginGate chan struct{}

	// resolveDelay is spent inside every ResolveInstrument call, bounded by ctx
	resolveDelay time.Duration

	loginCalls    int
	holdingsCalls int
	ordersCalls   int
	resolveCalls  int
	logoutCalls   int
}

// NewMockBrokerClient creates a new mock broker client
func NewMockBrokerClient() *MockBrokerClient {
	return &MockBrokerClient{
		holdings:    make([]domain.RawHolding, 0),
		orders:      make([]domain.RawOrder, 0),
		instruments: make(map[string]*domain.BrokerInstrument),
	}
}

// SetHoldings sets the holdings snapshot to return
func (m *MockBrokerClient) SetHoldings(holdings []domain.RawHolding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings = holdings
}

// SetOrders sets the orders to return
func (m *MockBrokerClient) SetOrders(orders []domain.RawOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = orders
}

// AddInstrument registers an instrument resolvable by id
func (m *MockBrokerClient) AddInstrument(id, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instruments[id] = &domain.BrokerInstrument{ID: id, Symbol: symbol}
}

// SetLoginError makes Login fail
func (m *MockBrokerClient) SetLoginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginErr = err
}

// SetHoldingsError makes FetchHoldings fail
func (m *MockBrokerClient) SetHoldingsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdingsErr = err
}

// SetOrdersError makes FetchOrders fail
func (m *MockBrokerClient) SetOrdersError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ordersErr = err
}

// SetResolveError makes every ResolveInstrument call fail
func (m *MockBrokerClient) SetResolveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveErr = err
}

// SetResolveDelay makes every ResolveInstrument call take d, or fail with
// ctx.Err() when the context ends first
func (m *MockBrokerClient) SetResolveDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveDelay = d
}

// SetLogoutError makes Logout fail
func (m *MockBrokerClient) SetLogoutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutErr = err
}

// BlockLogin makes Login wait until the returned release function is called
func (m *MockBrokerClient) BlockLogin() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.loginGate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Login implements domain.BrokerClient
func (m *MockBrokerClient) Login(ctx context.Context, creds domain.BrokerCredentials) (*domain.BrokerSession, error) {
	m.mu.Lock()
	m.loginCalls++
	gate := m.loginGate
	err := m.loginErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.BrokerSession{AccessToken: "token-" + creds.Username, TokenType: "Bearer"}, nil
}

// FetchHoldings implements domain.BrokerClient
func (m *MockBrokerClient) FetchHoldings(ctx context.Context, session *domain.BrokerSession) ([]domain.RawHolding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdingsCalls++
	if m.holdingsErr != nil {
		return nil, m.holdingsErr
	}
	return m.holdings, nil
}

// FetchOrders implements domain.BrokerClient
func (m *MockBrokerClient) FetchOrders(ctx context.Context, session *domain.BrokerSession) ([]domain.RawOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ordersCalls++
	if m.ordersErr != nil {
		return nil, m.ordersErr
	}
	return m.orders, nil
}

// ResolveInstrument implements domain.BrokerClient
func (m *MockBrokerClient) ResolveInstrument(ctx context.Context, session *domain.BrokerSession, id string) (*domain.BrokerInstrument, error) {
	m.mu.Lock()
	m.resolveCalls++
	delay := m.resolveDelay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	inst, ok := m.instruments[id]
	if !ok {
		return nil, domain.ErrInstrumentNotFound
	}
	return inst, nil
}

// Logout implements domain.BrokerClient
func (m *MockBrokerClient) Logout(ctx context.Context, session *domain.BrokerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return m.logoutErr
}

// LoginCalls returns the number of Login calls
func (m *MockBrokerClient) LoginCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loginCalls
}

// FetchCalls returns the combined number of holdings and orders fetches
func (m *MockBrokerClient) FetchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holdingsCalls + m.ordersCalls
}

// ResolveCalls returns the number of ResolveInstrument calls
func (m *MockBrokerClient) ResolveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveCalls
}

// LogoutCalls returns the number of Logout calls
func (m *MockBrokerClient) LogoutCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logoutCalls
}

// Verify interface implementation
var _ domain.BrokerClient = (*MockBrokerClient)(nil)
