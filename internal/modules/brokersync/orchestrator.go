// Package brokersync pulls the broker account snapshot, normalizes it and
// commits it atomically. At most one attempt runs at a time.
package brokersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/events"
	"github.com/aristath/folio/internal/metrics"
	"github.com/aristath/folio/internal/modules/ingestion"
	"github.com/aristath/folio/internal/modules/instruments"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/aristath/folio/internal/modules/settings"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the orchestrator's position in the sync state machine
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateFetching       State = "fetching"
	StateNormalizing    State = "normalizing"
	StateCommitting     State = "committing"
)

// Trigger identifies what started an attempt
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
)

// Status is the outcome of a trigger
type Status string

const (
	StatusOK       Status = "ok"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
	// StatusSkipped is returned to timer triggers that found an attempt running
	StatusSkipped Status = "skipped"
)

const moduleName = "brokersync"

// SyncResult is returned by every trigger
type SyncResult struct {
	Status        Status                `json:"status"`
	AttemptID     string                `json:"attempt_id,omitempty"`
	Trigger       Trigger               `json:"trigger"`
	PositionCount int                   `json:"positions_count"`
	TradeCount    int                   `json:"trades_count"`
	Message       string                `json:"message"`
	Kind          string                `json:"error_kind,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
	Report        *ingestion.SyncReport `json:"report,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
	Err           error                 `json:"-"`
}

// StatusView combines integration settings, the committed sync and the live state
type StatusView struct {
	State          State       `json:"state"`
	Enabled        bool        `json:"enabled"`
	Display        bool        `json:"display"`
	HasCredentials bool        `json:"has_credentials"`
	LastPull       *time.Time  `json:"last_pull"`
	PositionsCount int         `json:"positions_count"`
	TradesCount    int         `json:"trades_count"`
	DividendsCount int         `json:"dividends_count"`
	RejectedCount  int         `json:"rejected_count"`
	LastResult     *SyncResult `json:"last_result,omitempty"`
}

// SettingsReader supplies integration settings and credentials
type SettingsReader interface {
	Get(ctx context.Context) (*settings.PortfolioSettings, error)
	Credentials(ctx context.Context) (*domain.BrokerCredentials, error)
}

// SnapshotStore commits normalized snapshots
type SnapshotStore interface {
	ReplaceSnapshot(ctx context.Context, snap portfolio.Snapshot) error
	GetStatus(ctx context.Context) (*portfolio.SyncStatus, error)
}

// Archiver keeps raw pulls. Failures never fail a sync.
type Archiver interface {
	Store(ctx context.Context, snap RawSnapshot) error
}

// Config configures the orchestrator
type Config struct {
	Source      string        // Position.Source for synced positions
	CallTimeout time.Duration // Bound for login and each fetch
}

// Orchestrator runs sync attempts
type Orchestrator struct {
	client    domain.BrokerClient
	resolver  *instruments.Resolver
	settings  SettingsReader
	snapshots SnapshotStore
	archive   Archiver
	events    *events.Manager
	metrics   *metrics.Metrics
	cfg       Config
	log       zerolog.Logger

	mu         sync.Mutex
	state      State
	lastResult *SyncResult
	wg         sync.WaitGroup

	now func() time.Time
}

// NewOrchestrator creates an orchestrator with its own instrument cache.
// archive, eventManager and m may be nil.
func NewOrchestrator(
	client domain.BrokerClient,
	settingsReader SettingsReader,
	snapshots SnapshotStore,
	archive Archiver,
	eventManager *events.Manager,
	m *metrics.Metrics,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.Source == "" {
		cfg.Source = "broker"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	return &Orchestrator{
		client:    client,
		resolver:  instruments.NewResolver(client, cfg.CallTimeout, m, log),
		settings:  settingsReader,
		snapshots: snapshots,
		archive:   archive,
		events:    eventManager,
		metrics:   m,
		cfg:       cfg,
		log:       log.With().Str("service", "brokersync").Logger(),
		state:     StateIdle,
		now:       time.Now,
	}
}

// TriggerManual runs one attempt and returns its result.
// A trigger while an attempt is running is rejected without any network call.
func (o *Orchestrator) TriggerManual(ctx context.Context) SyncResult {
	return o.trigger(ctx, TriggerManual)
}

// TriggerTimer runs one scheduled attempt. A busy orchestrator skips it silently.
func (o *Orchestrator) TriggerTimer(ctx context.Context) SyncResult {
	return o.trigger(ctx, TriggerTimer)
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastResult returns the result of the last finished attempt, or nil
func (o *Orchestrator) LastResult() *SyncResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastResult == nil {
		return nil
	}
	r := *o.lastResult
	return &r
}

// Wait blocks until the running attempt, if any, has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Status returns the integration status shown by the dashboard
func (o *Orchestrator) Status(ctx context.Context) (*StatusView, error) {
	view := &StatusView{State: o.State(), LastResult: o.LastResult()}

	current, err := o.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	view.Enabled = current.IntegrationEnabled
	view.Display = current.IntegrationDisplay
	view.HasCredentials = current.HasCredentials

	status, err := o.snapshots.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync status: %w", err)
	}
	view.LastPull = status.LastPull
	view.PositionsCount = status.PositionCount
	view.TradesCount = status.TradeCount
	view.DividendsCount = status.DividendCount
	view.RejectedCount = status.RejectedCount

	return view, nil
}

func (o *Orchestrator) trigger(ctx context.Context, trigger Trigger) SyncResult {
	if o.busy() {
		return o.refuseBusy(trigger)
	}

	creds, err := o.checkConfig(ctx)
	if err != nil {
		return o.refuseConfig(trigger, err)
	}

	attemptID := uuid.NewString()
	if !o.claim(attemptID, trigger) {
		return o.refuseBusy(trigger)
	}
	defer o.wg.Done()

	// The attempt outlives a disconnected caller; per-call timeouts bound it
	result := o.run(context.WithoutCancel(ctx), attemptID, trigger, *creds)

	o.mu.Lock()
	from := o.state
	o.state = StateIdle
	o.lastResult = &result
	o.mu.Unlock()
	o.emitTransition(attemptID, trigger, from, StateIdle)

	return result
}

func (o *Orchestrator) busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != StateIdle
}

// claim moves idle → authenticating. Returns false if another attempt won the race.
func (o *Orchestrator) claim(attemptID string, trigger Trigger) bool {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return false
	}
	o.state = StateAuthenticating
	o.wg.Add(1)
	o.mu.Unlock()

	o.emitTransition(attemptID, trigger, StateIdle, StateAuthenticating)
	return true
}

func (o *Orchestrator) advance(attemptID string, trigger Trigger, to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()
	o.emitTransition(attemptID, trigger, from, to)
}

func (o *Orchestrator) checkConfig(ctx context.Context) (*domain.BrokerCredentials, error) {
	current, err := o.settings.Get(ctx)
	if err != nil {
		return nil, &ConfigError{Reason: "settings unavailable", Err: err}
	}
	if !current.IntegrationEnabled {
		return nil, &ConfigError{Reason: "broker integration is not enabled"}
	}

	creds, err := o.settings.Credentials(ctx)
	if err != nil {
		return nil, &ConfigError{Reason: "credentials unreadable", Err: err}
	}
	if !creds.Complete() {
		return nil, &ConfigError{Reason: "broker credentials are missing"}
	}
	return creds, nil
}

func (o *Orchestrator) refuseBusy(trigger Trigger) SyncResult {
	now := o.now()
	if trigger == TriggerTimer {
		o.log.Debug().Msg("Sync already running, skipping scheduled attempt")
		o.metrics.SyncAttempt(string(trigger), string(StatusSkipped))
		return SyncResult{Status: StatusSkipped, Trigger: trigger, Message: ErrBusy.Error(), Kind: "busy", StartedAt: now, FinishedAt: now, Err: ErrBusy}
	}

	o.log.Info().Msg("Sync already running, rejecting manual trigger")
	o.metrics.SyncAttempt(string(trigger), string(StatusRejected))
	o.emit(&events.SyncRejectedData{Trigger: string(trigger), Reason: ErrBusy.Error()})
	return SyncResult{Status: StatusRejected, Trigger: trigger, Message: ErrBusy.Error(), Kind: "busy", StartedAt: now, FinishedAt: now, Err: ErrBusy}
}

func (o *Orchestrator) refuseConfig(trigger Trigger, err error) SyncResult {
	now := o.now()
	if trigger == TriggerTimer {
		// The timer fires whether or not the integration is on
		o.log.Debug().Err(err).Msg("Scheduled sync not configured")
	} else {
		o.log.Warn().Err(err).Msg("Sync rejected")
	}
	o.metrics.SyncAttempt(string(trigger), string(StatusRejected))
	o.emit(&events.SyncRejectedData{Trigger: string(trigger), Reason: err.Error()})
	return SyncResult{Status: StatusRejected, Trigger: trigger, Message: err.Error(), Kind: ErrorKind(err), StartedAt: now, FinishedAt: now, Err: err}
}

func (o *Orchestrator) run(ctx context.Context, attemptID string, trigger Trigger, creds domain.BrokerCredentials) SyncResult {
	log := o.log.With().Str("attempt_id", attemptID).Str("trigger", string(trigger)).Logger()
	started := o.now()
	result := SyncResult{AttemptID: attemptID, Trigger: trigger, StartedAt: started}

	fail := func(err error) SyncResult {
		result.Status = StatusError
		result.Message = err.Error()
		result.Kind = ErrorKind(err)
		result.Err = err
		result.FinishedAt = o.now()

		log.Error().Err(err).Str("kind", result.Kind).Msg("Sync failed")
		o.metrics.SyncAttempt(string(trigger), string(StatusError))
		o.metrics.SyncDuration(result.FinishedAt.Sub(started))
		o.emit(&events.SyncFailedData{AttemptID: attemptID, Trigger: string(trigger), Kind: result.Kind, Error: err.Error()})
		return result
	}

	log.Info().Msg("Sync started")

	session, err := o.login(ctx, creds)
	if err != nil {
		return fail(err)
	}
	defer o.logout(ctx, session, log)

	o.advance(attemptID, trigger, StateFetching)
	holdings, orders, err := o.fetch(ctx, session)
	if err != nil {
		return fail(err)
	}
	pulledAt := o.now()
	o.store(ctx, RawSnapshot{AttemptID: attemptID, PulledAt: pulledAt, Holdings: holdings, Orders: orders}, log)

	o.advance(attemptID, trigger, StateNormalizing)
	positions, positionReport := ingestion.NormalizePositions(holdings, o.cfg.Source)
	trades, tradeReport, err := ingestion.NormalizeTrades(ctx, orders, session, o.resolver)
	if err != nil {
		return fail(&FetchError{Stage: "instruments", Err: err})
	}
	report := positionReport.Merge(tradeReport)
	log.Debug().Int("cached_instruments", o.resolver.Len()).Msg("Orders normalized")

	o.metrics.SyncItems("position", "accepted", positionReport.Accepted)
	o.metrics.SyncItems("position", "rejected", len(positionReport.Rejected))
	o.metrics.SyncItems("trade", "accepted", tradeReport.Accepted)
	o.metrics.SyncItems("trade", "rejected", len(tradeReport.Rejected))
	o.metrics.SyncItems("order", "skipped", tradeReport.Skipped)

	for _, itemErr := range report.Rejected {
		log.Warn().Str("kind", itemErr.Kind).Str("key", itemErr.Key).Str("reason", itemErr.Reason).Msg("Record rejected")
	}
	if len(positions) == 0 && len(trades) == 0 {
		msg := "broker returned no usable positions or trades"
		result.Warnings = append(result.Warnings, msg)
		log.Warn().Int("holdings", len(holdings)).Int("orders", len(orders)).Msg(msg)
	}

	o.advance(attemptID, trigger, StateCommitting)
	err = o.snapshots.ReplaceSnapshot(ctx, portfolio.Snapshot{
		AttemptID:     attemptID,
		PulledAt:      pulledAt,
		Positions:     positions,
		Trades:        trades,
		Dividends:     []portfolio.Dividend{},
		RejectedCount: len(report.Rejected),
	})
	if err != nil {
		return fail(&PersistenceError{Err: err})
	}

	result.Status = StatusOK
	result.PositionCount = len(positions)
	result.TradeCount = len(trades)
	result.Report = &report
	result.FinishedAt = o.now()
	result.Message = fmt.Sprintf("Successfully pulled and mapped %d positions and %d trades", len(positions), len(trades))

	duration := result.FinishedAt.Sub(started)
	o.metrics.SyncAttempt(string(trigger), string(StatusOK))
	o.metrics.SyncDuration(duration)
	o.metrics.SyncCommitted(result.FinishedAt)

	log.Info().
		Int("positions", len(positions)).
		Int("trades", len(trades)).
		Int("rejected", len(report.Rejected)).
		Int("skipped", report.Skipped).
		Dur("duration", duration).
		Msg("Sync committed")

	o.emit(&events.SyncCompletedData{
		AttemptID:     attemptID,
		Trigger:       string(trigger),
		PositionCount: len(positions),
		TradeCount:    len(trades),
		RejectedCount: len(report.Rejected),
		DurationMs:    duration.Milliseconds(),
	})
	o.emit(&events.PortfolioChangedData{Source: "sync"})

	return result
}

func (o *Orchestrator) login(ctx context.Context, creds domain.BrokerCredentials) (*domain.BrokerSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	session, err := o.client.Login(callCtx, creds)
	if errors.Is(err, domain.ErrAuthRejected) {
		return nil, &AuthError{Err: err}
	}
	if err != nil {
		return nil, &FetchError{Stage: "login", Err: err}
	}
	if session == nil {
		return nil, &AuthError{Err: domain.ErrAuthRejected}
	}
	return session, nil
}

func (o *Orchestrator) fetch(ctx context.Context, session *domain.BrokerSession) ([]domain.RawHolding, []domain.RawOrder, error) {
	holdingsCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	holdings, err := o.client.FetchHoldings(holdingsCtx, session)
	cancel()
	if err != nil {
		return nil, nil, &FetchError{Stage: "holdings", Err: err}
	}

	ordersCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	orders, err := o.client.FetchOrders(ordersCtx, session)
	cancel()
	if err != nil {
		return nil, nil, &FetchError{Stage: "orders", Err: err}
	}

	return holdings, orders, nil
}

func (o *Orchestrator) logout(ctx context.Context, session *domain.BrokerSession, log zerolog.Logger) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	if err := o.client.Logout(callCtx, session); err != nil {
		log.Warn().Err(err).Msg("Broker logout failed")
	}
}

func (o *Orchestrator) store(ctx context.Context, snap RawSnapshot, log zerolog.Logger) {
	if o.archive == nil {
		return
	}
	if err := o.archive.Store(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("Failed to archive raw snapshot")
	}
}

func (o *Orchestrator) emitTransition(attemptID string, trigger Trigger, from, to State) {
	o.log.Debug().Str("attempt_id", attemptID).Str("from", string(from)).Str("to", string(to)).Msg("Sync state changed")
	o.emit(&events.SyncStateChangedData{AttemptID: attemptID, Trigger: string(trigger), From: string(from), To: string(to)})
}

func (o *Orchestrator) emit(data events.EventData) {
	if o.events == nil {
		return
	}
	o.events.EmitTyped(moduleName, data)
}

