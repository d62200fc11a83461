package di

import (
	"context"
	"fmt"

	"github.com/aristath/folio/internal/clients/broker"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/events"
	"github.com/aristath/folio/internal/metrics"
	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/aristath/folio/internal/modules/settings"
	"github.com/aristath/folio/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients, repositories and services on top of the databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	if cfg.MetricsEnabled {
		container.Metrics = metrics.New()
	}

	// Repositories
	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)
	container.PositionRepo = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
	container.TradeRepo = portfolio.NewTradeRepository(container.PortfolioDB.Conn(), log)
	container.SnapshotRepo = portfolio.NewSnapshotRepository(container.PortfolioDB.Conn(), log)

	// Settings with sealed credentials
	key, err := cfg.SecretKeyBytes()
	if err != nil {
		return err
	}
	cipher, err := settings.NewCipher(key, log)
	if err != nil {
		return fmt.Errorf("failed to create credential cipher: %w", err)
	}
	secrets := settings.NewSealedStore(container.SettingsRepo, cipher, log)
	container.SettingsService = settings.NewService(container.SettingsRepo, secrets, container.EventManager, log)

	// Portfolio reads cash and BTC capital from settings
	container.PortfolioService = portfolio.NewPortfolioService(
		container.PositionRepo,
		container.TradeRepo,
		container.SnapshotRepo,
		container.SettingsService,
		container.EventManager,
		log,
	)

	// Object storage is optional
	var uploader brokersync.Uploader
	if cfg.Archive.RemoteEnabled() {
		r2Client, err := reliability.NewR2Client(ctx, cfg.Archive, log)
		if err != nil {
			return err
		}
		container.R2Client = r2Client
		container.BackupService = reliability.NewBackupService(container.Databases(), r2Client, cfg.DataDir, log)
		uploader = r2Client
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Object storage enabled for snapshots and backups")
	}
	container.Archive = brokersync.NewArchive(container.CacheDB.Conn(), cfg.Archive.Keep, uploader, cfg.Broker.Timeout, log)

	container.BrokerClient = broker.NewClient(broker.Config{
		BaseURL:   cfg.Broker.BaseURL,
		ClientID:  cfg.Broker.ClientID,
		RateLimit: cfg.Broker.RateLimit,
		Timeout:   cfg.Broker.Timeout,
	}, container.Metrics, log)

	container.Orchestrator = brokersync.NewOrchestrator(
		container.BrokerClient,
		container.SettingsService,
		container.SnapshotRepo,
		container.Archive,
		container.EventManager,
		container.Metrics,
		brokersync.Config{
			Source:      cfg.Broker.Name,
			CallTimeout: cfg.Broker.Timeout,
		},
		log,
	)

	log.Info().Msg("Services initialized")
	return nil
}
