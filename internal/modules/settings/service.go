package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/events"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PortfolioSettings is the user-facing view of the settings.
// Secrets are never returned; HasCredentials reports whether a login is stored.
type PortfolioSettings struct {
	Cash               decimal.Decimal `json:"total_portfolio_cash"`
	BTCDollarValue     decimal.Decimal `json:"total_portfolio_btc"`
	BTCAvgBuyPrice     decimal.Decimal `json:"btc_avg_buy_price"`
	IntegrationEnabled bool            `json:"broker_enabled"`
	IntegrationDisplay bool            `json:"broker_display"`
	Username           string          `json:"broker_username"`
	HasCredentials     bool            `json:"has_credentials"`
}

// Service provides typed access to settings and credentials
type Service struct {
	repo    *Repository
	secrets SecretStore
	events  *events.Manager
	log     zerolog.Logger
}

// NewService creates a new settings service
func NewService(repo *Repository, secrets SecretStore, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		secrets: secrets,
		events:  eventManager,
		log:     log.With().Str("service", "settings").Logger(),
	}
}

// Get returns the current settings with defaults for anything never written
func (s *Service) Get(ctx context.Context) (*PortfolioSettings, error) {
	capital, err := s.GetCapital(ctx)
	if err != nil {
		return nil, err
	}

	enabled, err := s.repo.GetBool(KeyIntegrationEnabled, false)
	if err != nil {
		return nil, err
	}
	display, err := s.repo.GetBool(KeyIntegrationDisplay, false)
	if err != nil {
		return nil, err
	}

	result := &PortfolioSettings{
		Cash:               capital.Cash,
		BTCDollarValue:     capital.BTCDollarValue,
		BTCAvgBuyPrice:     capital.BTCAvgBuyPrice,
		IntegrationEnabled: enabled,
		IntegrationDisplay: display,
	}

	creds, err := s.secrets.Load(ctx)
	if err != nil {
		// Unreadable credentials must not hide the rest of the settings
		s.log.Warn().Err(err).Msg("Failed to load broker credentials")
	} else if creds != nil {
		result.Username = creds.Username
		result.HasCredentials = creds.Complete()
	}

	return result, nil
}

// Update applies a partial update. Only keys present in the map are written.
// Numbers fall back to 0 when not numeric (negative values are clamped to 0),
// booleans are coerced, strings default to "". Unknown keys are ignored.
func (s *Service) Update(ctx context.Context, partial map[string]interface{}) (*PortfolioSettings, error) {
	values := make(map[string]string)
	var (
		credFields = make(map[string]string)
		written    []string
	)

	for key, raw := range partial {
		kind, ok := SettingKinds[key]
		if !ok {
			s.log.Warn().Str("key", key).Msg("Ignoring unknown setting")
			continue
		}

		switch kind {
		case KindNumber:
			values[key] = coerceNumber(raw).String()
		case KindBool:
			values[key] = strconv.FormatBool(coerceBool(raw))
		case KindString:
			credFields[key] = coerceString(raw)
		case KindSecret:
			// secrets keep surrounding whitespace
			if str, ok := raw.(string); ok {
				credFields[key] = str
			} else {
				credFields[key] = coerceString(raw)
			}
		}
		written = append(written, key)
	}

	if err := s.repo.SetMany(ctx, values); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	if len(credFields) > 0 {
		if err := s.updateCredentials(ctx, credFields); err != nil {
			return nil, err
		}
	}

	if len(written) > 0 {
		sort.Strings(written)
		s.log.Info().Strs("keys", written).Msg("Settings updated")
		if s.events != nil {
			s.events.EmitTyped("settings", &events.SettingsChangedData{Keys: written})
		}
	}

	return s.Get(ctx)
}

func (s *Service) updateCredentials(ctx context.Context, fields map[string]string) error {
	creds, err := s.secrets.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Replacing unreadable broker credentials")
		creds = nil
	}
	if creds == nil {
		creds = &domain.BrokerCredentials{}
	}

	if v, ok := fields[KeyUsername]; ok {
		creds.Username = v
	}
	if v, ok := fields[KeyPassword]; ok {
		creds.Password = v
	}
	if v, ok := fields[KeyMFA]; ok {
		creds.MFA = v
	}

	if creds.Username == "" && creds.Password == "" && creds.MFA == "" {
		return s.secrets.Clear(ctx)
	}
	return s.secrets.Save(ctx, *creds)
}

// GetCapital returns the declared capital used by valuation
func (s *Service) GetCapital(ctx context.Context) (portfolio.Capital, error) {
	var (
		capital portfolio.Capital
		err     error
	)
	if capital.Cash, err = s.repo.GetDecimal(KeyCash, decimal.Zero); err != nil {
		return capital, err
	}
	if capital.BTCDollarValue, err = s.repo.GetDecimal(KeyBTCDollarValue, decimal.Zero); err != nil {
		return capital, err
	}
	if capital.BTCAvgBuyPrice, err = s.repo.GetDecimal(KeyBTCAvgBuyPrice, decimal.Zero); err != nil {
		return capital, err
	}
	return capital, nil
}

// IntegrationEnabled reports whether broker sync is switched on
func (s *Service) IntegrationEnabled(ctx context.Context) (bool, error) {
	return s.repo.GetBool(KeyIntegrationEnabled, false)
}

// Credentials returns the stored broker login, or nil
func (s *Service) Credentials(ctx context.Context) (*domain.BrokerCredentials, error) {
	return s.secrets.Load(ctx)
}

func coerceNumber(v interface{}) decimal.Decimal {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case json.Number:
		d, _ = decimal.NewFromString(x.String())
	case string:
		d, _ = decimal.NewFromString(strings.TrimSpace(x))
	case bool:
		if x {
			d = decimal.NewFromInt(1)
		}
	case decimal.Decimal:
		d = x
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func coerceBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "on":
			return true
		}
	}
	return false
}

func coerceString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return fmt.Sprint(x)
	}
}
