package settings

// Setting keys stored in config.db
const (
	KeyCash               = "total_portfolio_cash"
	KeyBTCDollarValue     = "total_portfolio_btc"
	KeyBTCAvgBuyPrice     = "btc_avg_buy_price"
	KeyIntegrationEnabled = "broker_enabled"
	KeyIntegrationDisplay = "broker_display"

	// Credential fields accepted by Update. They are sealed by the SecretStore
	// and stored together under KeyCredentials, never as plain settings.
	KeyUsername = "broker_username"
	KeyPassword = "broker_password"
	KeyMFA      = "broker_mfa"

	KeyCredentials = "broker_credentials"
)

// Setting kinds drive coercion in Update
const (
	KindNumber = "number"
	KindBool   = "bool"
	KindString = "string"
	KindSecret = "secret"
)

// SettingKinds lists every user-settable key and how its value is coerced
var SettingKinds = map[string]string{
	KeyCash:               KindNumber,
	KeyBTCDollarValue:     KindNumber,
	KeyBTCAvgBuyPrice:     KindNumber,
	KeyIntegrationEnabled: KindBool,
	KeyIntegrationDisplay: KindBool,
	KeyUsername:           KindString,
	KeyPassword:           KindSecret,
	KeyMFA:                KindSecret,
}

// SettingDescriptions holds human-readable descriptions for all settings
var SettingDescriptions = map[string]string{
	KeyCash:               "Baseline capital in USD; the part not invested in positions is shown as cash",
	KeyBTCDollarValue:     "Dollar value of BTC held outside the broker",
	KeyBTCAvgBuyPrice:     "Average BTC buy price, used to show the implied BTC quantity",
	KeyIntegrationEnabled: "Allow syncing positions and trades from the broker",
	KeyIntegrationDisplay: "Show broker-synced data in the dashboard",
	KeyCredentials:        "Sealed broker login bundle",
}

// IsKnownKey reports whether key can be written through Update
func IsKnownKey(key string) bool {
	_, ok := SettingKinds[key]
	return ok
}
