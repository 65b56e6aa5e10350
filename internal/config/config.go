package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Network               domain.Network
	HorizonTestnetURL     string
	HorizonMainnetURL     string
	HorizonRetryMax       int
	HorizonRetryBaseDelay time.Duration
	HorizonTimeout        time.Duration
	SignerURL             string
	SignerIdentity        string
	SignerSignTimeout     time.Duration
	SignerKeyTimeout      time.Duration
	BridgeContractID      string
	SwapSlippageBps       int
	QuoteTTL              time.Duration
	StateDir              string
	DatabaseURL           string
	DatabaseMaxConns      int
	HTTPPort              string
	AdminAPIKey           string
	RateLimit             string
	ReconcileInterval     time.Duration
	ExportInterval        time.Duration
	ExportWindow          time.Duration
	GoogleSheetsID        string
	GoogleCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Network:               envOrDefaultNetwork("NETWORK", domain.NetworkTestnet),
		HorizonTestnetURL:     envOrDefault("HORIZON_TESTNET_URL", "https://horizon-testnet.stellar.org"),
		HorizonMainnetURL:     envOrDefault("HORIZON_MAINNET_URL", "https://horizon.stellar.org"),
		HorizonRetryMax:       envOrDefaultInt("HORIZON_RETRY_MAX", 3),
		HorizonRetryBaseDelay: envOrDefaultDuration("HORIZON_RETRY_BASE_DELAY", 1*time.Second),
		HorizonTimeout:        envOrDefaultDuration("HORIZON_TIMEOUT", 30*time.Second),
		SignerURL:             envOrDefaultWarn("SIGNER_URL", ""),
		SignerIdentity:        envOrDefault("SIGNER_IDENTITY", "default"),
		SignerSignTimeout:     envOrDefaultDuration("SIGNER_SIGN_TIMEOUT", 60*time.Second),
		SignerKeyTimeout:      envOrDefaultDuration("SIGNER_KEY_TIMEOUT", 15*time.Second),
		BridgeContractID:      envOrDefault("BRIDGE_CONTRACT_ID", ""),
		SwapSlippageBps:       envOrDefaultBps("SWAP_SLIPPAGE_BPS", 100),
		QuoteTTL:              envOrDefaultDuration("QUOTE_TTL", 10*time.Second),
		StateDir:              envOrDefault("STATE_DIR", defaultStateDir()),
		DatabaseURL:           envOrDefault("DATABASE_URL", ""),
		DatabaseMaxConns:      envOrDefaultInt("DATABASE_MAX_CONNS", 10),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           envOrDefault("ADMIN_API_KEY", ""),
		RateLimit:             envOrDefault("RATE_LIMIT", "30-M"),
		ReconcileInterval:     envOrDefaultInterval("RECONCILE_INTERVAL", 1*time.Minute),
		ExportInterval:        envOrDefaultInterval("EXPORT_INTERVAL", 1*time.Hour),
		ExportWindow:          envOrDefaultDuration("EXPORT_WINDOW", 30*24*time.Hour),
		GoogleSheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

// HorizonURL returns the Horizon root configured for the network.
func (c Config) HorizonURL(n domain.Network) string {
	if n == domain.NetworkMainnet {
		return c.HorizonMainnetURL
	}
	return c.HorizonTestnetURL
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c Config) SheetsEnabled() bool {
	return c.GoogleSheetsID != "" && c.GoogleCredentialsJSON != ""
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".kosh"
	}
	return dir + string(os.PathSeparator) + "kosh"
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

// envOrDefaultBps accepts basis points in [0, 10000).
func envOrDefaultBps(key string, defaultVal int) int {
	n := envOrDefaultInt(key, defaultVal)
	if n < 0 || n >= 10000 {
		slog.Warn("basis points env var out of range, using default", "key", key, "value", n, "default", defaultVal)
		return defaultVal
	}
	return n
}

func envOrDefaultInterval(key string, defaultVal time.Duration) time.Duration {
	d := envOrDefaultDuration(key, defaultVal)
	if d <= 0 {
		slog.Warn("interval env var must be positive, using default", "key", key, "value", d, "default", defaultVal)
		return defaultVal
	}
	return d
}

func envOrDefaultNetwork(key string, defaultVal domain.Network) domain.Network {
	if v := os.Getenv(key); v != "" {
		n, err := domain.ParseNetwork(v)
		if err != nil {
			slog.Warn("invalid network env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}
