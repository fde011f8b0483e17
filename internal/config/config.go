package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "config/config.yml"

// Config holds the overall configuration for the application.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Swagger       SwaggerConfig       `yaml:"swagger"`
	Networks      NetworksConfig      `yaml:"networks"`
	RpcClient     RpcClientConfig     `yaml:"rpcClient"`
	Wallet        WalletConfig        `yaml:"wallet"`
	Portfolio     PortfolioConfig     `yaml:"portfolio"`
	Opportunities OpportunitiesConfig `yaml:"opportunities"`
	TxWatcher     TxWatcherConfig     `yaml:"txWatcher"`
	OnRamper      OnRamperConfig      `yaml:"onRamper"`
}

// ServerConfig holds the server-specific configuration.
type ServerConfig struct {
	Port            string `yaml:"port"`
	ReadTimeout     int    `yaml:"readTimeout"`
	WriteTimeout    int    `yaml:"writeTimeout"`
	IdleTimeout     int    `yaml:"idleTimeout"`
	ShutdownTimeout int    `yaml:"shutdownTimeout"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	Development bool   `yaml:"development"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NetworksConfig selects the active networks: a network is active when its
// token file exists in TokenDirectory.
type NetworksConfig struct {
	TokenDirectory string            `yaml:"tokenDirectory"`
	RPCOverrides   map[string]string `yaml:"rpcOverrides"` // network identifier -> RPC URL
}

// RpcClientConfig holds configuration for RPC clients.
type RpcClientConfig struct {
	DefaultTimeoutMs int64 `yaml:"defaultTimeoutMs"`
}

// WalletConfig names the environment variables holding the wallet secret.
type WalletConfig struct {
	MnemonicEnv      string `yaml:"mnemonicEnv"`
	PassphraseEnv    string `yaml:"passphraseEnv"`
	AccountsPerChain uint32 `yaml:"accountsPerChain"`
}

// PortfolioConfig holds configuration for portfolio reconciliation.
type PortfolioConfig struct {
	MaxConcurrentRoutines int `yaml:"maxConcurrentRoutines"`
	SyncIntervalSeconds   int `yaml:"syncIntervalSeconds"`
}

// FarmingContractConfig is one FOX farming deployment.
type FarmingContractConfig struct {
	Address   string `yaml:"address"`
	Name      string `yaml:"name"`
	ExpiredAt int64  `yaml:"expiredAt"`
}

// FoxEthConfig overrides the FOX/ETH contract addresses.
type FoxEthConfig struct {
	PairAddress      string                  `yaml:"pairAddress"`
	FoxAddress       string                  `yaml:"foxAddress"`
	FarmingContracts []FarmingContractConfig `yaml:"farmingContracts"`
}

// OpportunitiesConfig holds configuration for the opportunity service and tracker.
type OpportunitiesConfig struct {
	CacheTTLSeconds     int          `yaml:"cacheTTLSeconds"`
	Concurrency         int          `yaml:"concurrency"`
	FetchTimeoutSeconds int          `yaml:"fetchTimeoutSeconds"`
	FoxEth              FoxEthConfig `yaml:"foxEth"`
}

// TxWatcherConfig holds configuration for receipt polling.
type TxWatcherConfig struct {
	PollIntervalSeconds int     `yaml:"pollIntervalSeconds"`
	RequestsPerSecond   float64 `yaml:"requestsPerSecond"`
}

// OnRamperConfig holds the configuration for the OnRamper client.
type OnRamperConfig struct {
	APIURL                string `yaml:"apiURL"`
	WidgetURL             string `yaml:"widgetURL"`
	APIKey                string `yaml:"apiKey"`
	APIKeyEnv             string `yaml:"apiKeyEnv"`
	RequestTimeoutMillis  int64  `yaml:"requestTimeoutMillis"`
	AssetsCacheTTLMinutes int    `yaml:"assetsCacheTTLMinutes"`
}

// PathFromEnv returns CONFIG_PATH or the default path.
func PathFromEnv() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if cfg.OnRamper.APIKey == "" && cfg.OnRamper.APIKeyEnv != "" {
		cfg.OnRamper.APIKey = os.Getenv(cfg.OnRamper.APIKeyEnv)
	}
	if cfg.OnRamper.APIKey == "" {
		logrus.Warn("OnRamper API key is not configured. Fiat ramp requests will be rejected upstream.")
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
		logrus.Infof("Server.Port not set, defaulting to %s", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Swagger.Path == "" {
		cfg.Swagger.Path = "./docs/swagger.yaml"
	}
	if cfg.Networks.TokenDirectory == "" {
		cfg.Networks.TokenDirectory = "data/tokens"
		logrus.Infof("Networks.TokenDirectory not set, defaulting to %s", cfg.Networks.TokenDirectory)
	}
	if cfg.RpcClient.DefaultTimeoutMs <= 0 {
		cfg.RpcClient.DefaultTimeoutMs = 15000
		logrus.Infof("RpcClient.DefaultTimeoutMs not set, defaulting to %d ms", cfg.RpcClient.DefaultTimeoutMs)
	}
	if cfg.Wallet.MnemonicEnv == "" {
		cfg.Wallet.MnemonicEnv = "WALLET_MNEMONIC"
	}
	if cfg.Wallet.AccountsPerChain == 0 {
		cfg.Wallet.AccountsPerChain = 1
	}
	if cfg.Portfolio.MaxConcurrentRoutines <= 0 {
		cfg.Portfolio.MaxConcurrentRoutines = 10
		logrus.Infof("Portfolio.MaxConcurrentRoutines not set, defaulting to %d", cfg.Portfolio.MaxConcurrentRoutines)
	}
	if cfg.Portfolio.SyncIntervalSeconds <= 0 {
		cfg.Portfolio.SyncIntervalSeconds = 60
	}
	if cfg.Opportunities.CacheTTLSeconds <= 0 {
		cfg.Opportunities.CacheTTLSeconds = 60
	}
	if cfg.Opportunities.Concurrency <= 0 {
		cfg.Opportunities.Concurrency = 4
	}
	if cfg.Opportunities.FetchTimeoutSeconds <= 0 {
		cfg.Opportunities.FetchTimeoutSeconds = 30
	}
	if cfg.TxWatcher.PollIntervalSeconds <= 0 {
		cfg.TxWatcher.PollIntervalSeconds = 5
	}
	if cfg.OnRamper.APIURL == "" {
		cfg.OnRamper.APIURL = "https://onramper.tech/"
		logrus.Infof("OnRamper.APIURL not set, defaulting to %s", cfg.OnRamper.APIURL)
	}
	if cfg.OnRamper.WidgetURL == "" {
		cfg.OnRamper.WidgetURL = "https://widget.onramper.com"
	}
	if cfg.OnRamper.RequestTimeoutMillis <= 0 {
		cfg.OnRamper.RequestTimeoutMillis = 10000
	}
	if cfg.OnRamper.AssetsCacheTTLMinutes <= 0 {
		cfg.OnRamper.AssetsCacheTTLMinutes = 10
	}
}
