package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gregtusar/dexmaker/pkg/secrets"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Stellar StellarConfig `mapstructure:"stellar"`
	Market  MarketConfig  `mapstructure:"market"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type StellarConfig struct {
	Seed              string  `mapstructure:"seed"`
	HorizonURL        string  `mapstructure:"horizon_url"`
	Network           string  `mapstructure:"network"` // "public" or "testnet"
	BaseFee           int64   `mapstructure:"base_fee"`
	TxTimeout         int     `mapstructure:"tx_timeout"`   // seconds
	HTTPTimeout       int     `mapstructure:"http_timeout"` // seconds
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type AssetConfig struct {
	Code   string `mapstructure:"code"`
	Issuer string `mapstructure:"issuer"` // empty for the native asset
}

type MarketConfig struct {
	BaseAsset     AssetConfig `mapstructure:"base_asset"`
	CounterAsset  AssetConfig `mapstructure:"counter_asset"`
	BuyingRate    float64     `mapstructure:"buying_rate"`
	BuyingAmount  float64     `mapstructure:"buying_amount"`
	SellingRate   float64     `mapstructure:"selling_rate"`
	SellingAmount float64     `mapstructure:"selling_amount"`
	PollInterval  int         `mapstructure:"poll_interval"` // seconds
}

type RetryConfig struct {
	InitialIntervalMs int     `mapstructure:"initial_interval_ms"`
	MaxIntervalMs     int     `mapstructure:"max_interval_ms"`
	Multiplier        float64 `mapstructure:"multiplier"`
}

type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Port       int    `mapstructure:"port"`
	AuthSecret string `mapstructure:"auth_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dexmaker")
	}

	// DEXMAKER_MARKET_POLL_INTERVAL overrides market.poll_interval
	v.SetEnvPrefix("DEXMAKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" && config.Stellar.Seed == "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Stellar defaults
	v.SetDefault("stellar.horizon_url", "https://horizon.stellar.org")
	v.SetDefault("stellar.network", "public")
	v.SetDefault("stellar.base_fee", 100)
	v.SetDefault("stellar.tx_timeout", 300)
	v.SetDefault("stellar.http_timeout", 30)
	v.SetDefault("stellar.requests_per_second", 5)
	v.SetDefault("stellar.burst", 5)

	// Market defaults
	v.SetDefault("market.base_asset.code", "XLM")
	v.SetDefault("market.base_asset.issuer", "")
	v.SetDefault("market.counter_asset.code", "")
	v.SetDefault("market.counter_asset.issuer", "")
	v.SetDefault("market.buying_rate", 0.02)
	v.SetDefault("market.buying_amount", 10)
	v.SetDefault("market.selling_rate", 0.02)
	v.SetDefault("market.selling_amount", 10)
	v.SetDefault("market.poll_interval", 3)

	// Retry defaults
	v.SetDefault("retry.initial_interval_ms", 500)
	v.SetDefault("retry.max_interval_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)

	// Server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_secret", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")
	v.SetDefault("gcp.secret_names.stellar_seed", secrets.DefaultSecretNames().StellarSeed)
}

func overrideFromEnv(config *Config) {
	if seed := os.Getenv("STELLAR_SEED"); seed != "" {
		config.Stellar.Seed = seed
	}
	if url := os.Getenv("HORIZON_URL"); url != "" {
		config.Stellar.HorizonURL = url
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

// newSecretStore is replaced in tests.
var newSecretStore = func(ctx context.Context, projectID, credentialsFile string, logger *logrus.Logger) (secrets.Store, error) {
	return secrets.NewGCPSecretManager(ctx, projectID, credentialsFile, logger)
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	store, err := newSecretStore(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer store.Close()

	name := config.GCP.SecretNames.StellarSeed
	seed, err := store.GetSecret(ctx, name)
	if err != nil {
		return err
	}
	config.Stellar.Seed = seed

	logger.WithField("secret", name).Info("Loaded stellar seed from GCP Secret Manager")
	return nil
}
