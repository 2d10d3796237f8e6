package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Solana struct {
		RPCEndpoint string `yaml:"rpc_endpoint"`
		WSEndpoint  string `yaml:"ws_endpoint"`
	} `yaml:"solana"`
	Wallet struct {
		Mnemonic           string `yaml:"mnemonic"`
		ColdStorageAddress string `yaml:"cold_storage_address"`
	} `yaml:"wallet"`
	Payments struct {
		SessionTTLSeconds  int `yaml:"session_ttl_seconds"`
		SignatureScanLimit int `yaml:"signature_scan_limit"`
	} `yaml:"payments"`
	Converter struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"converter"`
	Worker struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Solana.RPCEndpoint == "" {
		return nil, errors.New("solana.rpc_endpoint is required")
	}
	if cfg.Wallet.Mnemonic == "" {
		return nil, errors.New("wallet.mnemonic is required")
	}
	if cfg.Wallet.ColdStorageAddress == "" {
		return nil, errors.New("wallet.cold_storage_address is required")
	}
	if cfg.Converter.Provider == "coingecko" && cfg.Converter.APIKey == "" {
		return nil, errors.New("converter.api_key is required for the coingecko provider")
	}
	if cfg.Converter.Provider != "static" && cfg.Converter.Provider != "coingecko" {
		return nil, errors.New("converter.provider must be static or coingecko")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Converter.Provider == "" {
		cfg.Converter.Provider = "static"
	}
	if cfg.Payments.SessionTTLSeconds <= 0 {
		cfg.Payments.SessionTTLSeconds = 300
	}
	if cfg.Payments.SignatureScanLimit <= 0 {
		cfg.Payments.SignatureScanLimit = 20
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 20
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("SOLANA_RPC_ENDPOINT"); v != "" {
		cfg.Solana.RPCEndpoint = v
	}
	if v := os.Getenv("SOLANA_WS_ENDPOINT"); v != "" {
		cfg.Solana.WSEndpoint = v
	}
	if v := os.Getenv("WALLET_MNEMONIC"); v != "" {
		cfg.Wallet.Mnemonic = v
	}
	if v := os.Getenv("COLD_STORAGE_ADDRESS"); v != "" {
		cfg.Wallet.ColdStorageAddress = v
	}
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		cfg.Payments.SessionTTLSeconds = atoiOr(cfg.Payments.SessionTTLSeconds, v)
	}
	if v := os.Getenv("SIGNATURE_SCAN_LIMIT"); v != "" {
		cfg.Payments.SignatureScanLimit = atoiOr(cfg.Payments.SignatureScanLimit, v)
	}
	if v := os.Getenv("CONVERTER_PROVIDER"); v != "" {
		cfg.Converter.Provider = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Converter.APIKey = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
