package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"evmarket/pkg/contract"

	"github.com/ethereum/go-ethereum/common"
)

const ConfigFileName = ".evmarket.json"

// Environment overrides.
const (
	EnvRPCURL   = "MARKET_RPC_URL"
	EnvContract = "MARKET_CONTRACT"
)

const DefaultRPCURL = "http://localhost:8545"

// Config holds application-wide settings.
type Config struct {
	RPCURL                 string `json:"rpc_url"`
	ContractAddress        string `json:"contract_address"`
	ChainID                int64  `json:"chain_id,omitempty"`
	KeystoreDir            string `json:"keystore_dir,omitempty"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	PriceDecimals          int    `json:"price_decimals"`
	LogFile                string `json:"log_file,omitempty"`
	LogLevel               string `json:"log_level"`
	ServerPort             int    `json:"server_port"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		RPCURL:                 DefaultRPCURL,
		ContractAddress:        contract.DefaultAddress,
		RefreshIntervalSeconds: 30,
		PriceDecimals:          4,
		LogLevel:               "info",
		ServerPort:             8080,
	}
}

// Contract returns the marketplace address.
func (c Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// RefreshInterval is zero when background refresh is disabled.
func (c Config) RefreshInterval() time.Duration {
	if c.RefreshIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// Problems lists every validation failure.
func (c Config) Problems() []string {
	var problems []string
	if strings.TrimSpace(c.RPCURL) == "" {
		problems = append(problems, "rpc_url is empty")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		problems = append(problems, fmt.Sprintf("contract_address %q is not a valid address", c.ContractAddress))
	}
	if c.PriceDecimals < 0 || c.PriceDecimals > 18 {
		problems = append(problems, "price_decimals must be between 0 and 18")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		problems = append(problems, fmt.Sprintf("server_port %d is out of range", c.ServerPort))
	}
	return problems
}

// Validate joins all problems into one error.
func (c Config) Validate() error {
	problems := c.Problems()
	if len(problems) == 0 {
		return nil
	}
	return errors.New("validation failed: " + strings.Join(problems, "; "))
}

// ApplyEnv overrides file values from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		c.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvContract)); v != "" {
		c.ContractAddress = v
	}
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var raw struct {
		RPCURL                 string   `json:"rpc_url"`
		RPCURLs                []string `json:"rpc_urls"` // Legacy
		ContractAddress        string   `json:"contract_address"`
		ChainID                int64    `json:"chain_id"`
		KeystoreDir            string   `json:"keystore_dir"`
		RefreshIntervalSeconds *int     `json:"refresh_interval_seconds"`
		PriceDecimals          *int     `json:"price_decimals"`
		LogFile                string   `json:"log_file"`
		LogLevel               string   `json:"log_level"`
		ServerPort             *int     `json:"server_port"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	cfg.ChainID = raw.ChainID
	cfg.KeystoreDir = raw.KeystoreDir
	cfg.LogFile = raw.LogFile

	// Migration for configs that listed several endpoints
	if raw.RPCURL == "" && len(raw.RPCURLs) > 0 {
		raw.RPCURL = raw.RPCURLs[0]
	}
	if raw.RPCURL != "" {
		cfg.RPCURL = raw.RPCURL
	}
	if raw.ContractAddress != "" {
		cfg.ContractAddress = raw.ContractAddress
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.RefreshIntervalSeconds != nil {
		cfg.RefreshIntervalSeconds = *raw.RefreshIntervalSeconds
	}
	if raw.PriceDecimals != nil {
		cfg.PriceDecimals = *raw.PriceDecimals
	}
	if raw.ServerPort != nil {
		cfg.ServerPort = *raw.ServerPort
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RestoreLastBackup copies the newest backup written by SaveConfig over
// configPath and returns the backup it used.
func RestoreLastBackup(configPath string) (string, error) {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no backup files found for %s", configPath)
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", err
	}
	return lastBackup, nil
}
