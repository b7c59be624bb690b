package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Config is the node process's JSON-tagged configuration, loadable
// from a file and overridable by CLI flags.
type Config struct {
	Network       string `json:"network"`
	DataDir       string `json:"data_dir"`
	BindAddr      string `json:"bind_addr"`
	LogLevel      string `json:"log_level"`
	LogJSON       bool   `json:"log_json"`
	Mine          bool   `json:"mine"`
	PayoutAddress string `json:"payout_address"`
	MempoolMaxTx  int    `json:"mempool_max_tx"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedNetworks = map[string]struct{}{
	"mainnet":  {},
	"testnet":  {},
	"regtest":  {},
}

// DefaultDataDir returns the node's default data directory under the
// user's home directory, falling back to a relative path if the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".btpc"
	}
	return filepath.Join(home, ".btpc")
}

// DefaultConfig returns the node's out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{
		Network:      "mainnet",
		DataDir:      DefaultDataDir(),
		BindAddr:     "0.0.0.0:8733",
		LogLevel:     "info",
		LogJSON:      false,
		Mine:         false,
		MempoolMaxTx: 5000,
	}
}

// ValidateConfig checks cfg for internal consistency before the node
// starts up.
func ValidateConfig(cfg Config) error {
	network := strings.ToLower(strings.TrimSpace(cfg.Network))
	if _, ok := allowedNetworks[network]; !ok {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.Mine && strings.TrimSpace(cfg.PayoutAddress) == "" {
		return errors.New("payout_address is required when mine is true")
	}
	if cfg.MempoolMaxTx <= 0 {
		return errors.New("mempool_max_tx must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
