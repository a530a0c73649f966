// Package config loads backingd configuration from defaults, a TOML file
// and BACKINGD_ environment overrides, in that priority order.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"math/big"

	"github.com/crclabs/backingd/internal/core/backing"
	"github.com/crclabs/backingd/internal/core/deriver"
	"github.com/crclabs/backingd/internal/storage/eventdb"
)

// Config is the complete backingd configuration.
type Config struct {
	Node     NodeConfig     `toml:"node" mapstructure:"node"`
	RPC      RPCConfig      `toml:"rpc" mapstructure:"rpc"`
	EventDB  EventDBConfig  `toml:"event_db" mapstructure:"event_db"`
	Protocol ProtocolConfig `toml:"protocol" mapstructure:"protocol"`

	configPath string `toml:"-" mapstructure:"-"`
}

// ConfigPath returns the file the config was loaded from, empty when running
// on defaults and environment only.
func (c *Config) ConfigPath() string { return c.configPath }

// NodeConfig covers local storage.
type NodeConfig struct {
	DataDir   string `toml:"data_dir" mapstructure:"data_dir"`
	KVEngine  string `toml:"kv_engine" mapstructure:"kv_engine"` // pebble or leveldb
	CacheSize int    `toml:"cache_size" mapstructure:"cache_size"`
}

// RPCConfig covers the HTTP/websocket listener.
type RPCConfig struct {
	Listen         string `toml:"listen" mapstructure:"listen"`
	TimeoutSeconds int    `toml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (c RPCConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EventDBConfig covers the relational event index.
type EventDBConfig struct {
	Enabled          bool   `toml:"enabled" mapstructure:"enabled"`
	Driver           string `toml:"driver" mapstructure:"driver"`
	ConnectionString string `toml:"connection_string" mapstructure:"connection_string"`
	Host             string `toml:"host" mapstructure:"host"`
	Port             int    `toml:"port" mapstructure:"port"`
	Database         string `toml:"database" mapstructure:"database"`
	Username         string `toml:"username" mapstructure:"username"`
	Password         string `toml:"password" mapstructure:"password"`
	SSLMode          string `toml:"ssl_mode" mapstructure:"ssl_mode"`
}

// ToEventDB converts to the eventdb package's config.
func (c EventDBConfig) ToEventDB() *eventdb.Config {
	cfg := eventdb.NewConfig()
	cfg.Driver = c.Driver
	cfg.ConnectionString = c.ConnectionString
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Database != "" {
		cfg.Database = c.Database
	}
	cfg.Username = c.Username
	cfg.Password = c.Password
	if c.SSLMode != "" {
		cfg.SSLMode = c.SSLMode
	}
	if cfg.Driver == "sqlite" || cfg.Driver == "sqlite3" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// ProtocolConfig carries the deployment constants of the backing protocol.
// Addresses are 0x-prefixed hex; amounts are decimal strings in base units.
type ProtocolConfig struct {
	FactoryAddress    string `toml:"factory_address" mapstructure:"factory_address"`
	AdminAddress      string `toml:"admin_address" mapstructure:"admin_address"`
	LedgerAddress     string `toml:"ledger_address" mapstructure:"ledger_address"`
	SettlementAddress string `toml:"settlement_address" mapstructure:"settlement_address"`
	StableToken       string `toml:"stable_token" mapstructure:"stable_token"`

	RequiredStableAmount    string `toml:"required_stable_amount" mapstructure:"required_stable_amount"`
	PersonalTokenCommitment string `toml:"personal_token_commitment" mapstructure:"personal_token_commitment"`

	// InstanceCodeLabel seeds the deployed-code fingerprint used in
	// counterfactual address derivation.
	InstanceCodeLabel string `toml:"instance_code_label" mapstructure:"instance_code_label"`

	OrderValidityHours  int `toml:"order_validity_hours" mapstructure:"order_validity_hours"`
	LockDurationDays    int `toml:"lock_duration_days" mapstructure:"lock_duration_days"`
	WeightShiftDays     int `toml:"weight_shift_days" mapstructure:"weight_shift_days"`
	SwapFeeBPS          int `toml:"swap_fee_bps" mapstructure:"swap_fee_bps"`
	DefaultSlippageBPS  int `toml:"default_slippage_bps" mapstructure:"default_slippage_bps"`
}

// ToBacking converts the protocol section into the engine's config.
func (c ProtocolConfig) ToBacking() (backing.Config, error) {
	addresses := map[string]string{
		"factory_address":    c.FactoryAddress,
		"admin_address":      c.AdminAddress,
		"ledger_address":     c.LedgerAddress,
		"settlement_address": c.SettlementAddress,
		"stable_token":       c.StableToken,
	}
	for field, value := range addresses {
		if !common.IsHexAddress(value) {
			return backing.Config{}, fmt.Errorf("protocol.%s is not a valid address: %q", field, value)
		}
	}

	stable, err := parseBigInt("required_stable_amount", c.RequiredStableAmount)
	if err != nil {
		return backing.Config{}, err
	}
	commitment, err := parseBigInt("personal_token_commitment", c.PersonalTokenCommitment)
	if err != nil {
		return backing.Config{}, err
	}

	swapFee := new(big.Int).Mul(big.NewInt(int64(c.SwapFeeBPS)), big.NewInt(1e14)) // bps of 1e18

	return backing.Config{
		Address:                 common.HexToAddress(c.FactoryAddress),
		Admin:                   common.HexToAddress(c.AdminAddress),
		LedgerAddress:           common.HexToAddress(c.LedgerAddress),
		StableToken:             common.HexToAddress(c.StableToken),
		RequiredStableAmount:    stable,
		PersonalTokenCommitment: commitment,
		Fingerprint:             deriver.CodeFingerprint(crypto.Keccak256Hash([]byte(c.InstanceCodeLabel))),
		OrderValidity:           time.Duration(c.OrderValidityHours) * time.Hour,
		LockDuration:            time.Duration(c.LockDurationDays) * 24 * time.Hour,
		WeightShiftDuration:     time.Duration(c.WeightShiftDays) * 24 * time.Hour,
		SwapFee:                 swapFee,
	}, nil
}

// Settlement returns the settlement account address.
func (c ProtocolConfig) Settlement() common.Address {
	return common.HexToAddress(c.SettlementAddress)
}

func parseBigInt(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("protocol.%s is not a positive decimal: %q", field, s)
	}
	return n, nil
}
