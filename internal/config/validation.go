package config

import (
	"fmt"
	"net"
)

// ValidateConfig checks the complete configuration for errors.
func ValidateConfig(c *Config) error {
	switch c.Node.KVEngine {
	case "pebble", "leveldb":
	default:
		return fmt.Errorf("node.kv_engine must be pebble or leveldb, got %q", c.Node.KVEngine)
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	if c.Node.CacheSize < 0 {
		return fmt.Errorf("node.cache_size must be >= 0")
	}

	if c.RPC.Listen == "" {
		return fmt.Errorf("rpc.listen is required")
	}
	if _, _, err := net.SplitHostPort(c.RPC.Listen); err != nil {
		return fmt.Errorf("rpc.listen is not a host:port: %w", err)
	}
	if c.RPC.TimeoutSeconds <= 0 {
		return fmt.Errorf("rpc.timeout_seconds must be positive")
	}

	if c.EventDB.Enabled {
		if err := c.EventDB.ToEventDB().Validate(); err != nil {
			return fmt.Errorf("event_db: %w", err)
		}
	}

	if _, err := c.Protocol.ToBacking(); err != nil {
		return err
	}
	if c.Protocol.OrderValidityHours <= 0 {
		return fmt.Errorf("protocol.order_validity_hours must be positive")
	}
	if c.Protocol.LockDurationDays <= 0 {
		return fmt.Errorf("protocol.lock_duration_days must be positive")
	}
	if c.Protocol.WeightShiftDays <= 0 {
		return fmt.Errorf("protocol.weight_shift_days must be positive")
	}
	if c.Protocol.SwapFeeBPS <= 0 || c.Protocol.SwapFeeBPS > 1000 {
		return fmt.Errorf("protocol.swap_fee_bps must be in (0, 1000]")
	}
	if c.Protocol.DefaultSlippageBPS < 0 || c.Protocol.DefaultSlippageBPS >= 10000 {
		return fmt.Errorf("protocol.default_slippage_bps must be in [0, 10000)")
	}
	return nil
}
