package config

import "github.com/spf13/viper"

// setDefaults sets the built-in defaults for a single-node deployment.
func setDefaults(v *viper.Viper) {
	// Node storage
	v.SetDefault("node.data_dir", "/var/lib/backingd")
	v.SetDefault("node.kv_engine", "pebble")
	v.SetDefault("node.cache_size", 4096)

	// RPC listener
	v.SetDefault("rpc.listen", "127.0.0.1:7545")
	v.SetDefault("rpc.timeout_seconds", 30)

	// Event index: file-backed sqlite next to the KV data
	v.SetDefault("event_db.enabled", true)
	v.SetDefault("event_db.driver", "sqlite")
	v.SetDefault("event_db.database", "")
	v.SetDefault("event_db.ssl_mode", "prefer")
	v.SetDefault("event_db.port", 5432)

	// Protocol deployment constants: 100.00 stable at 6 decimals against a
	// 48-token personal commitment at 18 decimals.
	v.SetDefault("protocol.factory_address", "0x0000000000000000000000000000000000000200")
	v.SetDefault("protocol.admin_address", "0x0000000000000000000000000000000000000300")
	v.SetDefault("protocol.ledger_address", "0x0000000000000000000000000000000000000100")
	v.SetDefault("protocol.settlement_address", "0x0000000000000000000000000000000000000400")
	v.SetDefault("protocol.stable_token", "0x0000000000000000000000000000000000000500")
	v.SetDefault("protocol.required_stable_amount", "100000000")
	v.SetDefault("protocol.personal_token_commitment", "48000000000000000000")
	v.SetDefault("protocol.instance_code_label", "backing-instance-v1")
	v.SetDefault("protocol.order_validity_hours", 24)
	v.SetDefault("protocol.lock_duration_days", 365)
	v.SetDefault("protocol.weight_shift_days", 365)
	v.SetDefault("protocol.swap_fee_bps", 100)
	v.SetDefault("protocol.default_slippage_bps", 500)
}
