package rpc

// registerAllMethods sets up the complete method registry.
func (s *Server) registerAllMethods() {
	// Server information
	s.registry.Register("status", &statusMethod{backend: s.backend})
	s.registry.Register("ping", &pingMethod{})
	s.registry.Register("version", &versionMethod{})

	// Instance lifecycle
	s.registry.Register("derive_instance", &deriveInstanceMethod{backend: s.backend})
	s.registry.Register("instance", &instanceMethod{backend: s.backend})
	s.registry.Register("instances", &instancesMethod{backend: s.backend})
	s.registry.Register("deposit", &depositMethod{backend: s.backend})
	s.registry.Register("reset_order", &resetOrderMethod{backend: s.backend})
	s.registry.Register("create_pool", &createPoolMethod{backend: s.backend})
	s.registry.Register("release", &releaseMethod{backend: s.backend})

	// Venue
	s.registry.Register("evaluate_order", &evaluateOrderMethod{backend: s.backend})
	s.registry.Register("fill_order", &fillOrderMethod{backend: s.backend})
	s.registry.Register("sign_order", &signOrderMethod{backend: s.backend})

	// Oracle
	s.registry.Register("report_price", &reportPriceMethod{backend: s.backend})

	// Ledger accounts
	s.registry.Register("balance", &balanceMethod{backend: s.backend})
	s.registry.Register("register_avatar", &registerAvatarMethod{backend: s.backend})
	s.registry.Register("approve", &approveMethod{backend: s.backend})

	// Event index
	s.registry.Register("events", &eventsMethod{backend: s.backend})

	// Admin
	s.registry.Register("set_supported_asset", &setSupportedAssetMethod{backend: s.backend})
	s.registry.Register("set_global_release", &setGlobalReleaseMethod{backend: s.backend})
	s.registry.Register("set_slippage", &setSlippageMethod{backend: s.backend})
	s.registry.Register("register_token", &registerTokenMethod{backend: s.backend})
	s.registry.Register("mint", &mintMethod{backend: s.backend})
}
