// Package config loads and validates slotpool configuration.
//
// # Key Features
//
// - Config: one structure with Pool, Stress, Logging, Metrics and Tracing sections
// - YAML files with ${VAR_NAME} environment substitution
// - SLOTPOOL_* environment overrides for every key (SLOTPOOL_POOL_CAPACITY=128)
// - Defaults for every key and validation that reports all problems at once
//
// # Usage
//
//	cfg, err := config.Load("slotpool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	p, err := pool.New(cfg.Pool.Capacity, newBuffer, cfg.PoolOptions()...)
//
// # Example Configuration
//
//	pool:
//	  name: buffers
//	  capacity: 1024
//	  extra_bytes: 16
//	stress:
//	  workers: 8
//	  iterations: 100000
//	logging:
//	  level: ${LOG_LEVEL}
//	metrics:
//	  address: ":9090"
//
// Save writes a configuration back out as YAML, which is how
// `slotpool config init` produces a starting file.
package config
