// Package config handles loading and validating Gray Logic Hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GRAYHUB_*)
//   - Validation with actionable error messages
//   - Defaults so a minimal config file is enough to boot
//
// Configuration precedence (later wins):
//
//  1. Built-in defaults
//  2. YAML file (default: configs/config.yaml, or GRAYHUB_CONFIG)
//  3. Environment variables
//
// Secrets (JWT secret, MQTT password, InfluxDB token) should be supplied
// through environment variables rather than the YAML file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	limit := cfg.Bridge.FailCountLimit
package config
