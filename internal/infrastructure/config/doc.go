// Package config handles loading and validating the weather station configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with WEATHERSTATION_* environment variables
//   - Validation of every section, reporting all problems together
//   - Resolving sensor UIDs and history files to metrics
//
// Security Considerations:
//   - Secrets (MQTT password, InfluxDB token, JWT secret) belong in the
//     environment or a .env file, not in the YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	uids, _ := cfg.SensorUIDs()
package config
