// Package config handles loading and validating the aSysBus bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Loading an optional .env file next to the config file
//   - Overriding with ASB_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - MQTTAuthConfig redacts the password when printed or marshalled
//
// Usage:
//
//	cfg, err := config.Load("/etc/asysbus/bridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Serial.Port)
package config
