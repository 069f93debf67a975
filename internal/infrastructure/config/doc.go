// Package config handles loading and validating the irrigation controller
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Seeding the environment from an optional .env file
//   - Overriding with IRRIGATION_* environment variables
//   - Validation against the controller's hardware limits
//
// Security Considerations:
//   - Broker passwords, InfluxDB tokens and the JWT secret belong in the
//     environment, not in the YAML file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.DeviceID)
package config
