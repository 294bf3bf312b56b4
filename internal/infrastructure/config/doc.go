// Package config handles loading and validating the RV-C bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, admin credentials, tokens) should be
//     set via environment variables
//   - The default admin password "rvpass" is for bench setups only; set
//     auth.password_hash (Argon2id) for installed vehicles
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topics.Prefix)
package config
