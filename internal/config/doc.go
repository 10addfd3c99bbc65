// Package config handles configuration loading for muse-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${MUSE_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	upstream:
//	  timeout: "2m"
//	session:
//	  send_timeout: "90s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/muse/gateway.db"
//
// Upstream agent backend:
//
//	upstream:
//	  base_url: "http://localhost:9000"
//	  timeout: "2m"
//
// Session timing:
//
//	session:
//	  send_timeout: "2m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Server HTTP address presence
//   - Database path presence
//   - Upstream base URL presence
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/muse/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
