// Package config handles configuration loading for care-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CARE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	whatsapp:
//	  timeout: "15s"
//	ai:
//	  timeout: "45s"
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
//	  path: "/var/lib/care-gateway/care.db"
//
// WhatsApp Cloud API:
//
//	whatsapp:
//	  token: "${WHATSAPP_TOKEN}"
//	  phone_number_id: "123456789"
//	  verify_token: "${WHATSAPP_VERIFY_TOKEN}"
//	  timeout: "15s"
//
// AI capability (empty api_key disables auto-replies and summaries):
//
//	ai:
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//
// Concern keywords (empty means the built-in Portuguese defaults):
//
//	alerts:
//	  keywords: ["dor", "febre"]
//
// Scheduled daily reminders:
//
//	reminders:
//	  enabled: true
//	  schedule: "0 9 * * *"
//	  message: "Bom dia! Como você está se sentindo hoje?"
//	  secret: "${CRON_SECRET}"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CARE_JWT_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/care-gateway/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
