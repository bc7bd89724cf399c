// Package config handles configuration loading for relay-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bot:
//	  app_password: "${RELAY_APP_PASSWORD}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	runner:
//	  polling_interval: "3s"
//
// # Configuration Sections
//
// Listener addresses:
//
//	server:
//	  mailbox_addr: "0.0.0.0:8080"  # Mailbox HTTP service
//	  bridge_addr: "0.0.0.0:3978"   # Conversation bridge
//
// Chat platform identity and rendering:
//
//	bot:
//	  app_id: "${RELAY_APP_ID}"
//	  app_password: "${RELAY_APP_PASSWORD}"
//	  tenant_id: "${RELAY_TENANT_ID}"
//	  signature_prefix: "(bot)"
//	  text_format: "markdown"  # plain, markdown, html
//
// Trigger keywords (comma-separated, case-sensitive substrings):
//
//	triggers:
//	  keywords: "거래처,거래선"
//
// Mailbox keying and capacity:
//
//	mailbox:
//	  mode: "single"        # single or keyed
//	  default_key: "default"
//	  capacity: 0           # 0 = unbounded
//	  policy: ""            # reject or drop-oldest (with capacity)
//
// RPA orchestrator:
//
//	runner:
//	  base_url: "https://cloud.uipath.com"
//	  app_id: "${RUNNER_APP_ID}"
//	  app_secret: "${RUNNER_APP_SECRET}"
//	  organization: "acme"
//	  tenant: "DefaultTenant"
//	  folder_id: "12345"
//	  process_name: "VendorRegistration"
//	  polling_interval: "3s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
