// Package config handles configuration loading for botherd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and duration parsing.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BOTHERD_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/botherd/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bridge:
//	  url: "${BOTHERD_BRIDGE_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	bridge:
//	  handshake_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and event stream
//
// Database:
//
//	database:
//	  path: "/var/lib/botherd/botherd.db"
//
// Bridge endpoint:
//
//	bridge:
//	  url: "ws://127.0.0.1:3100"
//	  handshake_timeout: "10s"
//
// Herd behavior:
//
//	bots:
//	  resume_active: true   # restart bots flagged active at boot
//
// Username allocator:
//
//	names:
//	  vocabulary_path: ""   # empty uses the embedded vocabulary
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
//	cfg, err := config.Load("/etc/botherd/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
