// ABOUTME: Package documentation for agent configuration
// ABOUTME: Describes the YAML layout and what is config vs. persisted state

// Package config loads the agent's YAML configuration.
//
// Configuration covers what does not change while the agent runs: listener
// address, storage directory, location source, logging. Anything the user can
// change at runtime — server endpoint, selected device, tracking flag,
// credentials — lives in the settings store and vault instead, so a config
// file rollout never clobbers session state.
//
// Example:
//
//	server:
//	  endpoint: "http://onloc.example.com:3000"
//
//	control:
//	  addr: "127.0.0.1:8847"
//
//	storage:
//	  dir: "/var/lib/onloc"
//
//	provider:
//	  source: "gpsd"
//	  gpsd_addr: "127.0.0.1:2947"
//	  interval: "5s"
//
//	permissions:
//	  grants_file: "/var/lib/onloc/grants.json"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// Values may reference environment variables as ${VAR_NAME}; unset variables
// expand to the empty string.
package config
