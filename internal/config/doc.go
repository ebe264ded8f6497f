// Package config loads and saves the easyfire bridge configuration.
//
// The configuration is a YAML file holding the transport, frame reader
// tuning, HTTP server settings and the sensor descriptor list. Fields absent
// from the file keep their defaults, and a missing file means Default().
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/easyfire/config.yaml or $HOME/.config/easyfire/config.yaml
//   - macOS: $HOME/.config/easyfire/config.yaml
//   - Windows: %LOCALAPPDATA%\easyfire\config.yaml
//
// # Example
//
//	version: 1
//	log_level: info
//	transport:
//	  mode: tcp
//	  address: 10.0.2.30:23
//	  reconnect_delay: 5s
//	protocol:
//	  sense_length_offset: 1
//	  capture_bytes: 1024
//	server:
//	  listen: :8080
//	  advertise: true
//	sensors:
//	  - {index: 0, name: Flow, kind: temperature}
//	  - {index: 17, name: Return Mixer, kind: flag}
//
// Save writes to a temporary file and renames it into place.
package config
