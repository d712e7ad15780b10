// Package config holds the node configuration: identity, the ordered list of
// candidate wireless networks, collector endpoints, loop timing and driver
// selection.
//
// # Layering
//
// A configuration is assembled in three layers, later layers winning:
//
//  1. Default(): the compiled-in values a field node ships with
//  2. Load(path): a YAML file, fields absent from the file keep defaults
//  3. ApplyEnv(): TEMPNODE_* variables, optionally read from .env files
//
// The result is validated once and then treated as immutable; consumers that
// keep it take a Clone.
//
// # File Location
//
//   - Linux: $XDG_CONFIG_HOME/tempnode/config.yaml or $HOME/.config/tempnode/config.yaml
//   - macOS: $HOME/.config/tempnode/config.yaml
//   - Windows: %LOCALAPPDATA%\tempnode\config.yaml
//
// # Example
//
//	version: 1
//	identity:
//	  sensor_id: 14
//	  password: foobar
//	networks:
//	  - ssid: EssexFarmNew
//	  - ssid: Eskilstark
//	    passphrase: essexcounty?
//	timing:
//	  association_timeout: 10s
//	  success_delay: 1m
//	sensor:
//	  driver: serial
//	  port: /dev/ttyUSB0
//
// # Security
//
// Passphrases and the farm password are stored in clear text, matching what
// the node sends on the wire. Save writes the file with 0600 permissions.
package config
