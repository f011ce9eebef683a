// Package config loads the adapter configuration.
//
// Settings are layered, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command line flags      │  ← applied by the caller
//	├─────────────────────────────┤
//	│  3. Environment (MIPSDAP_*) │
//	├─────────────────────────────┤
//	│  2. TOML config file        │
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// The config file is the first of: the explicit path, then
// $XDG_CONFIG_HOME/mipsdap/config.toml, then ./mipsdap.toml. Environment
// variables are named after the key with dots replaced by underscores, so
// engine.request_timeout is MIPSDAP_ENGINE_REQUEST_TIMEOUT.
//
// # Keys
//
//	engine.command          engine executable
//	engine.args             engine arguments
//	engine.request_timeout  per-request engine timeout (10s)
//	autorun.batch_size      steps per autorun batch (300)
//	autorun.idle_delay      delay between batches when idle (50ms)
//	log.level               debug, info, warn or error (info)
//	log.format              json or console (json)
//	log.output              stderr, stdout or a file path (stderr)
//	server.listen           TCP listen address
//	server.ws_listen        WebSocket listen address
//	server.ws_path          WebSocket endpoint path (/dap)
//	watch.enabled           warn when the debugged file changes (true)
package config
