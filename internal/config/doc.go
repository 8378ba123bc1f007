// Package config provides the host configuration for brushwork.
//
// Configuration is resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. BRUSHWORK_* variables   │  ← Highest priority
//	├─────────────────────────────┤
//	│  2. brushwork.toml          │  ← <user config dir>/brushwork/
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Relative paths are rooted in data_dir, and the plugin paths default to
// plugins/, settings.json, plugins.json and storage/ beneath it.
//
// # Example
//
//	data_dir = "/var/lib/brushwork"
//	locale = "de"
//
//	[policy]
//	auto_enable_on_install = true
//
//	[runtime]
//	invoke_timeout = "500ms"
//	call_limit = 10000
//
//	[network]
//	allowed_hosts = ["*.example.com"]
//
//	[log]
//	level = "debug"
//	format = "json"
//
// Unknown keys are rejected so typos surface at startup.
package config
