// Package plugin provides the Brushwork extension host.
//
// Plugins extend the paint engine with filters, brushes, tools and panels
// written in Lua or JavaScript. Each plugin is a package directory holding a
// manifest and an entry file that defines initialize(api) and, optionally,
// cleanup().
//
// # Quick Start
//
// The System type is the entry point for the host application:
//
//	reg := plugin.NewRegistry(plugin.DefaultRegistryConfig(dataDir),
//	    plugin.WithLogger(logger),
//	    plugin.WithBuilder(api.NewBuilder(api.WithProviders(engine.Providers()))),
//	)
//	sys := plugin.NewSystem(reg, plugin.SystemConfig{Locale: "en", Watch: true})
//	if err := sys.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Shutdown(context.Background())
//
//	res := sys.InstallPlugin(ctx, "/downloads/grayscale.zip")
//	fmt.Println(res.Message)
//
// # Package Structure
//
// A package is a directory, .zip, .tar.gz or .tar.xz archive. The manifest
// sits at the package root or one directory below it:
//
//	com.example.grayscale/
//	├── plugin.json      # or plugin.yaml
//	├── main.lua         # entry file named by "main"
//	├── README.md
//	└── CHANGELOG.md
//
// # Manifest
//
//	{
//	  "id": "com.example.grayscale",
//	  "name": "Grayscale",
//	  "version": "1.0.0",
//	  "apiVersion": "1.2",
//	  "type": "filter",
//	  "main": "main.lua",
//	  "permissions": ["filter:register"],
//	  "capabilities": {"filters": [{"id": "gs", "name": "Grayscale"}]},
//	  "settingsSchema": {
//	    "amount": {"type": "number", "default": 1, "min": 0, "max": 1}
//	  }
//	}
//
// The Validator checks manifests in a fixed order and reports the first
// failure: empty id, duplicate id, version, API compatibility, type,
// permissions, then capabilities.
//
// # Lifecycle
//
//	Installed -> Enable -> Enabled | Error
//	Enabled   -> Disable -> Disabled
//	Error     -> Disable -> Disabled
//	Disabled  -> Enable -> Enabled | Error
//	any       -> Uninstall -> (removed)
//
// The Registry records state changes in a JSON file so a restart re-enables
// the plugins that were enabled. Only Enabled plugins have contributions in
// the capability aggregator.
//
// # Example Plugin
//
//	-- main.lua
//	function initialize(api)
//	    api.filters.register({
//	        id = "gs",
//	        apply = function(pixels, settings)
//	            local d = pixels.data
//	            for i = 1, #d, 4 do
//	                local y = math.floor(0.299*d[i] + 0.587*d[i+1] + 0.114*d[i+2])
//	                d[i], d[i+1], d[i+2] = y, y, y
//	            end
//	            return pixels
//	        end,
//	    })
//	end
//
//	function cleanup()
//	end
package plugin
