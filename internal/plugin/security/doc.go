// Package security provides the permission model for plugins.
//
// # Permissions
//
// A Permission is a "namespace:action" identifier a plugin requests in its
// manifest. The catalog of grantable permissions is static:
//
//   - canvas:read, canvas:write: pixel access on the active drawing surface
//   - layer:read, layer:write, layer:active, layer:pixels: layer enumeration,
//     mutation, active-layer selection and per-layer pixel access
//   - filter:register, filter:apply: filter contribution and engine filters
//   - brush:register, brush:render: brush contribution and stroke rendering
//   - tool:register: tool contribution
//   - ui:panel, ui:menu, ui:toolbar, ui:dialog: host UI integration
//   - fs:read, fs:write: access to the plugin's own storage directory
//   - network:fetch: outbound HTTP requests
//   - history:access: undo/redo
//   - selection:read, selection:write: selection state
//
// # Grants
//
// A Grant is computed once from the manifest at install time and never
// changes afterwards. Requests for unknown permissions are rejected before a
// Grant is built.
//
// # Confinement
//
// Checker confines file access to a storage root and network access to the
// configured host allow and block lists:
//
//	checker := security.NewChecker(security.Policy{
//	    StorageRoot:  "/data/storage/com.example.blur",
//	    BlockedHosts: []string{"*.internal"},
//	})
//	abs, err := checker.ResolvePath("presets/soft.json")
package security
