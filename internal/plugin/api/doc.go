// Package api builds the permission-filtered API surface handed to a
// plugin's initialize(api) entry point.
//
// A Surface is language neutral: it is a set of named modules, each a table
// of functions taking and returning plain Go values (nil, bool, float64,
// int64, string, []any, map[string]any and Callable). The Lua and
// JavaScript runtimes translate those values to and from their own.
//
// Every module and function is always present. Functions guarded by a
// permission the plugin was not granted fail with PermissionDenied and
// perform no side effect:
//
//	canvas.getSize()                       canvas:read
//	canvas.getPixels(rect?)                canvas:read
//	canvas.putPixels(x, y, pixels)         canvas:write
//	canvas.applyFilter(name, params?)      filter:apply
//	layers.list() / layers.get(id)         layer:read
//	layers.create/remove/update            layer:write
//	layers.getActive() / setActive(id)     layer:active
//	layers.getPixels / putPixels           layer:pixels
//	filters.register(def)                  filter:register
//	brushes.register(def)                  brush:register
//	brushes.stroke(points, options?)       brush:render
//	tools.register(def)                    tool:register
//	ui.registerPanel(def)                  ui:panel
//	ui.addMenuItem(def)                    ui:menu
//	ui.addToolbarButton(def)               ui:toolbar
//	ui.notify / confirm / prompt           ui:dialog
//	fs.read / list / exists                fs:read
//	fs.write / remove / mkdir              fs:write
//	net.fetch(url, options?)               network:fetch
//	history.*                              history:access
//	selection.get()                        selection:read
//	selection.set(rect) / clear()          selection:write
//
// The settings, log and plugin modules need no permission. The settings
// module is bound to the plugin's own namespace.
//
// Register functions only work while initialize runs; afterwards the
// surface is sealed and the collected Registrations are handed to the
// capability aggregator.
package api
