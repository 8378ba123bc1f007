// Package lua runs Lua plugins on gopher-lua.
//
// # State
//
// State wraps an LState opened with the base, table, string and math
// libraries only. Every entry into Lua goes through State.Do, which holds the
// state lock, attaches a deadline-bound context and recovers panics:
//
//	state := lua.NewState()
//	defer state.Close()
//
//	err := state.Do(ctx, time.Second, func(L *glua.LState) error {
//	    return L.DoString(`x = 1 + 1`)
//	})
//
// # Sandbox
//
// The Sandbox removes dofile, loadfile, load and loadstring, replaces
// require with a whitelist of string, table and math, redirects print to the
// plugin log and enforces the per-invocation API call budget.
//
// # Bridge
//
// The Bridge converts between Lua values and the plain data the plugin API
// speaks. Lua functions become api.Callable values and Callables become Lua
// functions, so plugin callbacks cross the boundary in both directions.
//
// # Runtime
//
// Runtime loads an entry file, calls its initialize(api) function with a
// table mirroring the api.Surface modules, and runs the optional cleanup().
package lua
