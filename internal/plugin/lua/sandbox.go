package lua

import (
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// safeModules may be loaded through require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L *lua.LState

	callLimit int64
	calls     int64

	print func(string)
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState, callLimit int64, print func(string)) *Sandbox {
	return &Sandbox{
		L:         L,
		callLimit: callLimit,
		print:     print,
	}
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "_printregs"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installPrint()
	s.installSafeRequire()
}

// installPrint routes print to the configured sink.
func (s *Sandbox) installPrint() {
	if s.print == nil {
		s.L.SetGlobal("print", s.L.NewFunction(func(*lua.LState) int { return 0 }))
		return
	}
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		s.print(strings.Join(parts, "\t"))
		return 0
	}))
}

// installSafeRequire replaces require with a whitelist of the built-in safe
// modules. Nothing is ever loaded from disk.
func (s *Sandbox) installSafeRequire() {
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(L.GetGlobal(name))
		return 1
	}))
	s.L.SetGlobal("module", lua.LNil)
	s.L.SetGlobal("package", lua.LNil)
}

// ResetCalls resets the API call counter.
func (s *Sandbox) ResetCalls() {
	atomic.StoreInt64(&s.calls, 0)
}

// Calls returns the API calls made since the last reset.
func (s *Sandbox) Calls() int64 {
	return atomic.LoadInt64(&s.calls)
}

// Charge records one API call and reports whether the budget is exceeded.
func (s *Sandbox) Charge() bool {
	count := atomic.AddInt64(&s.calls, 1)
	return s.callLimit > 0 && count > s.callLimit
}
