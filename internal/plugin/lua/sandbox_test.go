package lua

import (
	"context"
	"strings"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"
)

func TestSandboxRemovesLoaders(t *testing.T) {
	state := NewState()
	defer state.Close()

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "module", "package"} {
		if v := state.GetGlobal(fn); v != glua.LNil {
			t.Errorf("%s should be removed, got %T", fn, v)
		}
	}
}

func TestSandboxNoUnsafeLibraries(t *testing.T) {
	state := NewState()
	defer state.Close()

	for _, lib := range []string{"io", "os", "debug"} {
		if v := state.GetGlobal(lib); v != glua.LNil {
			t.Errorf("%s library should not be open, got %T", lib, v)
		}
	}
}

func TestSandboxRequire(t *testing.T) {
	state := NewState()
	defer state.Close()
	ctx := context.Background()

	if err := state.DoString(ctx, time.Second, `local s = require("string"); n = s.len("abc")`); err != nil {
		t.Fatalf("require(string) error = %v", err)
	}
	if v := state.GetGlobal("n"); v != glua.LNumber(3) {
		t.Errorf("n = %v, want 3", v)
	}

	for _, mod := range []string{"io", "os", "debug", "socket", "./evil"} {
		err := state.DoString(ctx, time.Second, `require("`+mod+`")`)
		if err == nil || !strings.Contains(err.Error(), "not available") {
			t.Errorf("require(%q) error = %v, want not available", mod, err)
		}
	}
}

func TestSandboxPrint(t *testing.T) {
	var lines []string
	state := NewState(WithPrint(func(s string) { lines = append(lines, s) }))
	defer state.Close()

	if err := state.DoString(context.Background(), time.Second, `print("a", 1, true)`); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "a\t1\ttrue" {
		t.Errorf("print captured %q", lines)
	}
}

func TestSandboxPrintDiscardedByDefault(t *testing.T) {
	state := NewState()
	defer state.Close()

	if err := state.DoString(context.Background(), time.Second, `print("quiet")`); err != nil {
		t.Errorf("print without sink error = %v", err)
	}
}

func TestSandboxCharge(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	sandbox := NewSandbox(L, 2, nil)
	if sandbox.Charge() || sandbox.Charge() {
		t.Fatal("Charge() exceeded before the limit")
	}
	if !sandbox.Charge() {
		t.Error("third Charge() should exceed a limit of 2")
	}
	if sandbox.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", sandbox.Calls())
	}

	sandbox.ResetCalls()
	if sandbox.Calls() != 0 {
		t.Errorf("Calls() after reset = %d", sandbox.Calls())
	}

	unlimited := NewSandbox(L, 0, nil)
	for i := 0; i < 100; i++ {
		if unlimited.Charge() {
			t.Fatal("zero limit should be unlimited")
		}
	}
}
