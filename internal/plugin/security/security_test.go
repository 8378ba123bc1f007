package security

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/dshills/brushwork/internal/plugin/fault"
)

func TestCatalogContainsEveryNamespace(t *testing.T) {
	want := []Permission{
		CanvasRead, CanvasWrite,
		LayerRead, LayerWrite, LayerActive, LayerPixels,
		FilterRegister, FilterApply,
		BrushRegister, BrushRender,
		ToolRegister,
		UIPanel, UIMenu, UIToolbar, UIDialog,
		FSRead, FSWrite,
		NetworkFetch,
		HistoryAccess,
		SelectionRead, SelectionWrite,
	}

	if got := len(All()); got != len(want) {
		t.Errorf("len(All()) = %d, want %d", got, len(want))
	}
	for _, p := range want {
		if !IsKnown(p) {
			t.Errorf("IsKnown(%q) = false", p)
		}
		info, ok := Lookup(p)
		if !ok || info.Name != p || info.DisplayName == "" {
			t.Errorf("Lookup(%q) = %+v, %v", p, info, ok)
		}
	}
}

func TestUnknownPermission(t *testing.T) {
	for _, p := range []Permission{"", "canvas", "canvas:delete", "filesystem.read"} {
		if IsKnown(p) {
			t.Errorf("IsKnown(%q) = true, want false", p)
		}
	}
}

func TestPermissionParts(t *testing.T) {
	if got := LayerPixels.Namespace(); got != "layer" {
		t.Errorf("Namespace() = %q, want %q", got, "layer")
	}
	if got := LayerPixels.Action(); got != "pixels" {
		t.Errorf("Action() = %q, want %q", got, "pixels")
	}
}

func TestAllSorted(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("All() not sorted at %d: %q >= %q", i, all[i-1], all[i])
		}
	}
}

func TestRequiringApproval(t *testing.T) {
	got := RequiringApproval([]Permission{CanvasRead, NetworkFetch, FSWrite, "bogus:x"})
	if len(got) != 2 || got[0] != NetworkFetch || got[1] != FSWrite {
		t.Errorf("RequiringApproval() = %v", got)
	}
}

func TestNewGrant(t *testing.T) {
	g, err := NewGrant([]Permission{FilterRegister, CanvasRead, FilterRegister})
	if err != nil {
		t.Fatalf("NewGrant() error = %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
	if !g.Has(FilterRegister) || !g.Has(CanvasRead) {
		t.Error("grant is missing requested permissions")
	}
	if g.Has(CanvasWrite) {
		t.Error("Has(CanvasWrite) = true, want false")
	}
	perms := g.Permissions()
	if perms[0] != CanvasRead || perms[1] != FilterRegister {
		t.Errorf("Permissions() = %v, want sorted", perms)
	}

	// Mutating the returned slice must not affect the grant.
	perms[0] = NetworkFetch
	if g.Has(NetworkFetch) || g.Permissions()[0] != CanvasRead {
		t.Error("Permissions() exposes internal state")
	}
}

func TestNewGrantUnknown(t *testing.T) {
	_, err := NewGrant([]Permission{CanvasRead, "canvas:erase"})
	if !errors.Is(err, fault.ErrUnknownPermission) {
		t.Errorf("NewGrant() error = %v, want UnknownPermission", err)
	}
}

func TestZeroGrantDeniesEverything(t *testing.T) {
	var g Grant
	for _, p := range All() {
		if err := g.Check("p", p, "op"); !errors.Is(err, fault.ErrPermissionDenied) {
			t.Errorf("Check(%q) = %v, want PermissionDenied", p, err)
		}
	}
}

func TestGrantCheckRepeatedDenial(t *testing.T) {
	g, _ := NewGrant([]Permission{CanvasRead})
	for i := 0; i < 5; i++ {
		err := g.Check("com.x.a", CanvasWrite, "canvas.putPixels")
		if !errors.Is(err, fault.ErrPermissionDenied) {
			t.Fatalf("attempt %d: Check() = %v, want PermissionDenied", i, err)
		}
	}
	if err := g.Check("com.x.a", CanvasRead, "canvas.getPixels"); err != nil {
		t.Errorf("Check(granted) = %v", err)
	}
}

func TestCheckerResolvePath(t *testing.T) {
	root := t.TempDir()
	c := NewChecker(Policy{StorageRoot: root})

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"relative", "a/b.txt", filepath.Join(root, "a", "b.txt"), nil},
		{"root itself", ".", root, nil},
		{"traversal", "../escape.txt", "", ErrPathOutsideStorage},
		{"nested traversal", "a/../../escape.txt", "", ErrPathOutsideStorage},
		{"absolute inside", filepath.Join(root, "x"), filepath.Join(root, "x"), nil},
		{"absolute outside", "/etc/passwd", "", ErrPathOutsideStorage},
		{"dot-dot prefixed name", "..data", filepath.Join(root, "..data"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ResolvePath(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolvePath(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCheckerNoStorage(t *testing.T) {
	c := NewChecker(Policy{})
	if _, err := c.ResolvePath("x"); !errors.Is(err, ErrNoStorage) {
		t.Errorf("ResolvePath() error = %v, want ErrNoStorage", err)
	}
}

func TestCheckerHosts(t *testing.T) {
	c := NewChecker(Policy{
		AllowedHosts: []string{"api.example.com", "*.cdn.example.com"},
		BlockedHosts: []string{"bad.cdn.example.com"},
	})

	tests := []struct {
		host    string
		wantErr error
	}{
		{"api.example.com", nil},
		{"API.example.com:443", nil},
		{"img.cdn.example.com", nil},
		{"bad.cdn.example.com", ErrHostBlocked},
		{"other.com", ErrHostNotAllowed},
	}
	for _, tt := range tests {
		if err := c.CheckHost(tt.host); !errors.Is(err, tt.wantErr) {
			t.Errorf("CheckHost(%q) = %v, want %v", tt.host, err, tt.wantErr)
		}
	}
}

func TestCheckerURL(t *testing.T) {
	c := NewChecker(Policy{BlockedHosts: []string{"localhost"}})

	if _, err := c.CheckURL("https://example.com/a"); err != nil {
		t.Errorf("CheckURL(https) = %v", err)
	}
	if _, err := c.CheckURL("file:///etc/passwd"); !errors.Is(err, ErrSchemeNotAllowed) {
		t.Errorf("CheckURL(file) = %v, want ErrSchemeNotAllowed", err)
	}
	if _, err := c.CheckURL("http://localhost:8080/"); !errors.Is(err, ErrHostBlocked) {
		t.Errorf("CheckURL(localhost) = %v, want ErrHostBlocked", err)
	}
}

func TestDefaultLimitsValid(t *testing.T) {
	if err := DefaultLimits().Validate(); err != nil {
		t.Errorf("DefaultLimits().Validate() = %v", err)
	}
	l := DefaultLimits()
	l.InvokeTimeout = 0
	if err := l.Validate(); err == nil {
		t.Error("Validate() with zero timeout = nil, want error")
	}
	l = DefaultLimits()
	l.MaxPixels = 0
	if err := l.Validate(); err == nil {
		t.Error("Validate() with zero pixel cap = nil, want error")
	}
}
