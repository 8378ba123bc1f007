package security

import (
	"fmt"
	"sort"

	"github.com/dshills/brushwork/internal/plugin/fault"
)

// Grant is the immutable set of permissions a plugin holds.
// The zero value grants nothing.
type Grant struct {
	perms map[Permission]struct{}
	list  []Permission
}

// NewGrant builds a grant from requested permissions.
// Every permission must be in the catalog; duplicates are collapsed.
func NewGrant(requested []Permission) (Grant, error) {
	g := Grant{perms: make(map[Permission]struct{}, len(requested))}
	for _, p := range requested {
		if !IsKnown(p) {
			return Grant{}, fault.New(fault.UnknownPermission, "", fmt.Sprintf("%q", p))
		}
		if _, dup := g.perms[p]; dup {
			continue
		}
		g.perms[p] = struct{}{}
		g.list = append(g.list, p)
	}
	sort.Slice(g.list, func(i, j int) bool { return g.list[i] < g.list[j] })
	return g, nil
}

// Has returns true if the permission is granted.
func (g Grant) Has(p Permission) bool {
	_, ok := g.perms[p]
	return ok
}

// Permissions returns the granted permissions, sorted.
func (g Grant) Permissions() []Permission {
	out := make([]Permission, len(g.list))
	copy(out, g.list)
	return out
}

// Len returns the number of granted permissions.
func (g Grant) Len() int {
	return len(g.list)
}

// Check returns a PermissionDenied error if p is not granted.
// op names the API function being called.
func (g Grant) Check(plugin string, p Permission, op string) error {
	if g.Has(p) {
		return nil
	}
	return Denied(plugin, p, op)
}

// Denied builds the PermissionDenied error for a call.
func Denied(plugin string, p Permission, op string) error {
	return fault.New(fault.PermissionDenied, plugin, fmt.Sprintf("%s requires %s", op, p))
}
