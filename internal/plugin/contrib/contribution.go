package contrib

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// Kind tags a contribution as a filter, brush, tool or panel.
type Kind = api.Kind

// Contribution kinds.
const (
	Filter = api.KindFilter
	Brush  = api.KindBrush
	Tool   = api.KindTool
	Panel  = api.KindPanel
)

// Declaration is a contribution listed in a plugin manifest.
type Declaration struct {
	Kind     Kind
	ID       string
	Name     string
	Category string
}

// Contribution is one published capability.
type Contribution struct {
	Owner       string         `json:"owner"`
	Kind        Kind           `json:"kind"`
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Category    string         `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Declared is set when the manifest lists the contribution.
	Declared bool `json:"declared"`
	// Registered is set when initialize registered a handler for it.
	Registered bool `json:"registered"`

	handler api.Callable
}

// Ref returns the contribution's identity.
func (c Contribution) Ref() Ref {
	return Ref{Owner: c.Owner, Kind: c.Kind, ID: c.ID}
}

// Invocable reports whether a handler was registered.
func (c Contribution) Invocable() bool {
	return c.handler != nil
}

// Ref addresses a contribution. An empty Owner matches any owner.
type Ref struct {
	Owner string
	Kind  Kind
	ID    string
}

// String formats the ref as kind:owner/id, or kind:id without an owner.
func (r Ref) String() string {
	if r.Owner == "" {
		return r.Kind.String() + ":" + r.ID
	}
	return r.Kind.String() + ":" + r.Owner + "/" + r.ID
}

// ParseRef parses "id" or "owner/id" for the given kind.
func ParseRef(kind Kind, s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty %s reference", kind)
	}
	owner, id, ok := strings.Cut(s, "/")
	if !ok {
		return Ref{Kind: kind, ID: s}, nil
	}
	if owner == "" || id == "" {
		return Ref{}, fmt.Errorf("invalid %s reference %q", kind, s)
	}
	return Ref{Owner: owner, Kind: kind, ID: id}, nil
}

// merge combines manifest declarations with runtime registrations. Declared
// entries keep their manifest name and category unless the registration
// supplies its own.
func merge(owner string, declared []Declaration, regs []api.Registration) []Contribution {
	type key struct {
		kind Kind
		id   string
	}
	byKey := make(map[key]*Contribution)
	var order []key

	for _, d := range declared {
		if d.ID == "" {
			continue
		}
		k := key{d.Kind, d.ID}
		if _, ok := byKey[k]; ok {
			continue
		}
		name := d.Name
		if name == "" {
			name = d.ID
		}
		byKey[k] = &Contribution{
			Owner:    owner,
			Kind:     d.Kind,
			ID:       d.ID,
			Name:     name,
			Category: d.Category,
			Declared: true,
		}
		order = append(order, k)
	}

	for _, r := range regs {
		k := key{r.Kind, r.ID}
		c, ok := byKey[k]
		if !ok {
			c = &Contribution{Owner: owner, Kind: r.Kind, ID: r.ID, Name: r.Name}
			byKey[k] = c
			order = append(order, k)
		} else if r.Name != "" && r.Name != r.ID {
			c.Name = r.Name
		}
		if r.Category != "" {
			c.Category = r.Category
		}
		c.Description = r.Description
		c.Icon = r.Icon
		c.Metadata = r.Metadata
		c.Registered = true
		c.handler = r.Handler
	}

	out := make([]Contribution, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// Snapshot is an immutable view of every published contribution.
type Snapshot struct {
	version  uint64
	all      []Contribution
	byOwner  map[string][]Contribution
	byID     map[Kind]map[string][]int
	handlers map[string]Handler
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		byOwner:  map[string][]Contribution{},
		byID:     map[Kind]map[string][]int{},
		handlers: map[string]Handler{},
	}
}

// build derives a new snapshot from per-owner contribution sets.
func build(version uint64, owners map[string][]Contribution, handlers map[string]Handler) *Snapshot {
	s := &Snapshot{
		version:  version,
		byOwner:  owners,
		byID:     make(map[Kind]map[string][]int),
		handlers: handlers,
	}
	for _, cs := range owners {
		s.all = append(s.all, cs...)
	}
	sort.Slice(s.all, func(i, j int) bool {
		a, b := s.all[i], s.all[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Owner < b.Owner
	})
	for i, c := range s.all {
		ids := s.byID[c.Kind]
		if ids == nil {
			ids = make(map[string][]int)
			s.byID[c.Kind] = ids
		}
		ids[c.ID] = append(ids[c.ID], i)
	}
	return s
}

// Version increments on every change.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Len returns the number of contributions.
func (s *Snapshot) Len() int {
	return len(s.all)
}

// All returns every contribution sorted by kind, id and owner.
func (s *Snapshot) All() []Contribution {
	out := make([]Contribution, len(s.all))
	copy(out, s.all)
	return out
}

// ByKind returns the contributions of one kind.
func (s *Snapshot) ByKind(kind Kind) []Contribution {
	var out []Contribution
	for _, c := range s.all {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Owned returns the contributions of one plugin.
func (s *Snapshot) Owned(owner string) []Contribution {
	cs := s.byOwner[owner]
	out := make([]Contribution, len(cs))
	copy(out, cs)
	return out
}

// Owners returns the plugins with published contributions, sorted.
func (s *Snapshot) Owners() []string {
	out := make([]string, 0, len(s.byOwner))
	for o := range s.byOwner {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// OwnersOf returns the plugin ids contributing kind/id.
func (s *Snapshot) OwnersOf(kind Kind, id string) []string {
	idx := s.byID[kind][id]
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = s.all[n].Owner
	}
	return out
}

// Grouped returns the contributions keyed by plural kind name
// (filters, brushes, tools, panels). Every kind is present.
func (s *Snapshot) Grouped() map[string][]Contribution {
	out := make(map[string][]Contribution, 4)
	for _, k := range api.Kinds() {
		out[k.Plural()] = []Contribution{}
	}
	for _, c := range s.all {
		out[c.Kind.Plural()] = append(out[c.Kind.Plural()], c)
	}
	return out
}
