package api

import (
	"fmt"
)

// Kind tags a capability contribution.
type Kind int

// Contribution kinds.
const (
	KindFilter Kind = iota
	KindBrush
	KindTool
	KindPanel
)

// Kinds lists every contribution kind in display order.
func Kinds() []Kind {
	return []Kind{KindFilter, KindBrush, KindTool, KindPanel}
}

// String returns the singular kind name.
func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindBrush:
		return "brush"
	case KindTool:
		return "tool"
	case KindPanel:
		return "panel"
	default:
		return "unknown"
	}
}

// Plural returns the manifest section name ("filters", ...).
func (k Kind) Plural() string {
	switch k {
	case KindFilter:
		return "filters"
	case KindBrush:
		return "brushes"
	case KindTool:
		return "tools"
	case KindPanel:
		return "panels"
	default:
		return "unknown"
	}
}

// HandlerName returns the definition field holding the kind's handler.
func (k Kind) HandlerName() string {
	switch k {
	case KindFilter:
		return "apply"
	case KindBrush:
		return "render"
	case KindTool:
		return "onEvent"
	case KindPanel:
		return "render"
	default:
		return ""
	}
}

// ParseKind parses a singular or plural kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "filter", "filters":
		return KindFilter, nil
	case "brush", "brushes":
		return KindBrush, nil
	case "tool", "tools":
		return KindTool, nil
	case "panel", "panels":
		return KindPanel, nil
	}
	return 0, fmt.Errorf("unknown contribution kind %q", s)
}

// MarshalText encodes the kind by its singular name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a singular or plural kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Registration is a contribution a plugin registered during initialize.
type Registration struct {
	Kind        Kind
	ID          string
	Name        string
	Category    string
	Description string
	Icon        string
	Metadata    map[string]any

	// Handler is the plugin function invoked for this contribution.
	Handler Callable
}

var registrationFields = map[string]bool{
	"id": true, "name": true, "category": true, "description": true, "icon": true,
}

// parseRegistration builds a Registration from a plugin definition table.
func parseRegistration(kind Kind, args Args) (Registration, error) {
	def, err := args.Map(0)
	if err != nil {
		return Registration{}, err
	}

	id, _ := def["id"].(string)
	if id == "" {
		return Registration{}, args.Wrap(0, fmt.Errorf("%s definition requires a string id", kind))
	}

	handlerField := kind.HandlerName()
	handler, ok := def[handlerField].(Callable)
	if !ok {
		return Registration{}, args.Wrap(0, fmt.Errorf("%s %q requires a %s function", kind, id, handlerField))
	}

	reg := Registration{
		Kind:    kind,
		ID:      id,
		Handler: handler,
	}
	reg.Name, _ = def["name"].(string)
	if reg.Name == "" {
		reg.Name = id
	}
	reg.Category, _ = def["category"].(string)
	reg.Description, _ = def["description"].(string)
	reg.Icon, _ = def["icon"].(string)

	for k, v := range def {
		if registrationFields[k] || k == handlerField {
			continue
		}
		if _, isFn := v.(Callable); isFn {
			continue
		}
		if reg.Metadata == nil {
			reg.Metadata = make(map[string]any)
		}
		reg.Metadata[k] = v
	}
	return reg, nil
}
