package security

import (
	"sort"
	"strings"
)

// Permission identifies a grantable capability namespace and action.
type Permission string

// Catalog permissions.
const (
	CanvasRead  Permission = "canvas:read"
	CanvasWrite Permission = "canvas:write"

	LayerRead   Permission = "layer:read"
	LayerWrite  Permission = "layer:write"
	LayerActive Permission = "layer:active"
	LayerPixels Permission = "layer:pixels"

	FilterRegister Permission = "filter:register"
	FilterApply    Permission = "filter:apply"

	BrushRegister Permission = "brush:register"
	BrushRender   Permission = "brush:render"

	ToolRegister Permission = "tool:register"

	UIPanel   Permission = "ui:panel"
	UIMenu    Permission = "ui:menu"
	UIToolbar Permission = "ui:toolbar"
	UIDialog  Permission = "ui:dialog"

	FSRead  Permission = "fs:read"
	FSWrite Permission = "fs:write"

	NetworkFetch Permission = "network:fetch"

	HistoryAccess Permission = "history:access"

	SelectionRead  Permission = "selection:read"
	SelectionWrite Permission = "selection:write"
)

// Namespace returns the part before the colon ("canvas" for "canvas:read").
func (p Permission) Namespace() string {
	ns, _, _ := strings.Cut(string(p), ":")
	return ns
}

// Action returns the part after the colon ("read" for "canvas:read").
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

// RiskLevel indicates how much a permission exposes.
type RiskLevel int

const (
	// RiskLow indicates minimal exposure.
	RiskLow RiskLevel = iota

	// RiskMedium indicates the plugin can change user documents.
	RiskMedium

	// RiskHigh indicates the plugin can reach outside the document.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PermissionInfo provides metadata about a permission.
type PermissionInfo struct {
	// Name is the permission identifier.
	Name Permission

	// DisplayName is a human-readable name.
	DisplayName string

	// Description explains what the permission allows.
	Description string

	// RiskLevel indicates how dangerous this permission is.
	RiskLevel RiskLevel

	// RequiresUserApproval indicates if the user should confirm the grant.
	RequiresUserApproval bool
}

var catalog = map[Permission]PermissionInfo{
	CanvasRead: {
		Name:        CanvasRead,
		DisplayName: "Read Canvas",
		Description: "Read pixels of the active drawing surface",
		RiskLevel:   RiskLow,
	},
	CanvasWrite: {
		Name:        CanvasWrite,
		DisplayName: "Modify Canvas",
		Description: "Write pixels of the active drawing surface",
		RiskLevel:   RiskMedium,
	},
	LayerRead: {
		Name:        LayerRead,
		DisplayName: "Read Layers",
		Description: "Enumerate layers and read their properties",
		RiskLevel:   RiskLow,
	},
	LayerWrite: {
		Name:        LayerWrite,
		DisplayName: "Modify Layers",
		Description: "Create, remove and update layers",
		RiskLevel:   RiskMedium,
	},
	LayerActive: {
		Name:        LayerActive,
		DisplayName: "Active Layer",
		Description: "Query and change the active layer",
		RiskLevel:   RiskLow,
	},
	LayerPixels: {
		Name:        LayerPixels,
		DisplayName: "Layer Pixels",
		Description: "Read and write pixels of individual layers",
		RiskLevel:   RiskMedium,
	},
	FilterRegister: {
		Name:        FilterRegister,
		DisplayName: "Register Filters",
		Description: "Contribute image filters",
		RiskLevel:   RiskLow,
	},
	FilterApply: {
		Name:        FilterApply,
		DisplayName: "Apply Filters",
		Description: "Run built-in engine filters on the canvas",
		RiskLevel:   RiskMedium,
	},
	BrushRegister: {
		Name:        BrushRegister,
		DisplayName: "Register Brushes",
		Description: "Contribute brushes",
		RiskLevel:   RiskLow,
	},
	BrushRender: {
		Name:        BrushRender,
		DisplayName: "Render Strokes",
		Description: "Draw brush strokes on the canvas",
		RiskLevel:   RiskMedium,
	},
	ToolRegister: {
		Name:        ToolRegister,
		DisplayName: "Register Tools",
		Description: "Contribute drawing tools",
		RiskLevel:   RiskLow,
	},
	UIPanel: {
		Name:        UIPanel,
		DisplayName: "Panels",
		Description: "Contribute UI panels",
		RiskLevel:   RiskLow,
	},
	UIMenu: {
		Name:        UIMenu,
		DisplayName: "Menus",
		Description: "Add menu items",
		RiskLevel:   RiskLow,
	},
	UIToolbar: {
		Name:        UIToolbar,
		DisplayName: "Toolbar",
		Description: "Add toolbar buttons",
		RiskLevel:   RiskLow,
	},
	UIDialog: {
		Name:        UIDialog,
		DisplayName: "Dialogs",
		Description: "Show notifications, confirmations and prompts",
		RiskLevel:   RiskLow,
	},
	FSRead: {
		Name:        FSRead,
		DisplayName: "Read Plugin Files",
		Description: "Read files in the plugin's storage area",
		RiskLevel:   RiskMedium,
	},
	FSWrite: {
		Name:                 FSWrite,
		DisplayName:          "Write Plugin Files",
		Description:          "Write files in the plugin's storage area",
		RiskLevel:            RiskMedium,
		RequiresUserApproval: true,
	},
	NetworkFetch: {
		Name:                 NetworkFetch,
		DisplayName:          "Network Access",
		Description:          "Make outbound HTTP requests",
		RiskLevel:            RiskHigh,
		RequiresUserApproval: true,
	},
	HistoryAccess: {
		Name:        HistoryAccess,
		DisplayName: "History",
		Description: "Undo, redo and create history checkpoints",
		RiskLevel:   RiskMedium,
	},
	SelectionRead: {
		Name:        SelectionRead,
		DisplayName: "Read Selection",
		Description: "Read the current selection",
		RiskLevel:   RiskLow,
	},
	SelectionWrite: {
		Name:        SelectionWrite,
		DisplayName: "Modify Selection",
		Description: "Change or clear the current selection",
		RiskLevel:   RiskLow,
	},
}

// Lookup returns information about a permission.
func Lookup(p Permission) (PermissionInfo, bool) {
	info, ok := catalog[p]
	return info, ok
}

// IsKnown returns true if the permission is in the catalog.
func IsKnown(p Permission) bool {
	_, ok := catalog[p]
	return ok
}

// All returns every catalog permission, sorted.
func All() []Permission {
	perms := make([]Permission, 0, len(catalog))
	for p := range catalog {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// RequiringApproval returns the permissions that need user confirmation.
func RequiringApproval(perms []Permission) []Permission {
	var out []Permission
	for _, p := range perms {
		if info, ok := catalog[p]; ok && info.RequiresUserApproval {
			out = append(out, p)
		}
	}
	return out
}
