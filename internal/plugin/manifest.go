package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/brushwork/internal/plugin/contrib"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
	"github.com/dshills/brushwork/internal/plugin/settings"
)

// Type is the declared kind of plugin.
type Type string

// Plugin types.
const (
	TypeBrush  Type = "brush"
	TypeFilter Type = "filter"
	TypeTool   Type = "tool"
	TypeMixed  Type = "mixed"
)

// Valid returns true if t is a known plugin type.
func (t Type) Valid() bool {
	switch t {
	case TypeBrush, TypeFilter, TypeTool, TypeMixed:
		return true
	}
	return false
}

// Manifest describes a plugin's identity, permissions and contributions.
type Manifest struct {
	// Identity
	ID          string `json:"id" yaml:"id"`                   // Unique id (e.g., "com.example.grayscale")
	Name        string `json:"name" yaml:"name"`               // Display name
	Version     string `json:"version" yaml:"version"`         // major.minor[.patch]
	APIVersion  string `json:"apiVersion" yaml:"apiVersion"`   // Host API version the plugin targets
	Description string `json:"description" yaml:"description"` // Short description
	Author      Author `json:"author" yaml:"author"`
	License     string `json:"license" yaml:"license"` // SPDX license identifier
	Type        Type   `json:"type" yaml:"type"`

	// Entry point relative to the package root (e.g., "main.lua").
	Main string `json:"main" yaml:"main"`

	// Permissions requested; fixed at install time.
	Permissions []security.Permission `json:"permissions" yaml:"permissions"`

	// Contributions
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`

	// Optional
	SettingsSchema settings.Schema `json:"settingsSchema,omitempty" yaml:"settingsSchema,omitempty"`
	Locales        []string        `json:"locales,omitempty" yaml:"locales,omitempty"`
	Keywords       []string        `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Category       string          `json:"category,omitempty" yaml:"category,omitempty"`
	Homepage       string          `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Repository     string          `json:"repository,omitempty" yaml:"repository,omitempty"`
	Icon           string          `json:"icon,omitempty" yaml:"icon,omitempty"`
	Readme         string          `json:"readme,omitempty" yaml:"readme,omitempty"`
	Changelog      string          `json:"changelog,omitempty" yaml:"changelog,omitempty"`
}

// Author identifies who wrote the plugin.
type Author struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Capabilities lists declared contributions per kind.
type Capabilities struct {
	Filters []CapabilityDecl `json:"filters,omitempty" yaml:"filters,omitempty"`
	Brushes []CapabilityDecl `json:"brushes,omitempty" yaml:"brushes,omitempty"`
	Tools   []CapabilityDecl `json:"tools,omitempty" yaml:"tools,omitempty"`
	Panels  []CapabilityDecl `json:"panels,omitempty" yaml:"panels,omitempty"`
}

// CapabilityDecl declares one contribution.
type CapabilityDecl struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// Of returns the declarations for kind.
func (c Capabilities) Of(kind contrib.Kind) []CapabilityDecl {
	switch kind {
	case contrib.Filter:
		return c.Filters
	case contrib.Brush:
		return c.Brushes
	case contrib.Tool:
		return c.Tools
	case contrib.Panel:
		return c.Panels
	}
	return nil
}

// Empty returns true if nothing is declared.
func (c Capabilities) Empty() bool {
	return len(c.Filters) == 0 && len(c.Brushes) == 0 && len(c.Tools) == 0 && len(c.Panels) == 0
}

// Format is a manifest document encoding.
type Format int

// Manifest formats.
const (
	FormatJSON Format = iota
	FormatYAML
)

// ManifestNames lists the file names recognized as a manifest, in lookup order.
var ManifestNames = []string{"plugin.json", "plugin.yaml", "plugin.yml"}

// FormatOf returns the format implied by a manifest file name.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return 0, false
}

// IsManifestName returns true if name is a recognized manifest file name.
func IsManifestName(name string) bool {
	for _, n := range ManifestNames {
		if name == n {
			return true
		}
	}
	return false
}

// ParseManifest decodes a manifest document. It only checks that the
// document is well formed; Validator applies the content rules.
func ParseManifest(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&m); err != nil {
			return nil, fault.Wrap(fault.InvalidManifest, "", fmt.Errorf("parse json: %w", err))
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fault.Wrap(fault.InvalidManifest, "", fmt.Errorf("parse yaml: %w", err))
		}
	default:
		return nil, fault.New(fault.InvalidManifest, "", fmt.Sprintf("unknown manifest format %d", format))
	}
	m.normalize()
	return &m, nil
}

// ReadManifest reads and parses exactly one manifest file.
func ReadManifest(path string) (*Manifest, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fault.New(fault.InvalidManifest, "", fmt.Sprintf("unrecognized manifest file %s", filepath.Base(path)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.IOFailure, "", fmt.Errorf("read manifest: %w", err))
	}
	return ParseManifest(data, format)
}

// FindManifest returns the manifest path directly inside dir, if any.
func FindManifest(dir string) (string, bool) {
	for _, name := range ManifestNames {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// normalize trims whitespace around identity fields.
func (m *Manifest) normalize() {
	m.ID = strings.TrimSpace(m.ID)
	m.Version = strings.TrimSpace(m.Version)
	m.APIVersion = strings.TrimSpace(m.APIVersion)
	m.Type = Type(strings.ToLower(strings.TrimSpace(string(m.Type))))
	m.Main = strings.TrimSpace(m.Main)
}

// Declarations returns the declared contributions in kind order.
func (m *Manifest) Declarations() []contrib.Declaration {
	var out []contrib.Declaration
	for _, kind := range []contrib.Kind{contrib.Filter, contrib.Brush, contrib.Tool, contrib.Panel} {
		for _, d := range m.Capabilities.Of(kind) {
			out = append(out, contrib.Declaration{
				Kind:     kind,
				ID:       d.ID,
				Name:     d.Name,
				Category: d.Category,
			})
		}
	}
	return out
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.Name
	if display == "" {
		display = m.ID
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	clone.Permissions = append([]security.Permission(nil), m.Permissions...)
	clone.Locales = append([]string(nil), m.Locales...)
	clone.Keywords = append([]string(nil), m.Keywords...)
	clone.Capabilities = Capabilities{
		Filters: append([]CapabilityDecl(nil), m.Capabilities.Filters...),
		Brushes: append([]CapabilityDecl(nil), m.Capabilities.Brushes...),
		Tools:   append([]CapabilityDecl(nil), m.Capabilities.Tools...),
		Panels:  append([]CapabilityDecl(nil), m.Capabilities.Panels...),
	}

	if m.SettingsSchema != nil {
		clone.SettingsSchema = make(settings.Schema, len(m.SettingsSchema))
		for k, f := range m.SettingsSchema {
			f.Options = append([]string(nil), f.Options...)
			clone.SettingsSchema[k] = f
		}
	}

	return &clone
}
