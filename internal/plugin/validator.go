package plugin

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/dshills/brushwork/internal/plugin/api"
	"github.com/dshills/brushwork/internal/plugin/fault"
	"github.com/dshills/brushwork/internal/plugin/security"
)

// DefaultAPIVersion is the host API version plugins are checked against.
const DefaultAPIVersion = "1.2"

// versionPattern accepts major.minor or major.minor.patch with optional
// pre-release and build suffixes on the full form.
var versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?)?$`)

// idPattern restricts ids to names usable as a directory.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidVersion returns true if v is a plugin version string.
func ValidVersion(v string) bool {
	return versionPattern.MatchString(v) && semver.IsValid("v"+v)
}

// CompareVersions compares two valid plugin versions like semver.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// Validator checks manifests before they are registered.
type Validator struct {
	hostAPI    string
	extensions map[string]bool
}

// NewValidator creates a validator for a host API version. extensions lists
// the entry file extensions a runtime exists for.
func NewValidator(hostAPI string, extensions []string) *Validator {
	if hostAPI == "" {
		hostAPI = DefaultAPIVersion
	}
	v := &Validator{hostAPI: hostAPI, extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		v.extensions[strings.ToLower(ext)] = true
	}
	return v
}

// HostAPI returns the host API version.
func (v *Validator) HostAPI() string {
	return v.hostAPI
}

// ValidateOptions carries the registry context of a validation.
type ValidateOptions struct {
	// Installed maps installed plugin ids to their versions.
	Installed map[string]string

	// Upgrade allows replacing an installed plugin with a higher version.
	Upgrade bool

	// PackageDir, when set, is checked to contain the entry file.
	PackageDir string
}

// ValidatedManifest is a manifest that passed validation together with the
// grant computed from it. It is immutable.
type ValidatedManifest struct {
	manifest *Manifest
	grant    security.Grant
}

// ID returns the plugin id.
func (v *ValidatedManifest) ID() string {
	return v.manifest.ID
}

// Version returns the plugin version.
func (v *ValidatedManifest) Version() string {
	return v.manifest.Version
}

// Manifest returns a copy of the manifest.
func (v *ValidatedManifest) Manifest() *Manifest {
	return v.manifest.Clone()
}

// Grant returns the permission grant.
func (v *ValidatedManifest) Grant() security.Grant {
	return v.grant
}

// Validate applies the manifest rules in order; the first failure wins.
// It reads nothing but the entry file's metadata when PackageDir is set.
func (v *Validator) Validate(m *Manifest, opts ValidateOptions) (*ValidatedManifest, error) {
	if m == nil {
		return nil, manifestError(fault.InvalidManifest, "", "manifest is nil")
	}
	id := m.ID

	if strings.TrimSpace(id) == "" {
		return nil, manifestError(fault.EmptyID, "", "id is required")
	}

	if installed, ok := opts.Installed[id]; ok {
		upgrade := opts.Upgrade && ValidVersion(m.Version) && ValidVersion(installed) &&
			CompareVersions(m.Version, installed) > 0
		if !upgrade {
			return nil, manifestError(fault.DuplicateID, id, "version %s is installed", installed)
		}
	}

	if !ValidVersion(m.Version) {
		return nil, manifestError(fault.InvalidVersion, id, "%q is not major.minor[.patch]", m.Version)
	}

	if err := v.checkAPIVersion(id, m.APIVersion); err != nil {
		return nil, err
	}

	if !m.Type.Valid() {
		return nil, manifestError(fault.InvalidType, id, "%q is not one of brush, filter, tool, mixed", m.Type)
	}

	for _, p := range m.Permissions {
		if !security.IsKnown(p) {
			return nil, manifestError(fault.UnknownPermission, id, "%q", p)
		}
	}

	if err := checkCapabilities(id, m.Type, m.Capabilities); err != nil {
		return nil, err
	}

	if err := v.checkDetails(m, opts.PackageDir); err != nil {
		return nil, err
	}

	grant, err := security.NewGrant(m.Permissions)
	if err != nil {
		return nil, manifestError(fault.UnknownPermission, id, "%v", err)
	}
	return &ValidatedManifest{manifest: m.Clone(), grant: grant}, nil
}

// checkAPIVersion accepts a plugin API version with the host's major and a
// minor no newer than the host's.
func (v *Validator) checkAPIVersion(id, apiVersion string) error {
	if apiVersion == "" {
		return manifestError(fault.IncompatibleAPIVersion, id, "apiVersion is required")
	}
	want := "v" + apiVersion
	host := "v" + v.hostAPI
	if !semver.IsValid(want) {
		return manifestError(fault.IncompatibleAPIVersion, id, "%q is not a version", apiVersion)
	}
	if semver.Major(want) != semver.Major(host) ||
		semver.Compare(semver.MajorMinor(want), semver.MajorMinor(host)) > 0 {
		return manifestError(fault.IncompatibleAPIVersion, id, "%s is not supported by host API %s", apiVersion, v.hostAPI)
	}
	return nil
}

func checkCapabilities(id string, t Type, c Capabilities) error {
	var ok bool
	switch t {
	case TypeFilter:
		ok = len(c.Filters) > 0
	case TypeBrush:
		ok = len(c.Brushes) > 0
	case TypeTool:
		ok = len(c.Tools) > 0
	case TypeMixed:
		ok = !c.Empty()
	}
	if !ok {
		return manifestError(fault.CapabilityMismatch, id, "type %s declares no matching capabilities", t)
	}
	return nil
}

// checkDetails applies the structural checks that follow the ordered rules.
func (v *Validator) checkDetails(m *Manifest, dir string) error {
	id := m.ID
	if !idPattern.MatchString(id) {
		return manifestError(fault.InvalidManifest, id, "id may only contain letters, digits, '.', '_' and '-'")
	}
	if strings.TrimSpace(m.Name) == "" {
		return manifestError(fault.InvalidManifest, id, "name is required")
	}

	if err := v.checkEntry(m, dir); err != nil {
		return err
	}

	for _, kind := range api.Kinds() {
		seen := make(map[string]bool)
		for i, d := range m.Capabilities.Of(kind) {
			if strings.TrimSpace(d.ID) == "" {
				return manifestError(fault.InvalidManifest, id, "%s[%d] has no id", kind.Plural(), i)
			}
			if seen[d.ID] {
				return manifestError(fault.InvalidManifest, id, "%s %q is declared twice", kind, d.ID)
			}
			seen[d.ID] = true
		}
	}

	if err := m.SettingsSchema.Validate(); err != nil {
		return manifestError(fault.InvalidManifest, id, "settingsSchema: %v", err)
	}
	return nil
}

func (v *Validator) checkEntry(m *Manifest, dir string) error {
	id := m.ID
	if m.Main == "" {
		return manifestError(fault.InvalidManifest, id, "main is required")
	}
	slashed := filepath.ToSlash(m.Main)
	clean := path.Clean(slashed)
	if path.IsAbs(slashed) || filepath.IsAbs(m.Main) || clean == ".." || strings.HasPrefix(clean, "../") {
		return manifestError(fault.InvalidManifest, id, "main %q must stay inside the package", m.Main)
	}
	ext := strings.ToLower(path.Ext(clean))
	if len(v.extensions) > 0 && !v.extensions[ext] {
		return manifestError(fault.InvalidManifest, id, "main %q has no runtime for %q", m.Main, ext)
	}
	if dir != "" {
		st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
		if err != nil || !st.Mode().IsRegular() {
			return manifestError(fault.InvalidManifest, id, "main %q not found in package", m.Main)
		}
	}
	return nil
}

// String returns a short description for logs.
func (v *ValidatedManifest) String() string {
	return fmt.Sprintf("%s@%s", v.manifest.ID, v.manifest.Version)
}
