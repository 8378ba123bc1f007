// Package fault defines the error taxonomy shared by the extension host.
//
// Every failure the host reports about a plugin is a *Error carrying a Kind.
// Kinds are grouped into categories (manifest, install, runtime, setting,
// not-found). Callers compare kinds with errors.Is against the exported
// sentinels:
//
//	if errors.Is(err, fault.ErrDuplicateID) { ... }
package fault

import (
	"errors"
	"strings"
)

// Category groups related error kinds.
type Category int

// Error categories.
const (
	CategoryUnknown Category = iota
	CategoryManifest
	CategoryInstall
	CategoryRuntime
	CategorySetting
	CategoryNotFound
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryManifest:
		return "ManifestError"
	case CategoryInstall:
		return "InstallError"
	case CategoryRuntime:
		return "RuntimeError"
	case CategorySetting:
		return "SettingError"
	case CategoryNotFound:
		return "NotFoundError"
	default:
		return "UnknownError"
	}
}

// Kind identifies a specific failure.
type Kind string

// Manifest kinds.
const (
	EmptyID                Kind = "EmptyId"
	DuplicateID            Kind = "DuplicateId"
	InvalidVersion         Kind = "InvalidVersion"
	IncompatibleAPIVersion Kind = "IncompatibleApiVersion"
	InvalidType            Kind = "InvalidType"
	UnknownPermission      Kind = "UnknownPermission"
	CapabilityMismatch     Kind = "CapabilityMismatch"
	InvalidManifest        Kind = "InvalidManifest"
)

// Install kinds.
const (
	ArchiveNoManifest Kind = "ArchiveNoManifest"
	UnsupportedSource Kind = "UnsupportedSource"
	IOFailure         Kind = "IOFailure"
)

// Runtime kinds.
const (
	InitializeThrew   Kind = "InitializeThrew"
	InitializeTimeout Kind = "InitializeTimeout"
	PermissionDenied  Kind = "PermissionDenied"
	CleanupFailed     Kind = "CleanupFailed"
	InvalidState      Kind = "InvalidState"
	HandlerMissing    Kind = "HandlerMissing"
	InvocationFailed  Kind = "InvocationFailed"
)

// Setting kinds.
const (
	InvalidSettingValue Kind = "InvalidSettingValue"
	SettingNotFound     Kind = "SettingNotFound"
)

// Not-found kinds.
const (
	PluginNotFound        Kind = "PluginNotFound"
	ContributionNotFound  Kind = "ContributionNotFound"
	AmbiguousContribution Kind = "AmbiguousContribution"
)

// Category returns the category the kind belongs to.
func (k Kind) Category() Category {
	switch k {
	case EmptyID, DuplicateID, InvalidVersion, IncompatibleAPIVersion,
		InvalidType, UnknownPermission, CapabilityMismatch, InvalidManifest:
		return CategoryManifest
	case ArchiveNoManifest, UnsupportedSource, IOFailure:
		return CategoryInstall
	case InitializeThrew, InitializeTimeout, PermissionDenied, CleanupFailed,
		InvalidState, HandlerMissing, InvocationFailed:
		return CategoryRuntime
	case InvalidSettingValue, SettingNotFound:
		return CategorySetting
	case PluginNotFound, ContributionNotFound, AmbiguousContribution:
		return CategoryNotFound
	default:
		return CategoryUnknown
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrEmptyID                = &Error{Kind: EmptyID}
	ErrDuplicateID            = &Error{Kind: DuplicateID}
	ErrInvalidVersion         = &Error{Kind: InvalidVersion}
	ErrIncompatibleAPIVersion = &Error{Kind: IncompatibleAPIVersion}
	ErrInvalidType            = &Error{Kind: InvalidType}
	ErrUnknownPermission      = &Error{Kind: UnknownPermission}
	ErrCapabilityMismatch     = &Error{Kind: CapabilityMismatch}
	ErrInvalidManifest        = &Error{Kind: InvalidManifest}

	ErrArchiveNoManifest = &Error{Kind: ArchiveNoManifest}
	ErrUnsupportedSource = &Error{Kind: UnsupportedSource}
	ErrIOFailure         = &Error{Kind: IOFailure}

	ErrInitializeThrew   = &Error{Kind: InitializeThrew}
	ErrInitializeTimeout = &Error{Kind: InitializeTimeout}
	ErrPermissionDenied  = &Error{Kind: PermissionDenied}
	ErrCleanupFailed     = &Error{Kind: CleanupFailed}
	ErrInvalidState      = &Error{Kind: InvalidState}
	ErrHandlerMissing    = &Error{Kind: HandlerMissing}
	ErrInvocationFailed  = &Error{Kind: InvocationFailed}

	ErrInvalidSettingValue = &Error{Kind: InvalidSettingValue}
	ErrSettingNotFound     = &Error{Kind: SettingNotFound}

	ErrPluginNotFound        = &Error{Kind: PluginNotFound}
	ErrContributionNotFound  = &Error{Kind: ContributionNotFound}
	ErrAmbiguousContribution = &Error{Kind: AmbiguousContribution}
)

// Error is a classified extension-host failure.
type Error struct {
	// Kind is the specific failure.
	Kind Kind

	// Plugin is the id of the plugin involved, if any.
	Plugin string

	// Op is the host operation that failed (install, enable, ...).
	Op string

	// Detail is a human-readable explanation.
	Detail string

	// Err is the underlying cause.
	Err error
}

// New creates an error of the given kind.
func New(kind Kind, plugin, detail string) *Error {
	return &Error{Kind: kind, Plugin: plugin, Detail: detail}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, plugin string, err error) *Error {
	return &Error{Kind: kind, Plugin: plugin, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Plugin != "" {
		sb.WriteString("plugin ")
		sb.WriteString(e.Plugin)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Kind))
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Category returns the category of the error's kind.
func (e *Error) Category() Category {
	return e.Kind.Category()
}

// WithOp returns a copy of e tagged with the operation name.
func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain.
// It returns the empty kind when err is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CategoryOf returns the category of err, or CategoryUnknown.
func CategoryOf(err error) Category {
	return KindOf(err).Category()
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
