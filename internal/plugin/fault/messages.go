package fault

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Action names a user-visible host operation.
type Action string

// Host actions that produce a result message.
const (
	ActionInstall    Action = "install"
	ActionUninstall  Action = "uninstall"
	ActionEnable     Action = "enable"
	ActionDisable    Action = "disable"
	ActionSetSetting Action = "set-setting"
)

var successKeys = map[Action]string{
	ActionInstall:    "Plugin %s was installed.",
	ActionUninstall:  "Plugin %s was uninstalled.",
	ActionEnable:     "Plugin %s was enabled.",
	ActionDisable:    "Plugin %s was disabled.",
	ActionSetSetting: "Settings of plugin %s were updated.",
}

var kindKeys = map[Kind]string{
	EmptyID:                "The manifest of %s has no id.",
	DuplicateID:            "A plugin with id %s is already installed.",
	InvalidVersion:         "Plugin %s has an invalid version.",
	IncompatibleAPIVersion: "Plugin %s targets an unsupported host API version.",
	InvalidType:            "Plugin %s declares an unknown type.",
	UnknownPermission:      "Plugin %s requests an unknown permission.",
	CapabilityMismatch:     "Plugin %s does not declare the capabilities its type requires.",
	InvalidManifest:        "The manifest of %s is invalid.",
	ArchiveNoManifest:      "No plugin manifest was found in %s.",
	UnsupportedSource:      "%s is not a supported plugin package.",
	IOFailure:              "A file operation failed for %s.",
	InitializeThrew:        "Plugin %s failed to start.",
	InitializeTimeout:      "Plugin %s took too long to start.",
	PermissionDenied:       "Plugin %s is not allowed to do that.",
	CleanupFailed:          "Plugin %s did not shut down cleanly.",
	InvalidState:           "Plugin %s cannot do that in its current state.",
	HandlerMissing:         "Plugin %s did not register a handler for this feature.",
	InvocationFailed:       "Plugin %s failed while running a feature.",
	InvalidSettingValue:    "The value is not valid for a setting of %s.",
	SettingNotFound:        "Plugin %s has no such setting.",
	PluginNotFound:         "Plugin %s is not installed.",
	ContributionNotFound:   "No such feature is provided by %s.",
	AmbiguousContribution:  "Several plugins provide this feature; choose one (%s).",
}

const unknownKey = "Operation failed for %s."

var germanMessages = map[string]string{
	"Plugin %s was installed.":                                       "Plugin %s wurde installiert.",
	"Plugin %s was uninstalled.":                                     "Plugin %s wurde deinstalliert.",
	"Plugin %s was enabled.":                                         "Plugin %s wurde aktiviert.",
	"Plugin %s was disabled.":                                        "Plugin %s wurde deaktiviert.",
	"Settings of plugin %s were updated.":                            "Die Einstellungen von Plugin %s wurden gespeichert.",
	"The manifest of %s has no id.":                                  "Das Manifest von %s hat keine ID.",
	"A plugin with id %s is already installed.":                      "Ein Plugin mit der ID %s ist bereits installiert.",
	"Plugin %s has an invalid version.":                              "Plugin %s hat eine ungültige Version.",
	"Plugin %s targets an unsupported host API version.":             "Plugin %s benötigt eine nicht unterstützte API-Version.",
	"Plugin %s declares an unknown type.":                            "Plugin %s gibt einen unbekannten Typ an.",
	"Plugin %s requests an unknown permission.":                      "Plugin %s fordert eine unbekannte Berechtigung an.",
	"Plugin %s does not declare the capabilities its type requires.": "Plugin %s deklariert nicht die für seinen Typ nötigen Funktionen.",
	"The manifest of %s is invalid.":                                 "Das Manifest von %s ist ungültig.",
	"No plugin manifest was found in %s.":                            "In %s wurde kein Plugin-Manifest gefunden.",
	"%s is not a supported plugin package.":                          "%s ist kein unterstütztes Plugin-Paket.",
	"A file operation failed for %s.":                                "Ein Dateizugriff für %s ist fehlgeschlagen.",
	"Plugin %s failed to start.":                                     "Plugin %s konnte nicht gestartet werden.",
	"Plugin %s took too long to start.":                              "Der Start von Plugin %s hat zu lange gedauert.",
	"Plugin %s is not allowed to do that.":                           "Plugin %s hat dafür keine Berechtigung.",
	"Plugin %s did not shut down cleanly.":                           "Plugin %s wurde nicht sauber beendet.",
	"Plugin %s cannot do that in its current state.":                 "Plugin %s kann das im aktuellen Zustand nicht ausführen.",
	"Plugin %s did not register a handler for this feature.":         "Plugin %s hat für diese Funktion keinen Handler registriert.",
	"Plugin %s failed while running a feature.":                      "Plugin %s ist bei der Ausführung fehlgeschlagen.",
	"The value is not valid for a setting of %s.":                    "Der Wert ist für eine Einstellung von %s ungültig.",
	"Plugin %s has no such setting.":                                 "Plugin %s hat keine solche Einstellung.",
	"Plugin %s is not installed.":                                    "Plugin %s ist nicht installiert.",
	"No such feature is provided by %s.":                             "%s stellt diese Funktion nicht bereit.",
	"Several plugins provide this feature; choose one (%s).":         "Mehrere Plugins stellen diese Funktion bereit; bitte eines wählen (%s).",
	"Operation failed for %s.":                                       "Der Vorgang für %s ist fehlgeschlagen.",
}

var messages = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, key := range successKeys {
		_ = b.SetString(language.English, key, key)
	}
	for _, key := range kindKeys {
		_ = b.SetString(language.English, key, key)
	}
	_ = b.SetString(language.English, unknownKey, unknownKey)
	for key, msg := range germanMessages {
		_ = b.SetString(language.German, key, msg)
	}
	return b
}

func printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	matcher := language.NewMatcher(messages.Languages())
	_, idx, _ := matcher.Match(tag)
	return message.NewPrinter(messages.Languages()[idx], message.Catalog(messages))
}

// Languages returns the locales with translated messages.
func Languages() []language.Tag {
	return messages.Languages()
}

// Success returns the localized confirmation for a completed action.
func Success(action Action, subject, locale string) string {
	key, ok := successKeys[action]
	if !ok {
		key = unknownKey
	}
	return printer(locale).Sprintf(key, subject)
}

// Message returns a localized, user-facing description of err.
// Unclassified errors produce a generic failure message.
func Message(err error, subject, locale string) string {
	if err == nil {
		return ""
	}
	p := printer(locale)
	key, ok := kindKeys[KindOf(err)]
	if !ok {
		key = unknownKey
	}
	if subject == "" {
		subject = "?"
		var fe *Error
		if errors.As(err, &fe) && fe.Plugin != "" {
			subject = fe.Plugin
		}
	}
	return p.Sprintf(key, subject)
}
