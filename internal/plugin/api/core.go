package api

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) settingsModule() Module {
	return Module{
		Name: "settings",
		Functions: []*Function{
			fn("get", "", s.settingsGet),
			fn("set", "", s.settingsSet),
			fn("remove", "", s.settingsRemove),
			fn("clear", "", s.settingsClear),
			fn("keys", "", s.settingsKeys),
			fn("all", "", s.settingsAll),
		},
	}
}

// get(key, default?) -> value
func (s *Surface) settingsGet(_ context.Context, args Args) (any, error) {
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return s.settings.Get(key, args.Any(1)), nil
}

// set(key, value)
func (s *Surface) settingsSet(_ context.Context, args Args) (any, error) {
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, s.settings.Set(key, args.Any(1))
}

// remove(key)
func (s *Surface) settingsRemove(_ context.Context, args Args) (any, error) {
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return nil, s.settings.Remove(key)
}

// clear()
func (s *Surface) settingsClear(_ context.Context, _ Args) (any, error) {
	return nil, s.settings.Clear()
}

// keys() -> [key]
func (s *Surface) settingsKeys(_ context.Context, _ Args) (any, error) {
	keys := s.settings.Keys()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

// all() -> {key: value}
func (s *Surface) settingsAll(_ context.Context, _ Args) (any, error) {
	return s.settings.All(), nil
}

func (s *Surface) logModule() Module {
	return Module{
		Name: "log",
		Functions: []*Function{
			fn("debug", "", s.logAt(logrus.DebugLevel)),
			fn("info", "", s.logAt(logrus.InfoLevel)),
			fn("warn", "", s.logAt(logrus.WarnLevel)),
			fn("error", "", s.logAt(logrus.ErrorLevel)),
		},
	}
}

// <level>(message, fields?)
func (s *Surface) logAt(level logrus.Level) func(context.Context, Args) (any, error) {
	return func(_ context.Context, args Args) (any, error) {
		msg := fmt.Sprint(args.Any(0))
		entry := s.log.WithField("source", "plugin")
		if fields, ok := args.Any(1).(map[string]any); ok {
			entry = entry.WithFields(logrus.Fields(fields))
		}
		entry.Log(level, msg)
		return nil, nil
	}
}

func (s *Surface) pluginModule() Module {
	return Module{
		Name: "plugin",
		Functions: []*Function{
			fn("id", "", func(context.Context, Args) (any, error) { return s.plugin, nil }),
			fn("version", "", func(context.Context, Args) (any, error) { return s.version, nil }),
			fn("permissions", "", s.pluginPermissions),
			fn("hasPermission", "", s.pluginHasPermission),
		},
	}
}

// permissions() -> [permission]
func (s *Surface) pluginPermissions(_ context.Context, _ Args) (any, error) {
	perms := s.grant.Permissions()
	out := make([]any, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out, nil
}

// hasPermission(permission) -> bool
func (s *Surface) pluginHasPermission(_ context.Context, args Args) (any, error) {
	p, err := args.String(0)
	if err != nil {
		return nil, err
	}
	return s.grant.Has(security.Permission(p)), nil
}
