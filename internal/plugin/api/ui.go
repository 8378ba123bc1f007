package api

import (
	"context"
	"fmt"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) uiModule() Module {
	return Module{
		Name: "ui",
		Functions: []*Function{
			fn("registerPanel", security.UIPanel, s.registerKind(KindPanel)),
			fn("addMenuItem", security.UIMenu, s.uiAddMenuItem),
			fn("addToolbarButton", security.UIToolbar, s.uiAddToolbarButton),
			fn("notify", security.UIDialog, s.uiNotify),
			fn("confirm", security.UIDialog, s.uiConfirm),
			fn("prompt", security.UIDialog, s.uiPrompt),
		},
	}
}

// addMenuItem({id, label, menu?, shortcut?, action})
func (s *Surface) uiAddMenuItem(_ context.Context, args Args) (any, error) {
	if s.providers.UI == nil {
		return nil, ErrUnavailable
	}
	def, err := args.Map(0)
	if err != nil {
		return nil, err
	}
	item := MenuItem{}
	item.ID, _ = def["id"].(string)
	item.Label, _ = def["label"].(string)
	item.Menu, _ = def["menu"].(string)
	item.Shortcut, _ = def["shortcut"].(string)
	action, ok := def["action"].(Callable)
	if item.ID == "" || item.Label == "" || !ok {
		return nil, args.Wrap(0, fmt.Errorf("menu item requires id, label and action"))
	}
	item.Action = action
	if item.Menu == "" {
		item.Menu = "plugins"
	}

	s.markUI()
	return nil, s.providers.UI.AddMenuItem(s.plugin, item)
}

// addToolbarButton({id, label, icon?, tooltip?, action})
func (s *Surface) uiAddToolbarButton(_ context.Context, args Args) (any, error) {
	if s.providers.UI == nil {
		return nil, ErrUnavailable
	}
	def, err := args.Map(0)
	if err != nil {
		return nil, err
	}
	btn := ToolbarButton{}
	btn.ID, _ = def["id"].(string)
	btn.Label, _ = def["label"].(string)
	btn.Icon, _ = def["icon"].(string)
	btn.Tooltip, _ = def["tooltip"].(string)
	action, ok := def["action"].(Callable)
	if btn.ID == "" || !ok {
		return nil, args.Wrap(0, fmt.Errorf("toolbar button requires id and action"))
	}
	btn.Action = action

	s.markUI()
	return nil, s.providers.UI.AddToolbarButton(s.plugin, btn)
}

// notify(message, level?)
func (s *Surface) uiNotify(_ context.Context, args Args) (any, error) {
	message, err := args.String(0)
	if err != nil {
		return nil, err
	}
	if message == "" {
		return nil, args.Wrap(0, fmt.Errorf("message cannot be empty"))
	}
	levelStr, err := args.OptString(1, string(NotificationInfo))
	if err != nil {
		return nil, err
	}

	level := NotificationLevel(levelStr)
	switch level {
	case NotificationInfo, NotificationWarning, NotificationError, NotificationSuccess:
	default:
		level = NotificationInfo
	}

	if s.providers.UI == nil {
		// Notifications are optional; headless hosts just log them.
		s.log.WithField("level", string(level)).Info(message)
		return nil, nil
	}
	return nil, s.providers.UI.Notify(s.plugin, message, level)
}

// confirm(title, message) -> bool
func (s *Surface) uiConfirm(ctx context.Context, args Args) (any, error) {
	if s.providers.UI == nil {
		return nil, ErrUnavailable
	}
	title, err := args.String(0)
	if err != nil {
		return nil, err
	}
	message, err := args.OptString(1, "")
	if err != nil {
		return nil, err
	}
	return s.providers.UI.Confirm(ctx, s.plugin, title, message)
}

// prompt(title, message?, default?) -> string or nil
func (s *Surface) uiPrompt(ctx context.Context, args Args) (any, error) {
	if s.providers.UI == nil {
		return nil, ErrUnavailable
	}
	title, err := args.String(0)
	if err != nil {
		return nil, err
	}
	message, err := args.OptString(1, "")
	if err != nil {
		return nil, err
	}
	def, err := args.OptString(2, "")
	if err != nil {
		return nil, err
	}
	value, ok, err := s.providers.UI.Prompt(ctx, s.plugin, title, message, def)
	if err != nil || !ok {
		return nil, err
	}
	return value, nil
}
