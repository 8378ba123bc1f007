package canvas

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/brushwork/internal/plugin/api"
)

// Notification is one message shown through the console UI.
type Notification struct {
	Plugin  string
	Message string
	Level   api.NotificationLevel
}

// ConsoleUI is a headless UI provider. Notifications go to the log,
// dialogs answer with fixed values and menu entries are only recorded.
type ConsoleUI struct {
	mu sync.Mutex

	// ConfirmAnswer is returned by every Confirm call.
	ConfirmAnswer bool

	notifications []Notification
	menus         map[string][]api.MenuItem
	buttons       map[string][]api.ToolbarButton
	log           *logrus.Entry
}

// NewConsoleUI creates a console UI writing to log.
func NewConsoleUI(log *logrus.Entry) *ConsoleUI {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ConsoleUI{
		menus:   make(map[string][]api.MenuItem),
		buttons: make(map[string][]api.ToolbarButton),
		log:     log,
	}
}

// Notify logs the message at the matching level.
func (u *ConsoleUI) Notify(plugin, message string, level api.NotificationLevel) error {
	u.mu.Lock()
	u.notifications = append(u.notifications, Notification{Plugin: plugin, Message: message, Level: level})
	u.mu.Unlock()

	entry := u.log.WithFields(logrus.Fields{"plugin": plugin, "source": "notification"})
	switch level {
	case api.NotificationError:
		entry.Error(message)
	case api.NotificationWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	return nil
}

// Confirm returns ConfirmAnswer.
func (u *ConsoleUI) Confirm(ctx context.Context, plugin, title, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.log.WithField("plugin", plugin).Debugf("confirm %q answered %v", title, u.ConfirmAnswer)
	return u.ConfirmAnswer, nil
}

// Prompt accepts the default value.
func (u *ConsoleUI) Prompt(ctx context.Context, plugin, title, message, defaultValue string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return defaultValue, true, nil
}

// AddMenuItem records a menu entry. Ids are unique per plugin.
func (u *ConsoleUI) AddMenuItem(plugin string, item api.MenuItem) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.menus[plugin] {
		if existing.ID == item.ID {
			return fmt.Errorf("menu item %q already added by %s", item.ID, plugin)
		}
	}
	u.menus[plugin] = append(u.menus[plugin], item)
	return nil
}

// AddToolbarButton records a toolbar button. Ids are unique per plugin.
func (u *ConsoleUI) AddToolbarButton(plugin string, button api.ToolbarButton) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.buttons[plugin] {
		if existing.ID == button.ID {
			return fmt.Errorf("toolbar button %q already added by %s", button.ID, plugin)
		}
	}
	u.buttons[plugin] = append(u.buttons[plugin], button)
	return nil
}

// RemoveAll drops every menu entry and button owned by plugin.
func (u *ConsoleUI) RemoveAll(plugin string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.menus, plugin)
	delete(u.buttons, plugin)
}

// Notifications returns the notifications shown so far.
func (u *ConsoleUI) Notifications() []Notification {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Notification(nil), u.notifications...)
}

// MenuItems returns the menu entries owned by plugin.
func (u *ConsoleUI) MenuItems(plugin string) []api.MenuItem {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]api.MenuItem(nil), u.menus[plugin]...)
}

// ToolbarButtons returns the toolbar buttons owned by plugin.
func (u *ConsoleUI) ToolbarButtons(plugin string) []api.ToolbarButton {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]api.ToolbarButton(nil), u.buttons[plugin]...)
}

// Owners returns the plugins that own menu entries or buttons, sorted.
func (u *ConsoleUI) Owners() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	seen := make(map[string]struct{})
	for p := range u.menus {
		seen[p] = struct{}{}
	}
	for p := range u.buttons {
		seen[p] = struct{}{}
	}
	owners := make([]string, 0, len(seen))
	for p := range seen {
		owners = append(owners, p)
	}
	sort.Strings(owners)
	return owners
}
