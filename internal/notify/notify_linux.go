//go:build linux

package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsBusName    = "org.freedesktop.Notifications"
	notificationsObjectPath = "/org/freedesktop/Notifications"
	notificationsMethod     = notificationsBusName + ".Notify"

	urgencyNormal   = byte(1)
	urgencyCritical = byte(2)

	expireDefault = int32(-1)
)

// DBusNotifier sends notifications over the session bus
type DBusNotifier struct {
	conn *dbus.Conn
}

// New connects to the desktop notification service
func New() (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{conn: conn}, nil
}

// Notify calls org.freedesktop.Notifications.Notify
func (n *DBusNotifier) Notify(title, body string, urgent bool) error {
	urgency := urgencyNormal
	if urgent {
		urgency = urgencyCritical
	}

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency),
	}

	obj := n.conn.Object(notificationsBusName, dbus.ObjectPath(notificationsObjectPath))
	call := obj.Call(notificationsMethod, 0,
		appName,
		uint32(0), // replaces_id
		"audio-volume-high",
		title,
		body,
		[]string{}, // actions
		hints,
		expireDefault,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// Close is a no-op; the shared session bus connection stays open.
func (n *DBusNotifier) Close() error {
	return nil
}
