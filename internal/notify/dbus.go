package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = notificationsName + ".Notify"
)

// DBusNotifier sends notifications through org.freedesktop.Notifications
// on the session bus.
type DBusNotifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{
		conn: conn,
		obj:  conn.Object(notificationsName, notificationsPath),
	}, nil
}

// NewDBusNotifierWithObject uses obj as the notification server.
func NewDBusNotifierWithObject(obj dbus.BusObject) *DBusNotifier {
	return &DBusNotifier{obj: obj}
}

// Notify calls Notify(app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout).
// expire_timeout 0 asks the server to keep the notification until dismissed.
func (d *DBusNotifier) Notify(ctx context.Context, n Notification) error {
	call := d.obj.CallWithContext(ctx, notificationsNotify, 0,
		n.AppName,
		uint32(0),
		n.Icon,
		n.Summary,
		n.Body,
		[]string{},
		map[string]dbus.Variant{},
		int32(n.Timeout.Milliseconds()),
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("unexpected notification reply: %w", err)
	}
	return nil
}

// Close releases the session bus connection.
func (d *DBusNotifier) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
