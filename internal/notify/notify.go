// Package notify raises desktop notifications.
package notify

import (
	"context"
	"time"
)

// Notification defaults.
const (
	DefaultAppName = "devices-monitor"
	DefaultIcon    = "bluetooth"
	DefaultSummary = "Bluetooth devices status"
)

// Notification is a single desktop notification.
// A zero Timeout keeps the notification until the user dismisses it.
type Notification struct {
	AppName string
	Icon    string
	Summary string
	Body    string
	Timeout time.Duration
}

// New returns a persistent notification with the default app name, icon and summary.
func New(body string) Notification {
	return Notification{
		AppName: DefaultAppName,
		Icon:    DefaultIcon,
		Summary: DefaultSummary,
		Body:    body,
	}
}

// Notifier delivers notifications to the desktop.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type discard struct{}

func (discard) Notify(context.Context, Notification) error { return nil }

// Discard drops every notification.
var Discard Notifier = discard{}
