//go:build !darwin

package notify

// NewPlatformNotifier returns a notifier on the D-Bus session bus.
func NewPlatformNotifier() (Notifier, error) {
	return NewDBusNotifier()
}
