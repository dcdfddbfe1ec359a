//go:build darwin

package notify

// NewPlatformNotifier returns the osascript notifier.
func NewPlatformNotifier() (Notifier, error) {
	return &OSAScriptNotifier{}, nil
}
