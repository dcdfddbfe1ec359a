package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OSAScriptNotifier shows notifications through "osascript display notification".
// Notifications Center decides how long they stay, so Timeout is ignored.
type OSAScriptNotifier struct {
	// Run executes osascript with args; nil runs the real binary.
	Run func(ctx context.Context, args ...string) error
}

// Notify displays n.
func (o *OSAScriptNotifier) Notify(ctx context.Context, n Notification) error {
	run := o.Run
	if run == nil {
		run = runOSAScript
	}
	if err := run(ctx, "-e", appleScript(n)); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func appleScript(n Notification) string {
	return fmt.Sprintf("display notification %s with title %s subtitle %s",
		quoteAppleScript(n.Body), quoteAppleScript(n.AppName), quoteAppleScript(n.Summary))
}

func quoteAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func runOSAScript(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "osascript", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
