package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier raises an OS notification when a run finishes. It is
// opt-in; most runs are interactive and the summary box is enough.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier.
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send raises the notification. Unsupported platforms are silently ignored.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil
	}
}

// body flattens the counter fields into one line; desktop notifications
// have no column layout.
func body(n Notification) string {
	if len(n.Fields) == 0 {
		return n.Message
	}
	parts := make([]string, 0, len(n.Fields))
	for _, f := range n.Fields {
		parts = append(parts, fmt.Sprintf("%s %s", f.Value, strings.ToLower(f.Label)))
	}
	return strings.Join(parts, ", ")
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + escapeAppleScript(body(n)) + `" with title "` + escapeAppleScript(n.Title) + `"`
	if n.Command != "" {
		script += ` subtitle "scribe ` + escapeAppleScript(n.Command) + `"`
	}
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	args := []string{"-i", IconForType(n.Type)}
	if n.Type == NotifyError {
		args = append(args, "-u", "critical")
	}
	args = append(args, n.Title, body(n))
	cmd := exec.Command("notify-send", args...)
	return cmd.Run()
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// IconForType returns an icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
