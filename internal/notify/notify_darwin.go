//go:build darwin

package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// scriptNotifier displays notifications via AppleScript
type scriptNotifier struct{}

// New returns the macOS notifier
func New() (Notifier, error) {
	if _, err := exec.LookPath("osascript"); err != nil {
		return nil, fmt.Errorf("osascript not found: %w", err)
	}
	return scriptNotifier{}, nil
}

func (scriptNotifier) Notify(title, body string, urgent bool) error {
	sound := ""
	if urgent {
		sound = ` sound name "default"`
	}
	script := fmt.Sprintf(`display notification %q with title %q%s`,
		escape(body), escape(title), sound)
	return exec.Command("osascript", "-e", script).Run()
}

func (scriptNotifier) Close() error { return nil }

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}
