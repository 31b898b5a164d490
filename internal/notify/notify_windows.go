//go:build windows

package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// toastNotifier displays notifications via a PowerShell toast
type toastNotifier struct{}

// New returns the Windows notifier
func New() (Notifier, error) {
	if _, err := exec.LookPath("powershell"); err != nil {
		return nil, fmt.Errorf("powershell not found: %w", err)
	}
	return toastNotifier{}, nil
}

func (toastNotifier) Notify(title, body string, urgent bool) error {
	script := fmt.Sprintf(`
$ErrorActionPreference = "Stop"
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null

$template = @"
<toast>
    <visual>
        <binding template="ToastText02">
            <text id="1">%s</text>
            <text id="2">%s</text>
        </binding>
    </visual>
</toast>
"@

$xml = New-Object Windows.Data.Xml.Dom.XmlDocument
$xml.LoadXml($template)
$toast = [Windows.UI.Notifications.ToastNotification]::new($xml)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("%s").Show($toast)
`, xmlEscape(title), xmlEscape(body), appName)

	return exec.Command("powershell", "-Command", script).Run()
}

func (toastNotifier) Close() error { return nil }

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
