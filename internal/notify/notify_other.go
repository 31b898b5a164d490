//go:build !linux && !darwin && !windows

package notify

import "log"

type logNotifier struct{}

// New returns a notifier that only logs on unsupported platforms
func New() (Notifier, error) {
	return logNotifier{}, nil
}

func (logNotifier) Notify(title, body string, urgent bool) error {
	log.Printf("[NOTIFY] %s: %s", title, body)
	return nil
}

func (logNotifier) Close() error { return nil }
