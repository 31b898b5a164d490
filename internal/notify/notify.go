// Package notify raises desktop notifications for results whose safety
// tier warrants attention.
package notify

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

const appName = "resonanced"

// Notifier delivers a desktop notification.
type Notifier interface {
	Notify(title, body string, urgent bool) error
	Close() error
}

// SafetyNotifier forwards assessments at or above a minimum tier.
type SafetyNotifier struct {
	mu      sync.Mutex
	backend Notifier
	minTier safety.Tier
	sent    map[string]bool // Paths already notified
}

// NewSafetyNotifier wraps backend. A nil backend disables delivery.
func NewSafetyNotifier(backend Notifier, minTier safety.Tier) *SafetyNotifier {
	return &SafetyNotifier{
		backend: backend,
		minTier: minTier,
		sent:    make(map[string]bool),
	}
}

// ShouldNotify reports whether an assessment reaches the minimum tier.
func (s *SafetyNotifier) ShouldNotify(a safety.Assessment) bool {
	return a.Tier >= s.minTier
}

// Notify sends one notification per path for qualifying assessments. It
// reports whether a notification was sent.
func (s *SafetyNotifier) Notify(path string, a safety.Assessment) bool {
	if s.backend == nil || !s.ShouldNotify(a) {
		return false
	}

	s.mu.Lock()
	if s.sent[path] {
		s.mu.Unlock()
		return false
	}
	s.sent[path] = true
	s.mu.Unlock()

	title, body := Message(path, a)
	if err := s.backend.Notify(title, body, a.Tier >= safety.TierResearch); err != nil {
		log.Printf("[NOTIFY] Failed to show notification: %v", err)
		return false
	}

	log.Printf("[NOTIFY] %s tier notification for %s", a.Tier, path)
	return true
}

// Close releases the backend.
func (s *SafetyNotifier) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Message formats the notification text for an assessment.
func Message(path string, a safety.Assessment) (string, string) {
	title := fmt.Sprintf("%s frequency detected", a.Tier)
	name := filepath.Base(path)
	if path == "" {
		name = "Tone"
	}
	body := fmt.Sprintf("%s peaks at %.1f Hz. Recommended volume %.0f%%.",
		name, a.Hz, a.RecommendedVolume*100)
	return title, body
}
