package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

func newTestManager(t *testing.T, env map[string]string) *Manager {
	t.Helper()
	m := NewManager(t.TempDir())
	m.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return m
}

func TestLoadCreatesDefaults(t *testing.T) {
	m := newTestManager(t, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(m.GetPath()); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}

	cfg := m.Get()
	if cfg.Analysis.WindowSize != 16384 {
		t.Errorf("Expected window 16384, got %d", cfg.Analysis.WindowSize)
	}
	if cfg.Analysis.SegmentSeconds != 3 || cfg.Analysis.SegmentOffsetSeconds != 30 {
		t.Errorf("Expected 3s segment at 30s, got %vs at %vs", cfg.Analysis.SegmentSeconds, cfg.Analysis.SegmentOffsetSeconds)
	}
	if cfg.Safety.NotifyTier != safety.TierExpert {
		t.Errorf("Expected EXPERT notify tier, got %v", cfg.Safety.NotifyTier)
	}
	if cfg.Timeout() != 60*time.Second {
		t.Errorf("Expected 60s timeout, got %s", cfg.Timeout())
	}
	if m.GetDataDir() != filepath.Dir(m.GetPath()) {
		t.Errorf("Expected data dir to default to config dir, got %s", m.GetDataDir())
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	m := newTestManager(t, nil)
	partial := `{"store": "sqlite", "analysis": {"windowSize": 4096}}`
	os.WriteFile(m.GetPath(), []byte(partial), 0600)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Store != "sqlite" || cfg.Analysis.WindowSize != 4096 {
		t.Errorf("Expected file values, got %+v", cfg)
	}
	if cfg.Analysis.HighCutoffHz != 4000 {
		t.Errorf("Expected default cutoff to survive, got %f", cfg.Analysis.HighCutoffHz)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	m := newTestManager(t, nil)
	os.WriteFile(m.GetPath(), []byte("{"), 0600)
	if err := m.Load(); err == nil {
		t.Error("Expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	m := newTestManager(t, map[string]string{
		EnvWindowSize:   "8192",
		EnvHighCutoffHz: "3000",
		EnvTimeout:      "1m30s",
		EnvStore:        "SQLITE",
		EnvMaxWorkers:   "not-a-number",
	})
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Analysis.WindowSize != 8192 || cfg.Analysis.HighCutoffHz != 3000 {
		t.Errorf("Expected analysis overrides, got %+v", cfg.Analysis)
	}
	if cfg.Timeout() != 90*time.Second {
		t.Errorf("Expected 90s timeout, got %s", cfg.Timeout())
	}
	if cfg.Store != "sqlite" {
		t.Errorf("Expected sqlite store, got %s", cfg.Store)
	}
	if cfg.Worker.MaxWorkers != 0 {
		t.Errorf("Expected invalid override to be ignored, got %d", cfg.Worker.MaxWorkers)
	}

	// Overrides are not persisted
	m.Save()
	fresh := newTestManager(t, nil)
	fresh.configDir, fresh.configPath = m.configDir, m.configPath
	fresh.Load()
	if fresh.Get().Analysis.WindowSize != 16384 {
		t.Errorf("Expected stored window 16384, got %d", fresh.Get().Analysis.WindowSize)
	}
}

func TestEnvFile(t *testing.T) {
	m := newTestManager(t, map[string]string{EnvDataDir: "/from/process"})
	env := "RESONANCE_DATA_DIR=/from/file\nRESONANCE_TIMEOUT=15\n"
	os.WriteFile(filepath.Join(m.configDir, ".env"), []byte(env), 0600)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.GetDataDir() != "/from/process" {
		t.Errorf("Expected process env to win, got %s", m.GetDataDir())
	}
	if m.Get().Timeout() != 15*time.Second {
		t.Errorf("Expected 15s from .env, got %s", m.Get().Timeout())
	}
}

func TestLibraryPaths(t *testing.T) {
	m := newTestManager(t, nil)
	m.Load()

	m.AddLibraryPath("/music")
	m.AddLibraryPath("/music")
	m.AddLibraryPath("/tones")
	if got := m.Get().LibraryPaths; len(got) != 2 {
		t.Fatalf("Expected 2 paths, got %v", got)
	}

	m.RemoveLibraryPath("/music")
	if got := m.Get().LibraryPaths; len(got) != 1 || got[0] != "/tones" {
		t.Errorf("Expected [/tones], got %v", got)
	}
}

func TestSpectrumOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.SpectrumOptions()
	if opts.WindowSize != cfg.Analysis.WindowSize || opts.HighCutoffHz != cfg.Analysis.HighCutoffHz {
		t.Errorf("Options do not mirror config: %+v", opts)
	}
}
