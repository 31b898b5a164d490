// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

// Environment variables that override file settings.
const (
	EnvWindowSize   = "RESONANCE_WINDOW_SIZE"
	EnvHighCutoffHz = "RESONANCE_HIGH_CUTOFF_HZ"
	EnvTimeout      = "RESONANCE_TIMEOUT"
	EnvStore        = "RESONANCE_STORE"
	EnvDataDir      = "RESONANCE_DATA_DIR"
	EnvMaxWorkers   = "RESONANCE_MAX_WORKERS"
)

// Config represents the daemon configuration
type Config struct {
	// LibraryPaths is a list of directories scanned for audio files
	LibraryPaths []string `json:"libraryPaths"`

	// DataDir is where to store analysis results
	DataDir string `json:"dataDir"`

	// Store selects the result backend: "json" or "sqlite"
	Store string `json:"store"`

	Analysis AnalysisConfig `json:"analysis"`
	Worker   WorkerConfig   `json:"worker"`
	Safety   SafetyConfig   `json:"safety"`
	Output   OutputConfig   `json:"output"`
}

// AnalysisConfig contains spectral analysis settings
type AnalysisConfig struct {
	// WindowSize in samples, a power of two up to 32768 (default: 16384)
	WindowSize int `json:"windowSize"`

	// Stride is the decimation factor, 1 or 2 (default: 1)
	Stride int `json:"stride"`

	LowCutoffHz  float64 `json:"lowCutoffHz"`
	HighCutoffHz float64 `json:"highCutoffHz"`

	// SampleRate files are decoded to (default: 44100)
	SampleRate int `json:"sampleRate"`

	// SegmentOffsetSeconds is where decoding starts; negative centres the
	// segment in the file, as do files too short for the offset (default: 30)
	SegmentOffsetSeconds float64 `json:"segmentOffsetSeconds"`

	// SegmentSeconds is how much audio is analyzed (default: 3)
	SegmentSeconds float64 `json:"segmentSeconds"`

	// TimeoutSeconds bounds one file's analysis (default: 60)
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// WorkerConfig contains batch analysis settings
type WorkerConfig struct {
	// MaxWorkers (0 = NumCPU - 1)
	MaxWorkers int `json:"maxWorkers"`

	// ThrottleMs between files while a preview is playing (default: 100)
	ThrottleMs int64 `json:"throttleMs"`

	// IdleThrottleMs between files otherwise (default: 10)
	IdleThrottleMs int64 `json:"idleThrottleMs"`
}

// SafetyConfig contains listening safety settings
type SafetyConfig struct {
	// AutoAttenuate caps preview volume at the recommended volume
	AutoAttenuate bool `json:"autoAttenuate"`

	// NotifyTier is the lowest tier that raises a desktop notification
	NotifyTier safety.Tier `json:"notifyTier"`

	// Notify enables desktop notifications
	Notify bool `json:"notify"`
}

// OutputConfig contains audio output settings
type OutputConfig struct {
	// DefaultVolume 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`

	// ToneSeconds is the preview length (default: 3)
	ToneSeconds float64 `json:"toneSeconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LibraryPaths: []string{},
		Store:        "json",
		Analysis: AnalysisConfig{
			WindowSize:           spectrum.DefaultWindowSize,
			Stride:               1,
			LowCutoffHz:          spectrum.DefaultLowCutoffHz,
			HighCutoffHz:         spectrum.DefaultHighCutoffHz,
			SampleRate:           44100,
			SegmentOffsetSeconds: 30,
			SegmentSeconds:       3,
			TimeoutSeconds:       60,
		},
		Worker: WorkerConfig{
			MaxWorkers:     0,
			ThrottleMs:     100,
			IdleThrottleMs: 10,
		},
		Safety: SafetyConfig{
			AutoAttenuate: true,
			NotifyTier:    safety.TierExpert,
			Notify:        true,
		},
		Output: OutputConfig{
			DefaultVolume: 1.0,
			ToneSeconds:   3,
		},
	}
}

// SpectrumOptions returns the analyzer options for this configuration.
func (c *Config) SpectrumOptions() spectrum.Options {
	return spectrum.Options{
		WindowSize:   c.Analysis.WindowSize,
		Stride:       c.Analysis.Stride,
		LowCutoffHz:  c.Analysis.LowCutoffHz,
		HighCutoffHz: c.Analysis.HighCutoffHz,
	}
}

// Timeout returns the per-file analysis deadline.
func (c *Config) Timeout() time.Duration {
	if c.Analysis.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config // As stored on disk
	effective  *Config // config with environment overrides
	lookupEnv  func(string) (string, bool)
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	cfg := DefaultConfig()
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     cfg,
		effective:  cfg,
		lookupEnv:  os.LookupEnv,
	}
}

// Load reads the configuration from disk, then applies environment
// overrides from the process and any .env file in the config directory.
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		if err := m.Save(); err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(m.configPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		config := DefaultConfig() // Start with defaults
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		m.config = config
	}

	envFile, err := m.readEnvFile()
	if err != nil {
		return err
	}
	m.effective = m.applyEnv(m.config, envFile)
	return nil
}

func (m *Manager) readEnvFile() (map[string]string, error) {
	path := filepath.Join(m.configDir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// applyEnv returns a copy of base with overrides applied. Process
// variables win over the .env file.
func (m *Manager) applyEnv(base *Config, envFile map[string]string) *Config {
	cfg := *base
	cfg.LibraryPaths = append([]string(nil), base.LibraryPaths...)

	get := func(key string) (string, bool) {
		if v, ok := m.lookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := envFile[key]
		return v, ok && v != ""
	}

	if v, ok := get(EnvWindowSize); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.WindowSize = n
		} else {
			log.Printf("[CONFIG] Ignoring %s=%q: %v", EnvWindowSize, v, err)
		}
	}
	if v, ok := get(EnvHighCutoffHz); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.HighCutoffHz = f
		} else {
			log.Printf("[CONFIG] Ignoring %s=%q: %v", EnvHighCutoffHz, v, err)
		}
	}
	if v, ok := get(EnvTimeout); ok {
		if secs, err := parseSeconds(v); err == nil {
			cfg.Analysis.TimeoutSeconds = secs
		} else {
			log.Printf("[CONFIG] Ignoring %s=%q: %v", EnvTimeout, v, err)
		}
	}
	if v, ok := get(EnvStore); ok {
		cfg.Store = strings.ToLower(v)
	}
	if v, ok := get(EnvDataDir); ok {
		cfg.DataDir = v
	}
	if v, ok := get(EnvMaxWorkers); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.MaxWorkers = n
		} else {
			log.Printf("[CONFIG] Ignoring %s=%q: %v", EnvMaxWorkers, v, err)
		}
	}

	return &cfg
}

// parseSeconds accepts "90", "90s" or "1m30s".
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	return int(d.Seconds()), nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the effective configuration
func (m *Manager) Get() *Config {
	return m.effective
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// GetDataDir returns the data directory, defaulting to the config directory
func (m *Manager) GetDataDir() string {
	if m.effective.DataDir != "" {
		return m.effective.DataDir
	}
	return m.configDir
}

// Update replaces the stored configuration and saves it
func (m *Manager) Update(config *Config) error {
	m.config = config
	m.effective = m.applyEnv(config, nil)
	return m.Save()
}

// AddLibraryPath adds a library path
func (m *Manager) AddLibraryPath(path string) error {
	for _, p := range m.config.LibraryPaths {
		if p == path {
			return nil // Already exists
		}
	}

	m.config.LibraryPaths = append(m.config.LibraryPaths, path)
	m.effective.LibraryPaths = append([]string(nil), m.config.LibraryPaths...)
	return m.Save()
}

// RemoveLibraryPath removes a library path
func (m *Manager) RemoveLibraryPath(path string) error {
	paths := make([]string, 0, len(m.config.LibraryPaths))
	for _, p := range m.config.LibraryPaths {
		if p != path {
			paths = append(paths, p)
		}
	}
	m.config.LibraryPaths = paths
	m.effective.LibraryPaths = append([]string(nil), paths...)
	return m.Save()
}
