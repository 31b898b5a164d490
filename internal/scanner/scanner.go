// Package scanner provides library scanning functionality.
// It walks configured library paths and finds audio files.
package scanner

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrScanRunning is returned when a scan is already in progress.
var ErrScanRunning = errors.New("scan already in progress")

// SupportedExtensions are the audio file extensions we recognize
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wav":  true,
	".wma":  true,
	".alac": true,
	".opus": true,
	".aiff": true,
}

// IsAudioFile reports whether path has a supported extension.
func IsAudioFile(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileInfo represents basic info about an audio file
type FileInfo struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	ModifiedAt int64  `json:"modifiedAt"` // Unix timestamp
}

// ScanResult is the result of scanning one library path
type ScanResult struct {
	LibraryPath string     `json:"libraryPath"`
	Files       []FileInfo `json:"files"`
	TotalFiles  int        `json:"totalFiles"`
	ScanTimeMs  int64      `json:"scanTimeMs"`
	Error       string     `json:"error,omitempty"`
}

// ScanStatus represents the current scan state
type ScanStatus struct {
	Status   string `json:"status"`   // "idle", "scanning", "complete"
	Progress int    `json:"progress"` // 0-100
	Message  string `json:"message"`
}

// Scanner handles library scanning
type Scanner struct {
	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	status    ScanStatus
}

// NewScanner creates a new scanner
func NewScanner() *Scanner {
	return &Scanner{status: ScanStatus{Status: "idle"}}
}

// GetStatus returns the current scan status
func (s *Scanner) GetStatus() ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRunning returns whether a scan is in progress
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stop stops any running scan
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// ScanPaths scans the given library paths for audio files
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) ([]ScanResult, error) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil, ErrScanRunning
	}
	s.isRunning = true
	s.status = ScanStatus{Status: "scanning", Message: "Starting scan..."}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	results := make([]ScanResult, 0, len(paths))
	for i, path := range paths {
		if ctx.Err() != nil {
			s.setStatus(ScanStatus{Status: "idle", Message: "Scan cancelled"})
			return results, ctx.Err()
		}

		s.setStatus(ScanStatus{Status: "scanning", Progress: (i * 100) / len(paths), Message: "Scanning: " + path})

		result := scanPath(ctx, path)
		results = append(results, result)
		log.Printf("[SCANNER] Found %d files in %s (%dms)", result.TotalFiles, path, result.ScanTimeMs)
	}

	s.setStatus(ScanStatus{Status: "complete", Progress: 100, Message: "Scan complete"})
	return results, nil
}

func (s *Scanner) setStatus(status ScanStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Files flattens scan results in library order.
func Files(results []ScanResult) []FileInfo {
	var files []FileInfo
	for _, r := range results {
		files = append(files, r.Files...)
	}
	return files
}

// scanPath scans a single library path
func scanPath(ctx context.Context, libraryPath string) ScanResult {
	start := time.Now()
	result := ScanResult{
		LibraryPath: libraryPath,
		Files:       []FileInfo{},
	}

	info, err := os.Stat(libraryPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !info.IsDir() {
		// A single file is scanned as itself
		if IsAudioFile(libraryPath) {
			result.Files = append(result.Files, FileInfo{
				Path:       libraryPath,
				Size:       info.Size(),
				ModifiedAt: info.ModTime().Unix(),
			})
			result.TotalFiles = 1
		} else {
			result.Error = "path is not a directory or audio file"
		}
		return result
	}

	err = walk(ctx, libraryPath, func(fi FileInfo) error {
		result.Files = append(result.Files, fi)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		result.Error = err.Error()
	}

	result.TotalFiles = len(result.Files)
	result.ScanTimeMs = time.Since(start).Milliseconds()
	return result
}

// walk visits audio files under root in lexical order, skipping hidden
// directories and unreadable entries.
func walk(ctx context.Context, root string, visit func(FileInfo) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsAudioFile(path) {
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			return nil // Skip files we can't stat
		}

		return visit(FileInfo{
			Path:       path,
			Size:       fileInfo.Size(),
			ModifiedAt: fileInfo.ModTime().Unix(),
		})
	})
}
