// Package ui provides the Bubbletea terminal interface for batch analysis
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
)

// FileState represents the analysis state of a single file
type FileState int

const (
	StateQueued FileState = iota
	StateAnalyzing
	StateAnalyzed
	StateSkipped
	StateUnanalyzed
	StateFailed
)

// FileProgress tracks one file of the batch
type FileProgress struct {
	Path      string
	State     FileState
	StartTime time.Time
	Elapsed   time.Duration
	Result    *analysis.Result
	Error     error
}

// Model is the Bubbletea model for the batch analysis UI
type Model struct {
	Files []FileProgress
	index map[string]int

	TotalFiles     int
	CompletedFiles int
	FailedFiles    int

	StartTime time.Time
	Done      bool
	Quit      bool // User quit before completion
	Final     analysis.WorkerStatus

	Width  int
	Height int
}

// NewModel creates a new UI model for the given files
func NewModel(paths []string) Model {
	files := make([]FileProgress, len(paths))
	index := make(map[string]int, len(paths))
	for i, path := range paths {
		files[i] = FileProgress{Path: path, State: StateQueued}
		index[path] = i
	}

	return Model{
		Files:      files,
		index:      index,
		TotalFiles: len(paths),
		StartTime:  time.Now(),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case FileStartMsg:
		if i, ok := m.index[msg.Path]; ok {
			m.Files[i].State = StateAnalyzing
			m.Files[i].StartTime = time.Now()
		}

	case FileCompleteMsg:
		i, ok := m.index[msg.Result.Path]
		if !ok {
			return m, nil
		}
		m.Files[i] = completeFile(m.Files[i], msg.Result)
		m.CompletedFiles++
		if m.Files[i].State == StateFailed {
			m.FailedFiles++
		}

	case AllCompleteMsg:
		m.Done = true
		m.Final = msg.Status
		return m, tea.Quit
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}

// completeFile applies a worker result to a file's progress
func completeFile(fp FileProgress, r analysis.ItemResult) FileProgress {
	if !fp.StartTime.IsZero() {
		fp.Elapsed = time.Since(fp.StartTime)
	}
	fp.Result = r.Result
	fp.Error = r.Error

	switch {
	case r.Skipped:
		fp.State = StateSkipped
	case r.Status == analysis.StatusAnalyzed:
		fp.State = StateAnalyzed
	case r.Status == analysis.StatusUnanalyzed:
		fp.State = StateUnanalyzed
	default:
		fp.State = StateFailed
		if fp.Error == nil {
			fp.Error = fmt.Errorf("analysis failed")
		}
	}
	return fp
}

// Progress returns the completed fraction of the batch.
func (m Model) Progress() float64 {
	if m.TotalFiles == 0 {
		return 1
	}
	return float64(m.CompletedFiles) / float64(m.TotalFiles)
}
