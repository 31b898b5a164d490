package ui

import (
	"github.com/austinkregel/local-media/resonanced/internal/analysis"
)

// FileStartMsg indicates a worker picked up a file
type FileStartMsg struct {
	Path string
}

// FileCompleteMsg indicates a file has finished analysis
type FileCompleteMsg struct {
	Result analysis.ItemResult
}

// AllCompleteMsg indicates all files have been processed
type AllCompleteMsg struct {
	Status analysis.WorkerStatus
}
