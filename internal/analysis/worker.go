package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

// ErrAlreadyRunning is returned by Start while a batch is in progress.
var ErrAlreadyRunning = errors.New("analysis already running")

// SegmentDecoder turns a media file into a mono sample block.
type SegmentDecoder interface {
	DecodeSegment(ctx context.Context, path string) (spectrum.Block, error)
}

// WorkerStatus represents the current state of background analysis
type WorkerStatus struct {
	Status       string `json:"status"` // "idle", "running", "paused", "complete"
	Total        int    `json:"total"`
	Analyzed     int    `json:"analyzed"`
	Unanalyzed   int    `json:"unanalyzed"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	InProgress   int    `json:"inProgress"`
	Message      string `json:"message"`
	StartedAt    int64  `json:"startedAt,omitempty"`
	EstimatedEnd int64  `json:"estimatedEnd,omitempty"`
}

// ItemResult contains the outcome of analyzing a single file
type ItemResult struct {
	Path     string
	FileHash string
	Status   Status
	Result   *Result
	Skipped  bool
	Error    error
}

// Record converts the outcome into a storable record.
func (r ItemResult) Record() *Record {
	rec := &Record{
		Result:   r.Result,
		Status:   r.Status,
		Version:  ResultVersion,
		FileHash: r.FileHash,
	}
	if r.Error != nil {
		rec.Error = r.Error.Error()
	}
	return rec
}

// Item identifies a file queued for analysis
type Item struct {
	Path     string
	FileHash string // Computed when empty
}

// Worker performs background analysis of a batch of files
type Worker struct {
	mu sync.Mutex

	// Configuration
	maxWorkers   int
	throttleMs   int64 // Sleep between items while busy
	idleThrottle int64 // Sleep between items when idle
	itemTimeout  time.Duration
	forceDefault bool
	force        bool // For the current batch
	options      spectrum.Options

	// State
	status     WorkerStatus
	ctx        context.Context
	cancel     context.CancelFunc
	isRunning  bool
	isPaused   bool
	resumeChan chan struct{}
	done       chan struct{}

	// External state
	isBusyFunc func() bool

	decoder  SegmentDecoder
	store    Store
	onStart  func(Item)
	onResult func(ItemResult)

	// Counts
	analyzedCount   int64
	unanalyzedCount int64
	failedCount     int64
	skippedCount    int64
	inProgressCount int64
}

// WorkerConfig contains configuration for the analysis worker
type WorkerConfig struct {
	MaxWorkers   int           // Maximum concurrent workers (0 = NumCPU - 1)
	ThrottleMs   int64         // Sleep ms between items while busy
	IdleThrottle int64         // Sleep ms between items when idle
	ItemTimeout  time.Duration // Per-item deadline (0 = DefaultTimeout)
	Force        bool          // Re-analyze items the store already has
	Options      spectrum.Options
	Decoder      SegmentDecoder
	Store        Store // Optional
	IsBusyFunc   func() bool
	OnStart      func(Item) // Called before each item is analyzed
	OnResult     func(ItemResult)
}

// NewWorker creates a new background analysis worker
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Decoder == nil {
		return nil, errors.New("worker requires a decoder")
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() - 1
		if maxWorkers < 1 {
			maxWorkers = 1
		}
	}

	throttleMs := cfg.ThrottleMs
	if throttleMs < 0 {
		throttleMs = 0
	}
	idleThrottle := cfg.IdleThrottle
	if idleThrottle < 0 {
		idleThrottle = 0
	}

	itemTimeout := cfg.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = DefaultTimeout
	}

	done := make(chan struct{})
	close(done)

	return &Worker{
		maxWorkers:   maxWorkers,
		throttleMs:   throttleMs,
		idleThrottle: idleThrottle,
		itemTimeout:  itemTimeout,
		forceDefault: cfg.Force,
		options:      cfg.Options,
		isBusyFunc:   cfg.IsBusyFunc,
		decoder:      cfg.Decoder,
		store:        cfg.Store,
		onStart:      cfg.OnStart,
		onResult:     cfg.OnResult,
		status:       WorkerStatus{Status: "idle"},
		resumeChan:   make(chan struct{}),
		done:         done,
	}, nil
}

// Start begins background analysis of the given items
func (w *Worker) Start(ctx context.Context, items []Item) error {
	return w.StartWith(ctx, items, w.forceDefault)
}

// StartWith is Start with an explicit choice to re-analyze current items.
func (w *Worker) StartWith(ctx context.Context, items []Item, force bool) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.isPaused = false
	w.force = force
	w.done = make(chan struct{})
	atomic.StoreInt64(&w.analyzedCount, 0)
	atomic.StoreInt64(&w.unanalyzedCount, 0)
	atomic.StoreInt64(&w.failedCount, 0)
	atomic.StoreInt64(&w.skippedCount, 0)
	atomic.StoreInt64(&w.inProgressCount, 0)

	w.status = WorkerStatus{
		Status:    "running",
		Total:     len(items),
		StartedAt: time.Now().Unix(),
	}
	w.mu.Unlock()

	go w.run(items)
	return nil
}

// Stop stops the background analysis
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.isPaused {
		w.isPaused = false
		close(w.resumeChan)
		w.resumeChan = make(chan struct{})
	}
	if w.isRunning {
		w.status.Status = "idle"
		w.status.Message = "Analysis stopped"
	}
}

// Pause pauses the background analysis
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning || w.isPaused {
		return
	}

	w.isPaused = true
	w.status.Status = "paused"
}

// Resume resumes paused analysis
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning || !w.isPaused {
		return
	}

	w.isPaused = false
	w.status.Status = "running"
	close(w.resumeChan)
	w.resumeChan = make(chan struct{})
}

// Wait blocks until the current batch finishes or ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStatus returns the current analysis status
func (w *Worker) GetStatus() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := w.status
	status.Analyzed = int(atomic.LoadInt64(&w.analyzedCount))
	status.Unanalyzed = int(atomic.LoadInt64(&w.unanalyzedCount))
	status.Failed = int(atomic.LoadInt64(&w.failedCount))
	status.Skipped = int(atomic.LoadInt64(&w.skippedCount))
	status.InProgress = int(atomic.LoadInt64(&w.inProgressCount))

	if status.Status == "running" && status.StartedAt > 0 {
		finished := status.Analyzed + status.Unanalyzed + status.Failed + status.Skipped
		if finished > 0 && finished < status.Total {
			elapsed := time.Now().Unix() - status.StartedAt
			status.EstimatedEnd = status.StartedAt + elapsed*int64(status.Total)/int64(finished)
		}
	}

	return status
}

// IsRunning returns whether analysis is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

func (w *Worker) run(items []Item) {
	w.mu.Lock()
	ctx := w.ctx
	done := w.done
	w.mu.Unlock()

	defer func() {
		if w.store != nil {
			if err := w.store.Save(); err != nil {
				log.Printf("[ANALYSIS] Failed to save results: %v", err)
			}
		}

		w.mu.Lock()
		w.isRunning = false
		if w.status.Status == "running" {
			w.status.Status = "complete"
			w.status.Message = fmt.Sprintf("Analysis complete: %d analyzed, %d unanalyzed, %d failed",
				atomic.LoadInt64(&w.analyzedCount), atomic.LoadInt64(&w.unanalyzedCount), atomic.LoadInt64(&w.failedCount))
		}
		if w.cancel != nil {
			w.cancel()
			w.cancel = nil
		}
		w.mu.Unlock()
		close(done)

		log.Printf("[ANALYSIS] Worker finished: %d analyzed, %d unanalyzed, %d failed, %d skipped",
			atomic.LoadInt64(&w.analyzedCount), atomic.LoadInt64(&w.unanalyzedCount),
			atomic.LoadInt64(&w.failedCount), atomic.LoadInt64(&w.skippedCount))
	}()

	log.Printf("[ANALYSIS] Starting analysis of %d items with %d workers", len(items), w.maxWorkers)

	jobs := make(chan Item, len(items))
	for _, item := range items {
		jobs <- item
	}
	close(jobs)

	activeWorkers := w.getActiveWorkerCount()

	var wg sync.WaitGroup
	for i := 0; i < activeWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.worker(ctx, workerID, jobs)
		}(i)
	}

	wg.Wait()
}

// getActiveWorkerCount returns the number of workers to use
func (w *Worker) getActiveWorkerCount() int {
	if w.isBusyFunc != nil && w.isBusyFunc() {
		// Leave headroom for playback
		return 1
	}
	return w.maxWorkers
}

// getThrottle returns the current throttle delay
func (w *Worker) getThrottle() time.Duration {
	if w.isBusyFunc != nil && w.isBusyFunc() {
		return time.Duration(w.throttleMs) * time.Millisecond
	}
	return time.Duration(w.idleThrottle) * time.Millisecond
}

// worker processes items from the job channel with its own pipeline.
func (w *Worker) worker(ctx context.Context, id int, jobs <-chan Item) {
	pipeline := NewPipeline(w.options)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		isPaused := w.isPaused
		resumeChan := w.resumeChan
		w.mu.Unlock()

		if isPaused {
			select {
			case <-ctx.Done():
				return
			case <-resumeChan:
			}
		}

		item, ok := <-jobs
		if !ok {
			return
		}

		if w.onStart != nil {
			w.onStart(item)
		}
		atomic.AddInt64(&w.inProgressCount, 1)
		result := w.analyzeItem(ctx, pipeline, item)
		atomic.AddInt64(&w.inProgressCount, -1)

		switch {
		case result.Skipped:
			atomic.AddInt64(&w.skippedCount, 1)
		case result.Status == StatusAnalyzed:
			atomic.AddInt64(&w.analyzedCount, 1)
		case result.Status == StatusUnanalyzed:
			atomic.AddInt64(&w.unanalyzedCount, 1)
			log.Printf("[ANALYSIS] Worker %d: Unanalyzed %s: %v", id, item.Path, result.Error)
		default:
			atomic.AddInt64(&w.failedCount, 1)
			log.Printf("[ANALYSIS] Worker %d: Failed %s: %v", id, item.Path, result.Error)
		}

		if !result.Skipped && w.store != nil {
			if err := w.store.Put(item.Path, result.Record()); err != nil {
				log.Printf("[ANALYSIS] Worker %d: Failed to store %s: %v", id, item.Path, err)
			}
		}

		if w.onResult != nil {
			w.onResult(result)
		}

		if throttle := w.getThrottle(); throttle > 0 {
			time.Sleep(throttle)
		}
	}
}

func (w *Worker) analyzeItem(ctx context.Context, pipeline *Pipeline, item Item) ItemResult {
	if item.FileHash == "" {
		info, err := os.Stat(item.Path)
		if err != nil {
			return ItemResult{
				Path:   item.Path,
				Status: StatusFailed,
				Error:  fmt.Errorf("file not found: %w", err),
				Result: Unanalyzed("File not found; classified with the default entry."),
			}
		}
		item.FileHash = ComputeFileHash(item.Path, info.Size())
	}

	if !w.force && w.store != nil && w.store.IsCurrent(item.Path, item.FileHash, ResultVersion) {
		res := ItemResult{Path: item.Path, FileHash: item.FileHash, Status: StatusAnalyzed, Skipped: true}
		if rec, err := w.store.Get(item.Path); err == nil {
			res.Result = rec.Result
		}
		return res
	}

	res := AnalyzeFile(ctx, w.decoder, pipeline, item.Path, w.itemTimeout)
	res.FileHash = item.FileHash
	return res
}

// AnalyzeFile decodes and analyzes one file under timeout. Incomplete runs
// yield StatusUnanalyzed and decode errors yield StatusFailed; both carry
// the default classification.
func AnalyzeFile(ctx context.Context, dec SegmentDecoder, pipeline *Pipeline, path string, timeout time.Duration) ItemResult {
	result := ItemResult{Path: path}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	block, err := dec.DecodeSegment(ctx, path)
	if err != nil {
		if cerr := contextError(ctx.Err()); cerr != nil {
			return incomplete(result, cerr)
		}
		result.Status = StatusFailed
		result.Error = fmt.Errorf("decode failed: %w", err)
		result.Result = Unanalyzed("Decode failed; classified with the default entry.")
		return result
	}

	r, err := pipeline.Analyze(ctx, block)
	if err != nil {
		return incomplete(result, err)
	}

	result.Status = StatusAnalyzed
	result.Result = r
	return result
}

func incomplete(result ItemResult, err error) ItemResult {
	result.Status = StatusUnanalyzed
	result.Error = err
	reason := "Analysis canceled; classified with the default entry."
	if errors.Is(err, ErrTimeout) {
		reason = "Analysis timed out; classified with the default entry."
	}
	result.Result = Unanalyzed(reason)
	return result
}

// ComputeFileHash computes a hash for change detection
// Uses size + first and last 64KB of file
func ComputeFileHash(path string, size int64) string {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s:%d", path, size)))

	f, err := os.Open(path)
	if err != nil {
		return hex.EncodeToString(hasher.Sum(nil))[:16]
	}
	defer f.Close()

	buf := make([]byte, 65536)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return hex.EncodeToString(hasher.Sum(nil))[:16]
	}
	hasher.Write(buf[:n])

	if size > 65536 {
		if _, err := f.Seek(-65536, io.SeekEnd); err != nil {
			return hex.EncodeToString(hasher.Sum(nil))[:16]
		}
		n, err = io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return hex.EncodeToString(hasher.Sum(nil))[:16]
		}
		hasher.Write(buf[:n])
	}

	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
