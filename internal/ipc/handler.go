package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/audio"
	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/scanner"
)

// RequestLogger logs incoming requests
func RequestLogger(req *Request) {
	log.Printf("[IPC] Command: %s data=%s", req.Cmd, truncateForLog(string(req.Data), 120))
}

// ResponseLogger logs outgoing responses
func ResponseLogger(req *Request, resp *Response, duration time.Duration) {
	if resp.Success {
		log.Printf("[IPC] %s: success duration=%v", req.Cmd, duration)
	} else {
		log.Printf("[IPC] %s: error=%q duration=%v", req.Cmd, resp.Error, duration)
	}
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req *Request) *Response {
	switch req.Cmd {
	case CmdAnalyzeFile:
		return s.handleAnalyzeFile(ctx, req)
	case CmdClassify:
		return s.handleClassify(req)
	case CmdAssess:
		return s.handleAssess(req)
	case CmdCanonicalTable:
		return success(TableResponse{Frequencies: canon.Table(), Default: canon.Default()})
	case CmdGetResult:
		return s.handleGetResult(req)
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdPlayTone:
		return s.handlePlayTone(ctx, req)
	case CmdStopTone:
		return s.handleStopTone()
	case CmdPauseTone:
		return s.handlePauseTone(true)
	case CmdResumeTone:
		return s.handlePauseTone(false)
	case CmdStartAnalysis:
		return s.handleStartAnalysis(ctx, req)
	case CmdStopAnalysis:
		// A startAnalysis may still be walking the library
		s.libScanner.Stop()
		s.worker.Stop()
		return s.handleAnalysisStatus()
	case CmdPauseAnalysis:
		s.worker.Pause()
		return s.handleAnalysisStatus()
	case CmdResumeAnalysis:
		s.worker.Resume()
		return s.handleAnalysisStatus()
	case CmdAnalysisStatus:
		return s.handleAnalysisStatus()
	case CmdSubscribeResults:
		count := s.subscribe(conn, true)
		log.Printf("[IPC] Client subscribed to results (total: %d)", count)
		return success(map[string]bool{"subscribed": true})
	case CmdUnsubscribeResults:
		count := s.subscribe(conn, false)
		log.Printf("[IPC] Client unsubscribed from results (remaining: %d)", count)
		return success(map[string]bool{"subscribed": false})
	default:
		return NewErrorResponse("unknown command")
	}
}

func success(data interface{}) *Response {
	resp, err := NewSuccessResponse(data)
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func decodePath(req *Request) (string, *Response) {
	var pathReq PathRequest
	if err := json.Unmarshal(req.Data, &pathReq); err != nil {
		return "", NewErrorResponse("invalid request data")
	}
	if pathReq.Path == "" {
		return "", NewErrorResponse("path is required")
	}
	return pathReq.Path, nil
}

func decodeFrequency(req *Request) (float64, *Response) {
	var freqReq FrequencyRequest
	if err := json.Unmarshal(req.Data, &freqReq); err != nil {
		return 0, NewErrorResponse("invalid request data")
	}
	if math.IsNaN(freqReq.Hz) || math.IsInf(freqReq.Hz, 0) {
		return 0, NewErrorResponse("hz must be finite")
	}
	return freqReq.Hz, nil
}

func (s *Server) handleAnalyzeFile(ctx context.Context, req *Request) *Response {
	path, errResp := decodePath(req)
	if errResp != nil {
		return errResp
	}

	log.Printf("[ANALYSIS] Analyze request: %s", path)

	s.pipelineMu.Lock()
	res := analysis.AnalyzeFile(ctx, s.decoder, s.pipeline, path, s.configMgr.Get().Timeout())
	s.pipelineMu.Unlock()
	if info, err := os.Stat(path); err == nil {
		res.FileHash = analysis.ComputeFileHash(path, info.Size())
	}
	if err := s.store.Put(path, res.Record()); err != nil {
		log.Printf("[STORE] Failed to store %s: %v", path, err)
	} else if err := s.store.Save(); err != nil {
		log.Printf("[STORE] Failed to save: %v", err)
	}
	if s.notifier != nil && res.Status == analysis.StatusAnalyzed {
		s.notifier.Notify(path, res.Result.Safety)
	}

	return success(NewResultMessage(res))
}

func (s *Server) handleClassify(req *Request) *Response {
	hz, errResp := decodeFrequency(req)
	if errResp != nil {
		return errResp
	}
	return success(canon.ClassifyMatch(hz))
}

func (s *Server) handleAssess(req *Request) *Response {
	hz, errResp := decodeFrequency(req)
	if errResp != nil {
		return errResp
	}
	return success(safety.Assess(hz))
}

func (s *Server) handleGetResult(req *Request) *Response {
	path, errResp := decodePath(req)
	if errResp != nil {
		return errResp
	}

	rec, err := s.store.Get(path)
	if errors.Is(err, analysis.ErrNotFound) {
		return NewErrorResponse("no result for path")
	}
	if err != nil {
		log.Printf("[STORE] Failed to read %s: %v", path, err)
		return NewErrorResponse("failed to read result")
	}
	return success(RecordResponse{Path: path, Record: rec})
}

func (s *Server) handleGetConfig() *Response {
	return success(ConfigResponse{
		ConfigPath: s.configMgr.GetPath(),
		DataDir:    s.configMgr.GetDataDir(),
		Config:     s.configMgr.Get(),
	})
}

func (s *Server) handleStartAnalysis(ctx context.Context, req *Request) *Response {
	var startReq StartAnalysisRequest
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &startReq); err != nil {
			return NewErrorResponse("invalid request data")
		}
	}

	if s.worker.IsRunning() {
		return NewErrorResponse(analysis.ErrAlreadyRunning.Error())
	}

	paths := startReq.Paths
	if len(paths) == 0 {
		paths = s.configMgr.Get().LibraryPaths
	}
	if len(paths) == 0 {
		return NewErrorResponse("no library paths configured")
	}

	scans, err := s.libScanner.ScanPaths(ctx, paths)
	if err != nil {
		return NewErrorResponse(err.Error())
	}

	files := scanner.Files(scans)
	items := make([]analysis.Item, len(files))
	for i, f := range files {
		items[i] = analysis.Item{Path: f.Path}
	}

	if err := s.worker.StartWith(ctx, items, startReq.Force); err != nil {
		return NewErrorResponse(err.Error())
	}

	go func() {
		if err := s.worker.Wait(ctx); err == nil {
			s.push(PushAnalysisDone, s.worker.GetStatus())
		}
	}()

	// File lists can be large; clients get counts only.
	for i := range scans {
		scans[i].Files = nil
	}
	return success(StartAnalysisResponse{Queued: len(items), Scans: scans})
}

func (s *Server) handleAnalysisStatus() *Response {
	stored, err := s.store.Count()
	if err != nil {
		log.Printf("[STORE] Failed to count records: %v", err)
	}
	return success(StatusResponse{
		WorkerStatus: s.worker.GetStatus(),
		Scan:         s.libScanner.GetStatus(),
		Stored:       stored,
	})
}

func (s *Server) handlePlayTone(ctx context.Context, req *Request) *Response {
	var toneReq ToneRequest
	if err := json.Unmarshal(req.Data, &toneReq); err != nil {
		return NewErrorResponse("invalid request data")
	}
	if !(toneReq.Hz > 0) || math.IsInf(toneReq.Hz, 0) {
		return NewErrorResponse("hz must be positive")
	}
	if s.output == nil {
		return NewErrorResponse("audio output unavailable")
	}

	conf := s.configMgr.Get()
	seconds := toneReq.Seconds
	if seconds <= 0 {
		seconds = conf.Output.ToneSeconds
	}
	volume := conf.Output.DefaultVolume
	if toneReq.Volume != nil {
		volume = *toneReq.Volume
	}

	tone := audio.ToneRequest{
		Hz:            toneReq.Hz,
		Duration:      time.Duration(seconds * float64(time.Second)),
		Volume:        volume,
		AutoAttenuate: conf.Safety.AutoAttenuate,
	}
	if audio.Tone(tone.Hz, tone.Duration, s.output.SampleRate()) == nil {
		return NewErrorResponse("invalid tone")
	}
	if !s.playing.CompareAndSwap(false, true) {
		return NewErrorResponse("a tone is already playing")
	}

	assessment := safety.Assess(toneReq.Hz)
	if s.notifier != nil {
		s.notifier.Notify(fmt.Sprintf("%.2f Hz preview", toneReq.Hz), assessment)
	}

	toneCtx, cancel := context.WithCancel(ctx)
	s.toneMu.Lock()
	s.toneCancel = cancel
	s.toneMu.Unlock()

	go func() {
		defer func() {
			s.toneMu.Lock()
			s.toneCancel = nil
			s.toneMu.Unlock()
			cancel()
			s.tonePaused.Store(false)
			s.playing.Store(false)
		}()
		if _, err := audio.PlayTone(toneCtx, s.output, tone); err != nil && toneCtx.Err() == nil {
			log.Printf("[AUDIO] Tone preview failed: %v", err)
		}
		s.push(PushToneDone, assessment)
	}()

	return success(ToneResponse{
		Assessment: assessment,
		Volume:     tone.EffectiveVolume(),
		Seconds:    seconds,
	})
}

func (s *Server) toneStatus() ToneStatus {
	return ToneStatus{Playing: s.playing.Load(), Paused: s.tonePaused.Load()}
}

// handleStopTone cancels the preview and drops its buffered audio.
func (s *Server) handleStopTone() *Response {
	if !s.playing.Load() {
		return NewErrorResponse("no tone is playing")
	}

	s.toneMu.Lock()
	if s.toneCancel != nil {
		s.toneCancel()
	}
	s.toneMu.Unlock()
	s.output.Stop()
	s.tonePaused.Store(false)

	log.Printf("[AUDIO] Tone preview stopped")
	return success(s.toneStatus())
}

func (s *Server) handlePauseTone(pause bool) *Response {
	if !s.playing.Load() {
		return NewErrorResponse("no tone is playing")
	}

	if pause {
		s.output.Pause()
	} else {
		s.output.Resume()
	}
	s.tonePaused.Store(pause)
	return success(s.toneStatus())
}
