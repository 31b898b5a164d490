package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/config"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

// toneDecoder decodes every file as a sine whose frequency is the file's
// base name, e.g. "528.wav". Other names fail to decode.
type toneDecoder struct{}

func (toneDecoder) DecodeSegment(ctx context.Context, path string) (spectrum.Block, error) {
	var hz float64
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := json.Unmarshal([]byte(name), &hz); err != nil {
		return spectrum.Block{}, fmt.Errorf("unsupported stream in %s", filepath.Base(path))
	}

	samples := make([]float64, 44100)
	for i := range samples {
		samples[i] = 0.8 * math.Sin(2*math.Pi*hz*float64(i)/44100)
	}
	return spectrum.Block{Samples: samples, SampleRate: 44100}, nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	mgr := config.NewManager(filepath.Join(dir, "config"))
	if err := mgr.Load(); err != nil {
		t.Fatalf("config load: %v", err)
	}
	cfg := mgr.Get()
	cfg.Analysis.WindowSize = 8192
	cfg.Worker.MaxWorkers = 1
	cfg.Worker.IdleThrottleMs = 0

	library := filepath.Join(dir, "library")
	os.MkdirAll(library, 0700)
	for _, name := range []string{"528.wav", "432.flac", "notes.txt"} {
		os.WriteFile(filepath.Join(library, name), []byte(name), 0600)
	}
	mgr.AddLibraryPath(library)

	store, err := analysis.NewJSONStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	s, err := NewServer(ServerConfig{
		ConfigMgr: mgr,
		Store:     store,
		Decoder:   toneDecoder{},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return s, library
}

func call(t *testing.T, s *Server, cmd CommandType, data interface{}) *Response {
	t.Helper()
	req := &Request{Cmd: cmd}
	if data != nil {
		raw, _ := json.Marshal(data)
		req.Data = raw
	}
	return s.handleRequest(context.Background(), nil, req)
}

func TestNewServerRequiresDeps(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("Expected error without dependencies")
	}
}

func TestHandleClassifyAndAssess(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, CmdClassify, FrequencyRequest{Hz: 1056})
	if !resp.Success {
		t.Fatalf("classify failed: %s", resp.Error)
	}
	var match canon.Match
	json.Unmarshal(resp.Data, &match)
	if match.Frequency.Hz != 528 || match.OctaveFactor != 2 {
		t.Errorf("Expected 528 via octave, got %+v", match)
	}

	resp = call(t, s, CmdAssess, FrequencyRequest{Hz: 1200})
	var a safety.Assessment
	json.Unmarshal(resp.Data, &a)
	if a.Tier != safety.TierCaution {
		t.Errorf("Expected CAUTION, got %v", a.Tier)
	}

	if resp := call(t, s, CmdClassify, nil); resp.Success {
		t.Error("Expected error without data")
	}
}

func TestHandleCanonicalTable(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, CmdCanonicalTable, nil)

	var table TableResponse
	if err := json.Unmarshal(resp.Data, &table); err != nil {
		t.Fatalf("bad table: %v", err)
	}
	if len(table.Frequencies) != len(canon.Table()) || table.Default.Hz != canon.Default().Hz {
		t.Errorf("Unexpected table: %+v", table)
	}
}

func TestHandleAnalyzeFileAndGetResult(t *testing.T) {
	s, library := newTestServer(t)
	path := filepath.Join(library, "528.wav")

	resp := call(t, s, CmdAnalyzeFile, PathRequest{Path: path})
	if !resp.Success {
		t.Fatalf("analyzeFile failed: %s", resp.Error)
	}
	var msg ResultMessage
	json.Unmarshal(resp.Data, &msg)
	if msg.Status != analysis.StatusAnalyzed || msg.Result.Canonical.Hz != 528 {
		t.Errorf("Unexpected result: %+v", msg)
	}

	resp = call(t, s, CmdGetResult, PathRequest{Path: path})
	if !resp.Success {
		t.Fatalf("getResult failed: %s", resp.Error)
	}
	var rec RecordResponse
	json.Unmarshal(resp.Data, &rec)
	if rec.Record == nil || rec.Status != analysis.StatusAnalyzed {
		t.Errorf("Unexpected record: %+v", rec)
	}

	if resp := call(t, s, CmdGetResult, PathRequest{Path: "/nope"}); resp.Success {
		t.Error("Expected error for missing result")
	}
	if resp := call(t, s, CmdAnalyzeFile, PathRequest{}); resp.Success {
		t.Error("Expected error for empty path")
	}
}

func TestHandleAnalyzeFileStoresFailure(t *testing.T) {
	s, library := newTestServer(t)
	path := filepath.Join(library, "notes.txt")

	resp := call(t, s, CmdAnalyzeFile, PathRequest{Path: path})
	if !resp.Success {
		t.Fatalf("analyzeFile failed: %s", resp.Error)
	}
	var msg ResultMessage
	json.Unmarshal(resp.Data, &msg)
	if msg.Status != analysis.StatusFailed {
		t.Errorf("Expected failed, got %s", msg.Status)
	}

	resp = call(t, s, CmdGetResult, PathRequest{Path: path})
	if !resp.Success {
		t.Fatalf("Expected stored failure, got error: %s", resp.Error)
	}
	var rec RecordResponse
	json.Unmarshal(resp.Data, &rec)
	if rec.Record == nil || rec.Status != analysis.StatusFailed {
		t.Fatalf("Unexpected record: %+v", rec)
	}
	if rec.Result == nil || rec.Result.Canonical.Hz != canon.Default().Hz {
		t.Errorf("Expected default entry for failed file, got %+v", rec.Result)
	}
	if rec.Result != nil && rec.Result.Safety.Tier != safety.TierSafe {
		t.Errorf("Expected SAFE, got %v", rec.Result.Safety.Tier)
	}
}

func TestPushSkipsStalledClient(t *testing.T) {
	s, _ := newTestServer(t)
	s.writeTimeout = 2 * time.Second

	// stalled never reads its end of the pipe.
	stalledConn, stalledPeer := net.Pipe()
	defer stalledConn.Close()
	defer stalledPeer.Close()
	readerConn, readerPeer := net.Pipe()
	defer readerConn.Close()
	defer readerPeer.Close()

	stalled, _ := s.addClient(stalledConn)
	s.addClient(readerConn)
	s.subscribe(readerConn, true)

	blocked := make(chan struct{})
	go func() {
		resp, _ := NewSuccessResponse(nil)
		s.sendResponse(stalled, resp)
		close(blocked)
	}()
	time.Sleep(20 * time.Millisecond)

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(readerPeer).ReadString('\n')
		lines <- line
	}()

	start := time.Now()
	s.push(PushAnalysisDone, map[string]int{"analyzed": 1})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected push to bypass the stalled client, took %v", elapsed)
	}

	select {
	case line := <-lines:
		if !strings.Contains(line, PushAnalysisDone) {
			t.Errorf("Expected %s push, got %q", PushAnalysisDone, line)
		}
	case <-time.After(time.Second):
		t.Fatal("Subscriber did not receive the push")
	}

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the stalled response write to time out")
	}
}

func TestPushDropsStalledSubscriber(t *testing.T) {
	s, _ := newTestServer(t)
	s.writeTimeout = 50 * time.Millisecond

	conn, peer := net.Pipe()
	defer conn.Close()
	defer peer.Close()
	s.addClient(conn)
	if n := s.subscribe(conn, true); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	done := make(chan struct{})
	go func() {
		s.push(PushAnalysisDone, map[string]int{"analyzed": 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("push blocked on a subscriber that never reads")
	}
	if n := s.subscriberCount(); n != 0 {
		t.Errorf("Expected stalled subscriber to be dropped, got %d", n)
	}
}

func TestHandleStartAnalysis(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, CmdStartAnalysis, nil)
	if !resp.Success {
		t.Fatalf("startAnalysis failed: %s", resp.Error)
	}
	var start StartAnalysisResponse
	json.Unmarshal(resp.Data, &start)
	if start.Queued != 2 {
		t.Errorf("Expected 2 queued files, got %d", start.Queued)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Worker().Wait(ctx); err != nil {
		t.Fatalf("worker did not finish: %v", err)
	}

	resp = call(t, s, CmdAnalysisStatus, nil)
	var status StatusResponse
	json.Unmarshal(resp.Data, &status)
	if status.Analyzed != 2 || status.Stored != 2 || status.Status != "complete" {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestHandleGetConfig(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, CmdGetConfig, nil)

	var cfg ConfigResponse
	if err := json.Unmarshal(resp.Data, &cfg); err != nil {
		t.Fatalf("bad config: %v", err)
	}
	if cfg.Config == nil || cfg.Analysis.WindowSize != 8192 || cfg.ConfigPath == "" {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	s, _ := newTestServer(t)
	if resp := call(t, s, "dance", nil); resp.Success || resp.Error != "unknown command" {
		t.Errorf("Expected unknown command error, got %+v", resp)
	}
}

func TestSocketRoundTripWithPush(t *testing.T) {
	s, library := newTestServer(t)

	// Unix socket paths have a short length limit
	sockDir, err := os.MkdirTemp("", "rsd")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(sockDir)
	s.socketPath = filepath.Join(sockDir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	var conn net.Conn
	for i := 0; i < 100; i++ {
		if conn, err = net.Dial("unix", s.socketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))
	reader := bufio.NewReader(conn)

	send := func(req Request) {
		data, _ := EncodeRequest(&req)
		conn.Write(append(data, '\n'))
	}
	readLine := func() []byte {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return line
	}

	send(Request{Cmd: CmdSubscribeResults})
	if resp, _ := DecodeResponse(readLine()); !resp.Success {
		t.Fatalf("subscribe failed: %s", resp.Error)
	}

	data, _ := json.Marshal(StartAnalysisRequest{Paths: []string{filepath.Join(library, "432.flac")}})
	send(Request{Cmd: CmdStartAnalysis, Data: data})

	// Expect the response plus one result push and one completion push in
	// any order.
	var gotResult, gotDone, gotResp bool
	for i := 0; i < 3; i++ {
		line := readLine()
		var push PushMessage
		if json.Unmarshal(line, &push) == nil && push.Type != "" {
			switch push.Type {
			case PushAnalysisResult:
				var msg ResultMessage
				json.Unmarshal(push.Data, &msg)
				gotResult = msg.Result != nil && msg.Result.Canonical.Hz == 432
			case PushAnalysisDone:
				gotDone = true
			}
			continue
		}
		if resp, err := DecodeResponse(line); err == nil && resp.Success {
			gotResp = true
		}
	}
	if !gotResp || !gotResult || !gotDone {
		t.Errorf("Expected response and pushes, got resp=%v result=%v done=%v", gotResp, gotResult, gotDone)
	}

	send(Request{Cmd: "bogus"})
	if resp, _ := DecodeResponse(readLine()); resp.Success {
		t.Error("Expected error for unknown command")
	}
}

// gateOutput holds Drain until released.
type gateOutput struct {
	mu      sync.Mutex
	written int
	paused  bool
	stopped bool
	release chan struct{}
}

func (g *gateOutput) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.written += len(p)
	return len(p), nil
}
func (g *gateOutput) Close() error        { return nil }
func (g *gateOutput) SampleRate() int     { return 8000 }
func (g *gateOutput) Channels() int       { return 1 }
func (g *gateOutput) SetVolume(v float64) {}
func (g *gateOutput) Pause()              { g.set(&g.paused, true) }
func (g *gateOutput) Resume()             { g.set(&g.paused, false) }
func (g *gateOutput) Stop()               { g.set(&g.stopped, true) }
func (g *gateOutput) set(flag *bool, v bool) {
	g.mu.Lock()
	*flag = v
	g.mu.Unlock()
}
func (g *gateOutput) Drain(ctx context.Context) error {
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHandlePlayTone(t *testing.T) {
	s, _ := newTestServer(t)

	if resp := call(t, s, CmdPlayTone, ToneRequest{Hz: 440}); resp.Success {
		t.Error("Expected error without an output")
	}

	out := &gateOutput{release: make(chan struct{})}
	s.output = out

	resp := call(t, s, CmdPlayTone, ToneRequest{Hz: 1200, Seconds: 0.1})
	if !resp.Success {
		t.Fatalf("playTone failed: %s", resp.Error)
	}
	var tone ToneResponse
	json.Unmarshal(resp.Data, &tone)
	if tone.Assessment.Tier != safety.TierCaution || tone.Volume >= 1 || tone.Seconds != 0.1 {
		t.Errorf("Unexpected tone response: %+v", tone)
	}

	if !s.IsPlaying() {
		t.Error("Expected IsPlaying during preview")
	}
	if resp := call(t, s, CmdPlayTone, ToneRequest{Hz: 440}); resp.Success {
		t.Error("Expected error while a tone is playing")
	}

	close(out.release)
	deadline := time.Now().Add(5 * time.Second)
	for s.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsPlaying() {
		t.Error("Expected preview to finish")
	}
	out.mu.Lock()
	if out.written != 800*2 {
		t.Errorf("Expected 1600 bytes written, got %d", out.written)
	}
	out.mu.Unlock()

	if resp := call(t, s, CmdPlayTone, ToneRequest{Hz: -5}); resp.Success {
		t.Error("Expected error for negative hz")
	}
}

func TestHandleToneControls(t *testing.T) {
	s, _ := newTestServer(t)
	out := &gateOutput{release: make(chan struct{})}
	s.output = out

	for _, cmd := range []CommandType{CmdStopTone, CmdPauseTone, CmdResumeTone} {
		if resp := call(t, s, cmd, nil); resp.Success {
			t.Errorf("%s: Expected error with nothing playing", cmd)
		}
	}

	if resp := call(t, s, CmdPlayTone, ToneRequest{Hz: 528, Seconds: 1}); !resp.Success {
		t.Fatalf("playTone failed: %s", resp.Error)
	}

	resp := call(t, s, CmdPauseTone, nil)
	var status ToneStatus
	json.Unmarshal(resp.Data, &status)
	if !resp.Success || !status.Playing || !status.Paused {
		t.Errorf("Expected paused tone, got %+v (%s)", status, resp.Error)
	}
	out.mu.Lock()
	if !out.paused {
		t.Error("Expected output to be paused")
	}
	out.mu.Unlock()

	resp = call(t, s, CmdResumeTone, nil)
	json.Unmarshal(resp.Data, &status)
	if !resp.Success || status.Paused {
		t.Errorf("Expected resumed tone, got %+v (%s)", status, resp.Error)
	}

	// Drain never releases, so only stopTone can end this preview.
	if resp := call(t, s, CmdStopTone, nil); !resp.Success {
		t.Fatalf("stopTone failed: %s", resp.Error)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsPlaying() {
		t.Fatal("Expected stopTone to end the preview")
	}
	out.mu.Lock()
	if !out.stopped {
		t.Error("Expected output buffer to be discarded")
	}
	out.mu.Unlock()

	if resp := call(t, s, CmdPlayTone, ToneRequest{Hz: 528, Seconds: 0.1}); !resp.Success {
		t.Errorf("Expected a new preview after stop, got %s", resp.Error)
	}
	close(out.release)
	deadline = time.Now().Add(5 * time.Second)
	for s.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleStopAnalysisIdle(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, CmdStopAnalysis, nil)
	if !resp.Success {
		t.Fatalf("stopAnalysis failed: %s", resp.Error)
	}
	if s.libScanner.IsRunning() {
		t.Error("Expected no scan running")
	}
}
