package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/audio"
	"github.com/austinkregel/local-media/resonanced/internal/config"
	"github.com/austinkregel/local-media/resonanced/internal/notify"
	"github.com/austinkregel/local-media/resonanced/internal/scanner"
)

// DefaultWriteTimeout bounds how long a slow client can hold up a response
// or push.
const DefaultWriteTimeout = 2 * time.Second

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	configMgr  *config.Manager
	store      analysis.Store
	decoder    analysis.SegmentDecoder
	worker     *analysis.Worker
	pipeline   *analysis.Pipeline // For single-file requests
	pipelineMu sync.Mutex         // Pipelines are not safe for concurrent use
	notifier   *notify.SafetyNotifier
	libScanner *scanner.Scanner
	output     audio.Output
	playing    atomic.Bool
	tonePaused atomic.Bool
	toneMu     sync.Mutex
	toneCancel context.CancelFunc
	listener   net.Listener
	verbose    bool

	// writeTimeout bounds every write to a client
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[net.Conn]*client

	// Result streaming
	subsMu sync.Mutex
	subs   map[net.Conn]*client
}

// client is one connection. Responses and pushes share writeMu so lines
// never interleave.
type client struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *client) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	_, err := c.conn.Write(data)
	c.conn.SetWriteDeadline(time.Time{})
	return err
}

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	SocketPath string
	ConfigMgr  *config.Manager
	Store      analysis.Store
	Decoder    analysis.SegmentDecoder
	Notifier   *notify.SafetyNotifier // Optional
	Output     audio.Output           // Optional, enables playTone
	IsBusyFunc func() bool            // Optional, defaults to tone playback
	Verbose    bool
}

// NewServer creates a new IPC server and its batch worker
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ConfigMgr == nil || cfg.Store == nil || cfg.Decoder == nil {
		return nil, errors.New("server requires config, store and decoder")
	}

	conf := cfg.ConfigMgr.Get()
	s := &Server{
		socketPath: cfg.SocketPath,
		configMgr:  cfg.ConfigMgr,
		store:      cfg.Store,
		decoder:    cfg.Decoder,
		pipeline:   analysis.NewPipeline(conf.SpectrumOptions()),
		notifier:   cfg.Notifier,
		libScanner: scanner.NewScanner(),
		output:     cfg.Output,
		verbose:    cfg.Verbose,

		writeTimeout: DefaultWriteTimeout,
		clients:      make(map[net.Conn]*client),
		subs:         make(map[net.Conn]*client),
	}

	isBusy := cfg.IsBusyFunc
	if isBusy == nil {
		isBusy = s.IsPlaying
	}

	worker, err := analysis.NewWorker(analysis.WorkerConfig{
		MaxWorkers:   conf.Worker.MaxWorkers,
		ThrottleMs:   conf.Worker.ThrottleMs,
		IdleThrottle: conf.Worker.IdleThrottleMs,
		ItemTimeout:  conf.Timeout(),
		Options:      conf.SpectrumOptions(),
		Decoder:      cfg.Decoder,
		Store:        cfg.Store,
		IsBusyFunc:   isBusy,
		OnResult:     s.onItemResult,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}
	s.worker = worker

	return s, nil
}

// Worker returns the batch worker
func (s *Server) Worker() *analysis.Worker {
	return s.worker
}

// IsPlaying reports whether a tone preview is playing
func (s *Server) IsPlaying() bool {
	return s.playing.Load()
}

// onItemResult notifies and streams each finished item.
func (s *Server) onItemResult(r analysis.ItemResult) {
	if s.notifier != nil && r.Status == analysis.StatusAnalyzed && r.Result != nil && !r.Skipped {
		s.notifier.Notify(r.Path, r.Result.Safety)
	}
	s.push(PushAnalysisResult, NewResultMessage(r))
}

// Start starts the IPC server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] Server listening, waiting for connections...")

	go s.acceptLoop(ctx)

	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	s.worker.Stop()

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("[IPC] Accept error: %v", err)
				continue
			}
		}

		c, clientCount := s.addClient(conn)
		log.Printf("[IPC] New client connection (active: %d)", clientCount)

		go s.handleConnection(ctx, c)
	}
}

func (s *Server) addClient(conn net.Conn) (*client, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &client{conn: conn}
	s.clients[conn] = c
	return c, len(s.clients)
}

func (s *Server) handleConnection(ctx context.Context, c *client) {
	conn := c.conn
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		s.subsMu.Lock()
		delete(s.subs, conn)
		s.subsMu.Unlock()
		log.Printf("[IPC] Client disconnected (active: %d)", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format: %v", err)
			s.sendError(c, "invalid request format")
			continue
		}

		// Skip verbose logging for polling commands
		isPollingCmd := req.Cmd == CmdAnalysisStatus
		if s.verbose && !isPollingCmd {
			RequestLogger(req)
		}

		start := time.Now()
		resp := s.handleRequest(ctx, conn, req)

		if s.verbose && !isPollingCmd {
			ResponseLogger(req, resp, time.Since(start))
		}

		if err := s.sendResponse(c, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

func (s *Server) sendResponse(c *client, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return c.write(data, s.writeTimeout)
}

func (s *Server) sendError(c *client, msg string) {
	s.sendResponse(c, NewErrorResponse(msg))
}

func (s *Server) subscribe(conn net.Conn, on bool) int {
	if conn == nil {
		return s.subscriberCount()
	}

	s.mu.Lock()
	c, ok := s.clients[conn]
	s.mu.Unlock()
	if !ok {
		c = &client{conn: conn}
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if on {
		s.subs[conn] = c
	} else {
		delete(s.subs, conn)
	}
	return len(s.subs)
}

func (s *Server) subscriberCount() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

// push sends a message to every subscribed client, dropping clients whose
// writes fail or time out. No lock is held while writing.
func (s *Server) push(msgType string, data interface{}) {
	s.subsMu.Lock()
	targets := make([]*client, 0, len(s.subs))
	for _, c := range s.subs {
		targets = append(targets, c)
	}
	s.subsMu.Unlock()

	if len(targets) == 0 {
		return
	}

	msgBytes, err := NewPushMessage(msgType, data)
	if err != nil {
		log.Printf("[IPC] Failed to encode %s push: %v", msgType, err)
		return
	}
	msgBytes = append(msgBytes, '\n')

	for _, c := range targets {
		if err := c.write(msgBytes, s.writeTimeout); err != nil {
			log.Printf("[IPC] Dropping subscriber after %s push failed: %v", msgType, err)
			s.subscribe(c.conn, false)
		}
	}
}
