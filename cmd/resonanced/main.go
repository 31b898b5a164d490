// Package main is the entry point for resonanced.
// resonanced detects the dominant pitch of audio files, relates it to a
// table of canonical frequencies and reports a listening safety tier. It
// runs as a daemon serving clients over IPC, or as one-shot commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/audio"
	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/cli"
	"github.com/austinkregel/local-media/resonanced/internal/config"
	"github.com/austinkregel/local-media/resonanced/internal/ipc"
	"github.com/austinkregel/local-media/resonanced/internal/notify"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/scanner"
	"github.com/austinkregel/local-media/resonanced/internal/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

// Globals are flags shared by every command
type Globals struct {
	Version bool   `short:"v" help:"Show version information"`
	Config  string `short:"c" type:"path" placeholder:"DIR" help:"Configuration directory (default: ~/.config/resonanced)"`
	Verbose bool   `help:"Enable verbose logging"`
}

// CLI defines the command-line interface
type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"1" help:"Run the analysis daemon (default)"`
	Analyze  AnalyzeCmd  `cmd:"" help:"Analyze audio files or directories"`
	Classify ClassifyCmd `cmd:"" help:"Find the canonical frequency nearest to a frequency"`
	Assess   AssessCmd   `cmd:"" help:"Show the safety tier and volume for a frequency"`
	Table    TableCmd    `cmd:"" help:"List the canonical frequencies"`
	Tone     ToneCmd     `cmd:"" help:"Play a sine preview with safety attenuation"`
	Scan     ScanCmd     `cmd:"" help:"Count audio files in library paths"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cliArgs := &CLI{}
	kctx := kong.Parse(cliArgs,
		kong.Name("resonanced"),
		kong.Description("Pitch detection, canonical frequency classification and listening safety"),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter("Pitch detection, canonical frequency classification and listening safety")),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if cliArgs.Version {
		cli.PrintVersion(Version)
		os.Exit(0)
	}

	if err := kctx.Run(&cliArgs.Globals); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// configDir returns the configuration directory
func (g *Globals) configDir() (string, error) {
	if g.Config != "" {
		return g.Config, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "resonanced"), nil
}

// loadConfig loads configuration and applies environment overrides
func (g *Globals) loadConfig() (*config.Manager, error) {
	dir, err := g.configDir()
	if err != nil {
		return nil, err
	}
	mgr := config.NewManager(dir)
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return mgr, nil
}

// quietLogs silences daemon-style logging for interactive commands
func (g *Globals) quietLogs() {
	if !g.Verbose {
		log.SetOutput(io.Discard)
	}
}

func segmentConfig(cfg *config.Config, lowPriority bool) audio.SegmentConfig {
	return audio.SegmentConfig{
		SampleRate:  cfg.Analysis.SampleRate,
		Offset:      time.Duration(cfg.Analysis.SegmentOffsetSeconds * float64(time.Second)),
		Length:      time.Duration(cfg.Analysis.SegmentSeconds * float64(time.Second)),
		LowPriority: lowPriority,
	}
}

// newNotifier returns nil when notifications are disabled or unavailable
func newNotifier(cfg *config.Config) *notify.SafetyNotifier {
	if !cfg.Safety.Notify {
		return nil
	}
	backend, err := notify.New()
	if err != nil {
		log.Printf("[NOTIFY] Warning: desktop notifications unavailable: %v", err)
		return nil
	}
	return notify.NewSafetyNotifier(backend, cfg.Safety.NotifyTier)
}

// ServeCmd runs the IPC daemon
type ServeCmd struct {
	Socket string `type:"path" placeholder:"PATH" help:"IPC socket path (default: auto-generated based on UID)"`
	NoTone bool   `help:"Do not open an audio device for tone previews"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	if g.Verbose {
		log.Printf("resonanced version %s starting...", Version)
	}

	configMgr, err := g.loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	socketPath := c.Socket
	if socketPath == "" {
		socketPath = fmt.Sprintf("/tmp/resonanced-%d.sock", os.Getuid())
	}

	store, err := analysis.OpenStore(cfg.Store, configMgr.GetDataDir())
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	decoder, err := audio.NewFFmpegDecoder(segmentConfig(cfg, true))
	if err != nil {
		return fmt.Errorf("failed to initialize decoder: %w", err)
	}

	notifier := newNotifier(cfg)
	if notifier != nil {
		defer notifier.Close()
	}

	var output audio.Output
	if !c.NoTone {
		out, err := audio.NewOtoOutput()
		if err != nil {
			log.Printf("[AUDIO] Warning: failed to open audio output: %v", err)
			log.Printf("[AUDIO] Continuing without tone previews")
		} else {
			defer out.Close()
			output = out
		}
	}

	server, err := ipc.NewServer(ipc.ServerConfig{
		SocketPath: socketPath,
		ConfigMgr:  configMgr,
		Store:      store,
		Decoder:    decoder,
		Notifier:   notifier,
		Output:     output,
		Verbose:    g.Verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize IPC server: %w", err)
	}

	log.Printf("Starting IPC server on %s", socketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	if err := store.Save(); err != nil {
		log.Printf("[STORE] Warning: failed to save results on shutdown: %v", err)
	}
	return nil
}

// AnalyzeCmd analyzes files in the foreground
type AnalyzeCmd struct {
	Paths []string `arg:"" name:"paths" type:"path" help:"Audio files or directories to analyze"`
	TUI   bool     `name:"tui" help:"Show live batch progress"`
	JSON  bool     `name:"json" help:"Print results as JSON"`
	Force bool     `short:"f" help:"Re-analyze files that already have current results"`
}

func (c *AnalyzeCmd) Run(ctx context.Context, g *Globals) error {
	configMgr, err := g.loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	if c.TUI {
		if err := redirectLogs(g, configMgr.GetDataDir()); err != nil {
			return err
		}
	} else {
		g.quietLogs()
	}

	scans, err := scanner.NewScanner().ScanPaths(ctx, c.Paths)
	if err != nil {
		return err
	}
	for _, s := range scans {
		if s.Error != "" {
			return fmt.Errorf("%s: %s", s.LibraryPath, s.Error)
		}
	}
	files := scanner.Files(scans)
	if len(files) == 0 {
		return fmt.Errorf("no audio files found")
	}

	store, err := analysis.OpenStore(cfg.Store, configMgr.GetDataDir())
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	decoder, err := audio.NewFFmpegDecoder(segmentConfig(cfg, false))
	if err != nil {
		return err
	}

	notifier := newNotifier(cfg)
	if notifier != nil {
		defer notifier.Close()
	}

	paths := make([]string, len(files))
	items := make([]analysis.Item, len(files))
	for i, f := range files {
		paths[i] = f.Path
		items[i] = analysis.Item{Path: f.Path}
	}

	var program *tea.Program
	if c.TUI {
		program = tea.NewProgram(ui.NewModel(paths), tea.WithAltScreen(), tea.WithContext(ctx))
	}

	var mu sync.Mutex
	results := make(map[string]analysis.ItemResult, len(files))

	worker, err := analysis.NewWorker(analysis.WorkerConfig{
		MaxWorkers:   cfg.Worker.MaxWorkers,
		IdleThrottle: 0,
		ItemTimeout:  cfg.Timeout(),
		Force:        c.Force,
		Options:      cfg.SpectrumOptions(),
		Decoder:      decoder,
		Store:        store,
		OnStart: func(item analysis.Item) {
			if program != nil {
				program.Send(ui.FileStartMsg{Path: item.Path})
			}
		},
		OnResult: func(r analysis.ItemResult) {
			mu.Lock()
			results[r.Path] = r
			mu.Unlock()
			if notifier != nil && r.Status == analysis.StatusAnalyzed && r.Result != nil {
				notifier.Notify(r.Path, r.Result.Safety)
			}
			if program != nil {
				program.Send(ui.FileCompleteMsg{Result: r})
			}
		},
	})
	if err != nil {
		return err
	}

	if err := worker.Start(ctx, items); err != nil {
		return err
	}

	if program != nil {
		go func() {
			if err := worker.Wait(ctx); err == nil {
				program.Send(ui.AllCompleteMsg{Status: worker.GetStatus()})
			}
		}()

		final, err := program.Run()
		if m, ok := final.(ui.Model); ok && m.Quit {
			worker.Stop()
		}
		worker.Wait(context.Background())
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("UI error: %w", err)
		}
	} else if err := worker.Wait(ctx); err != nil {
		worker.Stop()
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	return printResults(ctx, decoder, paths, results, c.JSON, c.TUI)
}

func printResults(ctx context.Context, decoder *audio.FFmpegDecoder, paths []string, results map[string]analysis.ItemResult, asJSON, summaryOnly bool) error {
	failed := 0
	messages := make([]ipc.ResultMessage, 0, len(paths))
	for _, path := range paths {
		r, ok := results[path]
		if !ok {
			continue
		}
		if r.Status == analysis.StatusFailed {
			failed++
		}
		messages = append(messages, ipc.NewResultMessage(r))
	}

	switch {
	case asJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(messages); err != nil {
			return err
		}
	case !summaryOnly:
		for _, msg := range messages {
			meta, err := decoder.Metadata(ctx, msg.Path)
			if err != nil {
				meta = nil
			}
			fmt.Print(cli.RenderResult(msg.Path, msg.Status, msg.Result, meta))
			if msg.Error != "" && msg.Status == analysis.StatusFailed {
				fmt.Printf("  %s %s\n", cli.ErrorStyle.Render("Error:"), msg.Error)
			}
			fmt.Println()
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
	}
	return nil
}

// redirectLogs keeps log output off the terminal while the TUI runs
func redirectLogs(g *Globals, dir string) error {
	if !g.Verbose {
		log.SetOutput(io.Discard)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "resonanced-debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open debug log: %w", err)
	}
	log.SetOutput(f)
	return nil
}

// ClassifyCmd classifies a bare frequency
type ClassifyCmd struct {
	Hz   float64 `arg:"" help:"Frequency in Hz"`
	JSON bool    `name:"json" help:"Print the match as JSON"`
}

func (c *ClassifyCmd) Run() error {
	m := canon.ClassifyMatch(c.Hz)
	if c.JSON {
		return printJSON(m)
	}
	fmt.Print(cli.RenderMatch(c.Hz, m))
	return nil
}

// AssessCmd assesses a bare frequency
type AssessCmd struct {
	Hz   float64 `arg:"" help:"Frequency in Hz"`
	JSON bool    `name:"json" help:"Print the assessment as JSON"`
}

func (c *AssessCmd) Run() error {
	a := safety.Assess(c.Hz)
	if c.JSON {
		return printJSON(a)
	}
	fmt.Print(cli.RenderAssessment(a))
	return nil
}

// TableCmd lists the canonical table
type TableCmd struct {
	JSON bool `name:"json" help:"Print the table as JSON"`
}

func (c *TableCmd) Run() error {
	if c.JSON {
		return printJSON(ipc.TableResponse{Frequencies: canon.Table(), Default: canon.Default()})
	}
	fmt.Print(cli.RenderTable(canon.Table(), canon.Default()))
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ToneCmd plays a sine preview
type ToneCmd struct {
	Hz          float64 `arg:"" help:"Frequency in Hz"`
	Seconds     float64 `short:"s" help:"Preview length in seconds (default: from config)"`
	Volume      float64 `default:"-1" help:"Requested volume 0.0 - 1.0 (default: from config)"`
	NoAttenuate bool    `help:"Play at the requested volume regardless of tier"`
}

func (c *ToneCmd) Run(ctx context.Context, g *Globals) error {
	g.quietLogs()

	configMgr, err := g.loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	seconds := c.Seconds
	if seconds <= 0 {
		seconds = cfg.Output.ToneSeconds
	}
	volume := c.Volume
	if volume < 0 {
		volume = cfg.Output.DefaultVolume
	}

	req := audio.ToneRequest{
		Hz:            c.Hz,
		Duration:      time.Duration(seconds * float64(time.Second)),
		Volume:        volume,
		AutoAttenuate: cfg.Safety.AutoAttenuate && !c.NoAttenuate,
	}

	assessment := safety.Assess(c.Hz)
	fmt.Print(cli.RenderAssessment(assessment))

	if notifier := newNotifier(cfg); notifier != nil {
		notifier.Notify(fmt.Sprintf("%.2f Hz preview", c.Hz), assessment)
		defer notifier.Close()
	}

	out, err := audio.NewOtoOutput()
	if err != nil {
		return err
	}
	defer out.Close()

	stop := context.AfterFunc(ctx, out.Stop)
	defer stop()

	applied, err := audio.PlayTone(ctx, out, req)
	fmt.Printf("  %s %.0f%%\n", cli.KeyStyle.Render("Played at:"), applied*100)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// ScanCmd counts audio files and optionally edits the library
type ScanCmd struct {
	Paths  []string `arg:"" optional:"" type:"path" help:"Paths to scan (default: library paths)"`
	Add    bool     `help:"Remember the given paths as library paths"`
	Remove bool     `help:"Forget the given library paths"`
}

func (c *ScanCmd) Run(ctx context.Context, g *Globals) error {
	g.quietLogs()

	configMgr, err := g.loadConfig()
	if err != nil {
		return err
	}

	if c.Add && c.Remove {
		return fmt.Errorf("--add and --remove are mutually exclusive")
	}
	for _, p := range c.Paths {
		switch {
		case c.Add:
			err = configMgr.AddLibraryPath(p)
		case c.Remove:
			err = configMgr.RemoveLibraryPath(p)
		}
		if err != nil {
			return err
		}
	}
	if c.Remove {
		return nil
	}

	paths := c.Paths
	if len(paths) == 0 {
		paths = configMgr.Get().LibraryPaths
	}
	if len(paths) == 0 {
		return fmt.Errorf("no library paths configured; use scan --add <path>")
	}

	results, err := scanner.NewScanner().ScanPaths(ctx, paths)
	if err != nil {
		return err
	}
	fmt.Print(cli.RenderScan(results))
	return nil
}
