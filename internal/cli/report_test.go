package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/audio"
	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/scanner"
)

func TestFormatHz(t *testing.T) {
	tests := []struct {
		hz   float64
		want string
	}{
		{0, "none"},
		{528, "528.00 Hz"},
		{432.125, "432.13 Hz"},
	}
	for _, tt := range tests {
		if got := FormatHz(tt.hz); got != tt.want {
			t.Errorf("FormatHz(%v): Expected %q, got %q", tt.hz, tt.want, got)
		}
	}
}

func TestRenderResult(t *testing.T) {
	r := &analysis.Result{
		DetectedHz:      528.3,
		Canonical:       canon.Classify(528),
		CanonicalDistHz: 0.3,
		HarmonicSeries:  []float64{528, 1056, 1584},
		Safety:          safety.Assess(528.3),
		Notes:           []string{"Weak peak"},
	}

	out := RenderResult("/music/tone.flac", analysis.StatusAnalyzed, r, nil)
	for _, want := range []string{"tone.flac", "528.30 Hz", "MI", "528, 1056, 1584", "SAFE", "100%", "Weak peak"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderResultWithoutResult(t *testing.T) {
	out := RenderResult("/music/bad.mp3", analysis.StatusFailed, nil, nil)
	if !strings.Contains(out, "failed") {
		t.Errorf("Expected failed status, got:\n%s", out)
	}
}

func TestRenderResultWithMetadata(t *testing.T) {
	meta := &audio.FileMetadata{Title: "Solfeggio", Artist: "Choir", Duration: 95500 * time.Millisecond}
	out := RenderResult("/music/x.flac", analysis.StatusUnanalyzed, analysis.Unanalyzed("Analysis timed out"), meta)
	for _, want := range []string{"Choir - Solfeggio", "1m36s", "unanalyzed", "Foundation", "Analysis timed out"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "x.flac") {
		t.Error("Expected tag title to replace the file name")
	}
}

func TestRenderMatch(t *testing.T) {
	out := RenderMatch(1056, canon.ClassifyMatch(1056))
	if !strings.Contains(out, "MI") || !strings.Contains(out, "×2") {
		t.Errorf("Expected octave match to MI, got:\n%s", out)
	}

	out = RenderMatch(0, canon.ClassifyMatch(0))
	if !strings.Contains(out, "default entry") {
		t.Errorf("Expected fallback, got:\n%s", out)
	}
}

func TestRenderAssessment(t *testing.T) {
	out := RenderAssessment(safety.Assess(5000))
	if !strings.Contains(out, "RESEARCH") || !strings.Contains(out, "20%") {
		t.Errorf("Unexpected assessment:\n%s", out)
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(canon.Table(), canon.Default())
	for _, f := range canon.Table() {
		if !strings.Contains(out, f.Name) {
			t.Errorf("Expected table to list %q", f.Name)
		}
	}
	if strings.Count(out, "*") != 2 {
		t.Errorf("Expected one default marker plus legend, got:\n%s", out)
	}
}

func TestRenderScan(t *testing.T) {
	out := RenderScan([]scanner.ScanResult{
		{LibraryPath: "/a", TotalFiles: 3, ScanTimeMs: 5},
		{LibraryPath: "/b", Error: "path does not exist"},
	})
	if !strings.Contains(out, "3 files in 5ms") || !strings.Contains(out, "path does not exist") || !strings.Contains(out, "3 files") {
		t.Errorf("Unexpected scan output:\n%s", out)
	}
}

type helpCLI struct {
	Verbose  bool `help:"Verbose logging"`
	Classify struct {
		Hz float64 `arg:"" help:"Frequency in Hz"`
	} `cmd:"" help:"Classify a frequency"`
	Table struct{} `cmd:"" help:"Show the canonical table"`
}

func TestStyledHelpPrinter(t *testing.T) {
	var out bytes.Buffer
	parser, err := kong.New(&helpCLI{},
		kong.Name("resonanced"),
		kong.Writers(&out, &out),
		kong.Exit(func(int) {}),
		kong.Help(StyledHelpPrinter("Frequency analysis")),
	)
	if err != nil {
		t.Fatalf("kong.New failed: %v", err)
	}

	parser.Parse([]string{"--help"})
	help := out.String()
	for _, want := range []string{"resonanced", "Frequency analysis", "Commands:", "classify <hz>", "Show the canonical table", "--verbose"} {
		if !strings.Contains(help, want) {
			t.Errorf("Expected help to contain %q, got:\n%s", want, help)
		}
	}

	out.Reset()
	parser.Parse([]string{"classify", "--help"})
	help = out.String()
	if !strings.Contains(help, "Classify a frequency") || !strings.Contains(help, "Arguments:") {
		t.Errorf("Expected command help, got:\n%s", help)
	}
}
