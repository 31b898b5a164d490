package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

const (
	DefaultSampleRate = 44100
	// DefaultSegment is the length of audio decoded for analysis.
	DefaultSegment = 3 * time.Second
)

// FileMetadata contains metadata extracted from an audio file
type FileMetadata struct {
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// SegmentConfig selects which part of a file is decoded.
type SegmentConfig struct {
	SampleRate int
	// Offset is where decoding starts. A negative offset, or a file too
	// short to hold the segment at Offset, centres the segment instead.
	Offset time.Duration
	Length time.Duration
	// LowPriority runs ffmpeg under nice when available.
	LowPriority bool
}

// FFmpegDecoder uses FFmpeg for audio decoding
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	nicePath    string
	segment     SegmentConfig
}

// NewFFmpegDecoder creates a new FFmpeg-based decoder
func NewFFmpegDecoder(segment SegmentConfig) (*FFmpegDecoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	// ffprobe is optional. Without it offsets are used as configured.
	ffprobePath, _ := exec.LookPath("ffprobe")

	var nicePath string
	if segment.LowPriority {
		nicePath, _ = exec.LookPath("nice")
	}

	if segment.SampleRate <= 0 {
		segment.SampleRate = DefaultSampleRate
	}
	if segment.Length <= 0 {
		segment.Length = DefaultSegment
	}

	return &FFmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		nicePath:    nicePath,
		segment:     segment,
	}, nil
}

// DecodeSegment decodes the configured segment of path to a mono block.
func (d *FFmpegDecoder) DecodeSegment(ctx context.Context, path string) (spectrum.Block, error) {
	total, err := d.Duration(ctx, path)
	if err != nil {
		total = 0
	}
	offset := segmentOffset(d.segment.Offset, d.segment.Length, total)

	pcm, err := d.decodePCM(ctx, path, offset)
	if err == nil && len(pcm) == 0 && offset > 0 {
		// Offset ran past the end of a file whose duration was unknown
		pcm, err = d.decodePCM(ctx, path, 0)
	}
	if err != nil {
		return spectrum.Block{}, err
	}

	return spectrum.Block{
		Samples:    PCMToMono(pcm, 1),
		SampleRate: d.segment.SampleRate,
	}, nil
}

// segmentOffset picks where a segment of length starts in a file of total
// duration. An unknown duration (0) trusts a non-negative offset.
func segmentOffset(offset, length, total time.Duration) time.Duration {
	if total <= 0 {
		if offset < 0 {
			return 0
		}
		return offset
	}
	if offset >= 0 && offset+length <= total {
		return offset
	}
	if total <= length {
		return 0
	}
	return (total - length) / 2
}

// decodePCM runs ffmpeg and returns mono s16le PCM for the segment.
func (d *FFmpegDecoder) decodePCM(ctx context.Context, path string, offset time.Duration) ([]byte, error) {
	args := []string{"-v", "error"}
	if offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", offset.Seconds()))
	}
	args = append(args,
		"-i", path,
		"-t", fmt.Sprintf("%.3f", d.segment.Length.Seconds()),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.segment.SampleRate),
		"-",
	)

	var cmd *exec.Cmd
	if d.nicePath != "" {
		// Run at low priority (nice level 19)
		cmd = exec.CommandContext(ctx, d.nicePath, append([]string{"-n", "19", d.ffmpegPath}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, d.ffmpegPath, args...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	maxBytes := int64(d.segment.Length.Seconds()*float64(d.segment.SampleRate)+1) * 2
	var buf bytes.Buffer
	buf.Grow(int(maxBytes))
	_, copyErr := io.Copy(&buf, io.LimitReader(stdout, maxBytes))

	// Drain anything past the limit so ffmpeg can exit.
	io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("ffmpeg: %s", msg)
	}
	if copyErr != nil {
		return nil, fmt.Errorf("read output: %w", copyErr)
	}

	return buf.Bytes(), nil
}

// Duration returns the duration of an audio file
func (d *FFmpegDecoder) Duration(ctx context.Context, path string) (time.Duration, error) {
	if d.ffprobePath == "" {
		return 0, fmt.Errorf("ffprobe not found in PATH")
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := exec.CommandContext(ctx, d.ffprobePath, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return time.Duration(durationSec * float64(time.Second)), nil
}

// Metadata extracts metadata from an audio file using ffprobe
func (d *FFmpegDecoder) Metadata(ctx context.Context, path string) (*FileMetadata, error) {
	if d.ffprobePath == "" {
		return fallbackMetadata(path), nil
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}

	output, err := exec.CommandContext(ctx, d.ffprobePath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output, path)
}

func parseProbe(output []byte, path string) (*FileMetadata, error) {
	var probeResult struct {
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &FileMetadata{}

	// Extract tags (case-insensitive lookup)
	for key, value := range probeResult.Format.Tags {
		switch strings.ToLower(key) {
		case "title":
			meta.Title = value
		case "artist":
			meta.Artist = value
		case "album":
			meta.Album = value
		case "album_artist":
			if meta.Artist == "" {
				meta.Artist = value
			}
		}
	}

	if probeResult.Format.Duration != "" {
		if durationSec, err := strconv.ParseFloat(probeResult.Format.Duration, 64); err == nil {
			meta.Duration = time.Duration(durationSec * float64(time.Second))
		}
	}

	if meta.Title == "" {
		meta.Title = fallbackMetadata(path).Title
	}

	return meta, nil
}

func fallbackMetadata(path string) *FileMetadata {
	base := filepath.Base(path)
	return &FileMetadata{Title: strings.TrimSuffix(base, filepath.Ext(base))}
}
