// Package prober reads media durations and stream layout using ffprobe
package prober

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// ErrFFprobeNotFound is returned when no ffprobe binary is available
var ErrFFprobeNotFound = errors.New("ffprobe not found in PATH")

// MediaInfo is the subset of ffprobe output the pipeline relies on
type MediaInfo struct {
	Filename        string  `json:"filename"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
	Size            int64   `json:"size"`

	HasVideo   bool   `json:"has_video"`
	VideoCodec string `json:"video_codec,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`

	HasAudio   bool   `json:"has_audio"`
	AudioCodec string `json:"audio_codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Prober probes media files using ffprobe
type Prober struct {
	ffprobePath string
}

// ProberOption is a functional option for Prober
type ProberOption func(*Prober)

// WithFFprobePath sets a custom ffprobe binary path
func WithFFprobePath(path string) ProberOption {
	return func(p *Prober) {
		p.ffprobePath = path
	}
}

// NewProber creates a new Prober instance
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		ffprobePath: findFFprobe(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether an ffprobe binary was found
func (p *Prober) Available() bool { return p.ffprobePath != "" }

// Probe probes a media file and returns its metadata
func (p *Prober) Probe(ctx context.Context, filePath string) (*MediaInfo, error) {
	if p.ffprobePath == "" {
		return nil, ErrFFprobeNotFound
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	output, err := exec.CommandContext(ctx, p.ffprobePath, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed on %s: %s", filePath, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe execution error: %w", err)
	}

	return parseFFprobeOutput(output)
}

// Duration returns the container duration of filePath in seconds
func (p *Prober) Duration(ctx context.Context, filePath string) (float64, error) {
	info, err := p.Probe(ctx, filePath)
	if err != nil {
		return 0, err
	}
	return info.DurationSeconds, nil
}

// findFFprobe locates ffprobe in PATH
func findFFprobe() string {
	candidates := []string{
		"ffprobe",
		"/usr/local/bin/ffprobe",
		"/opt/homebrew/bin/ffprobe",
		"/usr/bin/ffprobe",
	}

	for _, path := range candidates {
		if resolved, err := exec.LookPath(path); err == nil {
			return resolved
		}
	}
	return ""
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Duration   string `json:"duration"`
}

func parseFFprobeOutput(data []byte) (*MediaInfo, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		Filename:        output.Format.Filename,
		Format:          output.Format.FormatName,
		DurationSeconds: parseFloat(output.Format.Duration),
		Size:            parseInt64(output.Format.Size),
	}

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
			info.SampleRate = int(parseInt64(stream.SampleRate))
		}

		// some containers only report durations per stream
		if info.DurationSeconds == 0 {
			info.DurationSeconds = parseFloat(stream.Duration)
		}
	}

	return info, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
