package executor

import (
	"fmt"
	"strings"
)

// Clip is one visual segment of the final video
type Clip struct {
	// Source is a local path or an http(s) URL
	Source   string  `json:"source"`
	Duration float64 `json:"duration,omitempty"`
}

// AssemblySpec describes the video to render
type AssemblySpec struct {
	Clips         []Clip
	AudioPath     string
	SubtitlesPath string
	OutputPath    string

	// DurationSeconds bounds the solid background used when there are no clips
	DurationSeconds float64

	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
}

func (s *AssemblySpec) applyDefaults() {
	if s.Width == 0 || s.Height == 0 {
		s.Width, s.Height = 1920, 1080
	}
	if s.VideoBitrate == "" {
		s.VideoBitrate = "8000k"
	}
	if s.AudioBitrate == "" {
		s.AudioBitrate = "192k"
	}
	if s.DurationSeconds <= 0 {
		s.DurationSeconds = 10
	}
}

// Command represents an FFmpeg command to execute
type Command struct {
	Args    []string
	WorkDir string
}

// String renders the command for logs
func (c *Command) String() string {
	return strings.Join(c.Args, " ")
}

// CommandBuilder builds FFmpeg commands for video assembly
type CommandBuilder struct {
	ffmpegPath string
}

func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &CommandBuilder{ffmpegPath: ffmpegPath}
}

// ConcatList renders the concat demuxer input file for local clip paths
func ConcatList(paths []string, durations []float64) string {
	var b strings.Builder
	for i, p := range paths {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
		if i < len(durations) && durations[i] > 0 {
			fmt.Fprintf(&b, "duration %.3f\n", durations[i])
		}
	}
	return b.String()
}

// Build generates the command. concatFile is the concat list written for the
// clips; it is ignored when the spec has none and a solid background is used.
func (cb *CommandBuilder) Build(spec AssemblySpec, concatFile string) (*Command, error) {
	spec.applyDefaults()
	if spec.OutputPath == "" {
		return nil, fmt.Errorf("no output path")
	}
	if len(spec.Clips) == 0 && spec.AudioPath == "" {
		return nil, fmt.Errorf("nothing to assemble: no clips and no audio")
	}

	args := []string{cb.ffmpegPath, "-y", "-hide_banner"}

	if len(spec.Clips) > 0 {
		if concatFile == "" {
			return nil, fmt.Errorf("clips given without a concat list")
		}
		args = append(args, "-f", "concat", "-safe", "0", "-i", concatFile)
	} else {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("color=c=black:s=%dx%d:d=%.3f", spec.Width, spec.Height, spec.DurationSeconds),
		)
	}

	if spec.AudioPath != "" {
		args = append(args, "-i", spec.AudioPath)
	}

	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", spec.Width, spec.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", spec.Width, spec.Height),
		"format=yuv420p",
	}
	if spec.SubtitlesPath != "" {
		filters = append(filters, fmt.Sprintf("subtitles=%s:force_style='FontSize=24,PrimaryColour=&Hffffff&,Outline=2'", escapeFilterPath(spec.SubtitlesPath)))
	}
	args = append(args, "-vf", strings.Join(filters, ","))

	args = append(args, "-map", "0:v:0")
	if spec.AudioPath != "" {
		args = append(args, "-map", "1:a:0", "-c:a", "aac", "-b:a", spec.AudioBitrate, "-shortest")
	}
	args = append(args,
		"-c:v", "libx264",
		"-b:v", spec.VideoBitrate,
		"-movflags", "+faststart",
		spec.OutputPath,
	)

	return &Command{Args: args}, nil
}

// escapeFilterPath quotes characters that are special inside a filtergraph
func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(p)
}
