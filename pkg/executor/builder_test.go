package executor

import (
	"strings"
	"testing"
)

func TestCommandBuilder_BuildWithClips(t *testing.T) {
	builder := NewCommandBuilder("ffmpeg")
	spec := AssemblySpec{
		Clips:      []Clip{{Source: "/tmp/a.mp4", Duration: 5}, {Source: "/tmp/b.mp4", Duration: 5}},
		AudioPath:  "/tmp/voice.wav",
		OutputPath: "/tmp/out.mp4",
	}

	cmd, err := builder.Build(spec, "/tmp/concat.txt")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cmd.Args[0] != "ffmpeg" {
		t.Errorf("Expected ffmpeg, got %s", cmd.Args[0])
	}

	line := cmd.String()
	for _, want := range []string{
		"-f concat -safe 0 -i /tmp/concat.txt",
		"-i /tmp/voice.wav",
		"scale=1920:1080:force_original_aspect_ratio=decrease",
		"-map 1:a:0",
		"-shortest",
		"-b:v 8000k",
		"-b:a 192k",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("Command missing %q: %s", want, line)
		}
	}

	if cmd.Args[len(cmd.Args)-1] != "/tmp/out.mp4" {
		t.Errorf("Expected output last, got %s", cmd.Args[len(cmd.Args)-1])
	}
}

func TestCommandBuilder_BuildWithoutClips(t *testing.T) {
	builder := NewCommandBuilder("")
	spec := AssemblySpec{
		AudioPath:       "/tmp/voice.wav",
		OutputPath:      "/tmp/out.mp4",
		DurationSeconds: 42,
	}

	cmd, err := builder.Build(spec, "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	line := cmd.String()
	if !strings.Contains(line, "-f lavfi -i color=c=black:s=1920x1080:d=42.000") {
		t.Errorf("Expected solid background input: %s", line)
	}
	if strings.Contains(line, "concat") {
		t.Errorf("Unexpected concat input: %s", line)
	}
}

func TestCommandBuilder_BuildWithSubtitles(t *testing.T) {
	builder := NewCommandBuilder("ffmpeg")
	spec := AssemblySpec{
		Clips:         []Clip{{Source: "/tmp/a.mp4"}},
		SubtitlesPath: "/tmp/my:subs.srt",
		OutputPath:    "/tmp/out.mp4",
	}

	cmd, err := builder.Build(spec, "/tmp/concat.txt")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var vf string
	for i, a := range cmd.Args {
		if a == "-vf" {
			vf = cmd.Args[i+1]
		}
	}
	if !strings.Contains(vf, `subtitles=/tmp/my\:subs.srt`) {
		t.Errorf("Expected escaped subtitles filter, got %s", vf)
	}
	if strings.Contains(cmd.String(), "-shortest") {
		t.Errorf("-shortest should only be set with audio")
	}
}

func TestCommandBuilder_Invalid(t *testing.T) {
	builder := NewCommandBuilder("ffmpeg")

	if _, err := builder.Build(AssemblySpec{OutputPath: "/tmp/out.mp4"}, ""); err == nil {
		t.Error("Expected error with no clips and no audio")
	}
	if _, err := builder.Build(AssemblySpec{AudioPath: "/tmp/a.wav"}, ""); err == nil {
		t.Error("Expected error with no output path")
	}
	if _, err := builder.Build(AssemblySpec{Clips: []Clip{{Source: "a.mp4"}}, OutputPath: "o.mp4"}, ""); err == nil {
		t.Error("Expected error with clips but no concat list")
	}
}

func TestConcatList(t *testing.T) {
	got := ConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"}, []float64{2.5, 0})
	want := "file '/tmp/a.mp4'\nduration 2.500\nfile '/tmp/it'\\''s.mp4'\n"
	if got != want {
		t.Errorf("ConcatList() = %q, want %q", got, want)
	}
}
