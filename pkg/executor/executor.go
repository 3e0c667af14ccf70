// Package executor renders final videos with ffmpeg.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chicogong/ytagents/pkg/logger"
)

// ErrFFmpegNotFound is returned when no ffmpeg binary is available
var ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

// Executor assembles clips, narration and subtitles into one MP4
type Executor struct {
	ffmpegPath string
	builder    *CommandBuilder
	httpClient *http.Client
	log        *logger.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithFFmpegPath sets a custom ffmpeg binary path
func WithFFmpegPath(path string) Option {
	return func(e *Executor) { e.ffmpegPath = path }
}

// WithHTTPClient sets the client used to download remote clips
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.httpClient = c }
}

func NewExecutor(log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		ffmpegPath: findFFmpeg(),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log.With("component", "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.builder = NewCommandBuilder(e.ffmpegPath)
	return e
}

// Available reports whether ffmpeg was found
func (e *Executor) Available() bool { return e.ffmpegPath != "" }

// ExecuteOptions contains options for execution
type ExecuteOptions struct {
	// OnProgress is called for progress updates
	OnProgress func(*Progress)

	// OnLog is called for FFmpeg log output
	OnLog func(string)
}

// Result describes the rendered file
type Result struct {
	OutputPath string
	Clips      int
	Elapsed    time.Duration
}

// Assemble renders spec.OutputPath. Remote clips are downloaded to a temporary
// directory first; clips that fail to download are skipped.
func (e *Executor) Assemble(ctx context.Context, spec AssemblySpec, opts *ExecuteOptions) (*Result, error) {
	if !e.Available() {
		return nil, ErrFFmpegNotFound
	}
	if opts == nil {
		opts = &ExecuteOptions{}
	}
	start := time.Now()

	tempDir, err := os.MkdirTemp("", "ytagents-assembly-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	paths, durations := e.prepareInputs(ctx, spec.Clips, tempDir)
	spec.Clips = spec.Clips[:0:0]
	for i, p := range paths {
		spec.Clips = append(spec.Clips, Clip{Source: p, Duration: durations[i]})
	}

	var concatFile string
	if len(paths) > 0 {
		concatFile = filepath.Join(tempDir, "concat.txt")
		if err := os.WriteFile(concatFile, []byte(ConcatList(paths, durations)), 0644); err != nil {
			return nil, fmt.Errorf("write concat list: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	cmd, err := e.builder.Build(spec, concatFile)
	if err != nil {
		return nil, fmt.Errorf("failed to build command: %w", err)
	}
	e.log.Debug("running ffmpeg", "command", cmd.String())

	parser := NewProgressParser()
	if spec.DurationSeconds > 0 {
		parser.SetTotalDuration(time.Duration(spec.DurationSeconds * float64(time.Second)))
	}
	if err := e.executeCommand(ctx, cmd, parser, opts); err != nil {
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}

	if fi, err := os.Stat(spec.OutputPath); err != nil || fi.Size() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output at %s", spec.OutputPath)
	}

	res := &Result{OutputPath: spec.OutputPath, Clips: len(paths), Elapsed: time.Since(start)}
	e.log.Info("video assembled", "output", res.OutputPath, "clips", res.Clips, "elapsed", res.Elapsed)
	return res, nil
}

// executeCommand runs the command, streaming stderr through the progress parser
func (e *Executor) executeCommand(ctx context.Context, cmd *Command, parser *ProgressParser, opts *ExecuteOptions) error {
	execCmd := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	if cmd.WorkDir != "" {
		execCmd.Dir = cmd.WorkDir
	}

	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := execCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	// ffmpeg writes progress to stderr; keep the tail for error reports
	tail := newTailBuffer(20)
	stderrDone := make(chan error, 1)
	go func() {
		stderrDone <- streamLines(stderr, func(line string) {
			tail.add(line)
			if p := parser.ParseLine(line); p != nil && opts.OnProgress != nil {
				opts.OnProgress(p)
			}
			if opts.OnLog != nil {
				opts.OnLog(line)
			}
		})
	}()
	stdoutDone := make(chan error, 1)
	go func() {
		stdoutDone <- streamLines(stdout, func(line string) {
			if opts.OnLog != nil {
				opts.OnLog(line)
			}
		})
	}()

	// pipes must be drained before Wait closes them
	<-stderrDone
	<-stdoutDone
	if err := execCmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail.String())
	}
	return nil
}

func streamLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}

// scanLinesOrCR splits on \n and on the \r ffmpeg uses for progress updates
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type tailBuffer struct {
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) add(line string) {
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}

func findFFmpeg() string {
	for _, path := range []string{"ffmpeg", "/usr/local/bin/ffmpeg", "/opt/homebrew/bin/ffmpeg", "/usr/bin/ffmpeg"} {
		if resolved, err := exec.LookPath(path); err == nil {
			return resolved
		}
	}
	return ""
}
