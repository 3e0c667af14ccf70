package executor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress represents FFmpeg encoding progress
type Progress struct {
	Frame   int
	FPS     float64
	Time    time.Duration // position in the output
	Size    int64         // bytes
	Speed   float64       // 1.0 = realtime
	Percent float64       // 0 when the total duration is unknown
}

// ProgressParser parses the status lines ffmpeg writes to stderr
type ProgressParser struct {
	totalDuration time.Duration
}

var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe  = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
	sizeRe  = regexp.MustCompile(`size=\s*(\d+)(?:kB|KiB)`)
	speedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

func NewProgressParser() *ProgressParser {
	return &ProgressParser{}
}

// SetTotalDuration enables Percent
func (pp *ProgressParser) SetTotalDuration(duration time.Duration) {
	pp.totalDuration = duration
}

// ParseLine returns nil for lines without a frame counter
func (pp *ProgressParser) ParseLine(line string) *Progress {
	if !strings.Contains(line, "frame=") {
		return nil
	}

	p := &Progress{}
	if m := frameRe.FindStringSubmatch(line); m != nil {
		p.Frame, _ = strconv.Atoi(m[1])
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		cs, _ := strconv.Atoi(m[4])
		p.Time = time.Duration(h)*time.Hour + time.Duration(min)*time.Minute +
			time.Duration(s)*time.Second + time.Duration(cs)*10*time.Millisecond
	}
	if m := sizeRe.FindStringSubmatch(line); m != nil {
		kb, _ := strconv.ParseInt(m[1], 10, 64)
		p.Size = kb * 1024
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
	}

	if pp.totalDuration > 0 {
		p.Percent = float64(p.Time) / float64(pp.totalDuration) * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}
