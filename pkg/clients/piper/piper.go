// Package piper drives the piper text-to-speech binary.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrPiperNotFound is returned when the piper binary is not installed
var ErrPiperNotFound = errors.New("piper not found in PATH")

// Voices maps friendly aliases to piper voice models
var Voices = map[string]string{
	"male_us":    "en_US-lessac-medium",
	"male_uk":    "en_GB-alan-medium",
	"female_us":  "en_US-jenny-medium",
	"female_uk":  "en_GB-aru-medium",
	"male_young": "en_US-ryan-medium",
}

// DefaultVoice is used when no voice is requested
const DefaultVoice = "male_us"

// ResolveVoice maps an alias to its model; unknown names are passed through
// as model names so any installed voice can be used
func ResolveVoice(voice string) string {
	if voice == "" {
		voice = DefaultVoice
	}
	if model, ok := Voices[voice]; ok {
		return model
	}
	return voice
}

type Client struct {
	binary string
}

func New(binary string) *Client {
	if binary == "" {
		binary = "piper"
	}
	return &Client{binary: binary}
}

// Available reports whether the binary can be found
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Synthesize writes text spoken by voice to outPath as WAV.
// Text goes through stdin so no shell quoting is involved.
func (c *Client) Synthesize(ctx context.Context, text, voice, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to synthesize")
	}
	bin, err := exec.LookPath(c.binary)
	if err != nil {
		return ErrPiperNotFound
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, "--model", ResolveVoice(voice), "--output_file", outPath)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("piper produced no output: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("piper produced an empty file")
	}
	return nil
}
