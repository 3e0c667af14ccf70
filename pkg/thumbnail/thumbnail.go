// Package thumbnail renders the title card used as the video thumbnail.
package thumbnail

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

const (
	Width  = 1280
	Height = 720
)

// Renderer draws text on a 1280x720 background
type Renderer struct {
	face       font.Face
	background color.Color
	accent     color.Color
	text       color.Color
}

// NewRenderer parses the embedded Go Bold font at the given point size
func NewRenderer(fontSize float64) (*Renderer, error) {
	if fontSize <= 0 {
		fontSize = 96
	}
	parsed, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsed, &truetype.Options{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return &Renderer{
		face:       face,
		background: color.NRGBA{R: 0x14, G: 0x18, B: 0x2b, A: 0xff},
		accent:     color.NRGBA{R: 0xff, G: 0x3d, B: 0x3d, A: 0xff},
		text:       color.White,
	}, nil
}

// Render returns the PNG bytes of the title card
func (r *Renderer) Render(text string) ([]byte, error) {
	text = strings.ToUpper(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("thumbnail text is empty")
	}

	dc := gg.NewContext(Width, Height)
	dc.SetColor(r.background)
	dc.Clear()

	// accent bar on the left edge
	dc.SetColor(r.accent)
	dc.DrawRectangle(0, 0, 40, Height)
	dc.Fill()

	dc.SetFontFace(r.face)
	margin := 120.0
	maxWidth := float64(Width) - 2*margin

	dc.SetColor(color.NRGBA{A: 0xb0})
	dc.DrawStringWrapped(text, Width/2+4, Height/2+4, 0.5, 0.5, maxWidth, 1.2, gg.AlignCenter)
	dc.SetColor(r.text)
	dc.DrawStringWrapped(text, Width/2, Height/2, 0.5, 0.5, maxWidth, 1.2, gg.AlignCenter)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderFile renders text into path, creating parent directories
func (r *Renderer) RenderFile(text, path string) error {
	data, err := r.Render(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
