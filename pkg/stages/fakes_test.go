package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/clients/ollama"
	"github.com/chicogong/ytagents/pkg/clients/youtube"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/storage"
)

var errUnreachable = errors.New("connection refused")

// fakeLLM answers JSON prompts with reply and text prompts with texts in
// order, then reply
type fakeLLM struct {
	reply   string
	texts   []string
	err     error
	prompts []string
	temps   []float64
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, temperature float64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.temps = append(f.temps, temperature)
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) > 0 {
		text := f.texts[0]
		f.texts = f.texts[1:]
		return text, nil
	}
	return f.reply, nil
}

func (f *fakeLLM) ExtractJSON(_ context.Context, prompt string, v interface{}) error {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	return ollama.DecodeJSON(f.reply, v)
}

type fakeTTS struct{ err error }

func (f fakeTTS) Synthesize(_ context.Context, text, voice, outPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFF"+text), 0644)
}

type fixedDuration float64

func (d fixedDuration) Duration(context.Context, string) (float64, error) { return float64(d), nil }

type fakePublisher struct {
	err error
	got youtube.UploadRequest
}

func (f *fakePublisher) Upload(_ context.Context, req youtube.UploadRequest) (*youtube.UploadResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &youtube.UploadResult{VideoID: "yt123", URL: youtube.WatchURL("yt123"), Privacy: req.Privacy, PlaylistAdded: req.PlaylistID != ""}, nil
}

type fakeStats struct {
	metrics   map[string]*schemas.VideoMetrics
	retention []schemas.RetentionPoint
	err       error
}

func (f fakeStats) Stats(_ context.Context, ids ...string) (map[string]*schemas.VideoMetrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]*schemas.VideoMetrics{}
	for _, id := range ids {
		if m, ok := f.metrics[id]; ok {
			cp := *m
			out[id] = &cp
		}
	}
	return out, nil
}

func (f fakeStats) Retention(context.Context, string, time.Time) ([]schemas.RetentionPoint, error) {
	return f.retention, nil
}

func newState(t *testing.T, topic string) *State {
	t.Helper()
	return NewState("wf-1", topic, t.TempDir())
}

func newBackend(t *testing.T) storage.VideoBackend {
	t.Helper()
	b, err := storage.NewFilesystemBackend(filepath.Join(t.TempDir(), "videos"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func scriptState(t *testing.T) *State {
	st := newState(t, "Cats")
	st.Put(FallbackResearch("Cats"))
	st.Put(&schemas.ScriptData{
		Topic: "Cats",
		Hook:  "Cats rule the internet.",
		Body:  "They purr. They sleep a lot! Why do they knock things over?",
		CTA:   "Subscribe.",
		Scenes: []schemas.Scene{
			{Number: 1, Title: "Intro", DurationSeconds: 10, VisualDescription: "cat sleeping"},
			{Number: 2, Title: "Chaos", DurationSeconds: 12, VisualDescription: "cat knocking glass"},
		},
	})
	return st
}
