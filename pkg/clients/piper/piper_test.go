package piper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVoice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "en_US-lessac-medium"},
		{"male_us", "en_US-lessac-medium"},
		{"male_uk", "en_GB-alan-medium"},
		{"female_us", "en_US-jenny-medium"},
		{"female_uk", "en_GB-aru-medium"},
		{"male_young", "en_US-ryan-medium"},
		{"de_DE-thorsten-medium", "de_DE-thorsten-medium"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveVoice(tt.in))
		})
	}
}

func TestSynthesize_MissingBinary(t *testing.T) {
	c := New("piper-binary-that-does-not-exist")
	assert.False(t, c.Available())

	err := c.Synthesize(context.Background(), "hello", "male_us", filepath.Join(t.TempDir(), "a.wav"))
	assert.ErrorIs(t, err, ErrPiperNotFound)
}

func TestSynthesize_EmptyText(t *testing.T) {
	err := New("").Synthesize(context.Background(), "  ", "", "a.wav")
	assert.Error(t, err)
}

func TestSynthesize_Piper(t *testing.T) {
	c := New("")
	if !c.Available() {
		t.Skip("piper not installed")
	}
	out := filepath.Join(t.TempDir(), "audio", "hello.wav")
	if err := c.Synthesize(context.Background(), "Hello world.", "male_us", out); err != nil {
		t.Skipf("piper voice model not available: %v", err)
	}
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}
