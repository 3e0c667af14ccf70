package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chicogong/ytagents/pkg/storage"
)

// prepareInputs resolves every clip to a local path, downloading http(s)
// sources into tempDir. Clips that cannot be fetched are dropped.
func (e *Executor) prepareInputs(ctx context.Context, clips []Clip, tempDir string) ([]string, []float64) {
	var paths []string
	var durations []float64

	for i, clip := range clips {
		local, err := e.localize(ctx, clip.Source, tempDir, i)
		if err != nil {
			e.log.Warn("clip skipped", "source", clip.Source, "error", err)
			continue
		}
		paths = append(paths, local)
		durations = append(durations, clip.Duration)
	}
	return paths, durations
}

func (e *Executor) localize(ctx context.Context, source, tempDir string, index int) (string, error) {
	scheme, path, err := storage.ParseURI(source)
	if err != nil {
		// plain filesystem path
		if _, statErr := os.Stat(source); statErr != nil {
			return "", statErr
		}
		return filepath.Abs(source)
	}

	switch scheme {
	case "file":
		return path, nil
	case "http", "https":
		rc, err := storage.Open(ctx, &storage.Location{URL: source}, e.httpClient)
		if err != nil {
			return "", err
		}
		defer rc.Close()

		dest := filepath.Join(tempDir, fmt.Sprintf("clip-%03d%s", index, filepath.Ext(path)))
		f, err := os.Create(dest)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(f, rc); err != nil {
			f.Close()
			return "", fmt.Errorf("download %s: %w", source, err)
		}
		return dest, f.Close()
	default:
		return "", fmt.Errorf("unsupported clip scheme: %s", scheme)
	}
}
