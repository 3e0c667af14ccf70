package stages

import (
	"context"
	"regexp"
	"strings"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// ThumbnailStage renders the title card
type ThumbnailStage struct {
	Renderer ThumbnailRenderer
	Log      *logger.Logger
}

func (s *ThumbnailStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageThumbnail,
		Description: "render the thumbnail title card",
		DependsOn:   []schemas.StageName{schemas.StageMetadata, schemas.StageAssembly},
		Budget:      BudgetMedia,
	}
}

func (s *ThumbnailStage) Run(ctx context.Context, st *State) schemas.StageResult {
	text := st.Topic
	if md := st.Metadata(); md != nil {
		text = ThumbnailText(md)
	}

	path := st.ArtifactPath("thumbnails", ".png")
	if s.Renderer == nil {
		return schemas.Fallback(&schemas.ThumbnailData{Text: text}, "no thumbnail renderer")
	}
	if err := s.Renderer.RenderFile(text, path); err != nil {
		s.Log.Warn("thumbnail fallback", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(&schemas.ThumbnailData{Text: text}, err.Error())
	}
	return schemas.Ok(&schemas.ThumbnailData{Path: path, Text: text})
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// ThumbnailText picks the first line of the suggested text, else the title
func ThumbnailText(md *schemas.MetadataData) string {
	for _, line := range strings.Split(md.ThumbnailText, "\n") {
		line = strings.Trim(listMarker.ReplaceAllString(line, ""), `"' `)
		if line != "" {
			return line
		}
	}
	return md.Title
}
