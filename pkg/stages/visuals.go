package stages

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chicogong/ytagents/pkg/clients/stock"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// VisualStage plans the visuals of every scene and fetches stock footage
type VisualStage struct {
	LLM   LLM
	Stock StockSource
	Log   *logger.Logger
}

func (s *VisualStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageVisuals,
		Description: "plan scene visuals and download stock clips",
		DependsOn:   []schemas.StageName{schemas.StageScript},
		Budget:      BudgetLLM,
	}
}

const visualPrompt = `Plan the visuals for these YouTube video scenes:
%s
Return a JSON object {"scenes": [...]} with one item per scene:
  "scene_number", "visual_type" (stock|animation|text), "visual_description",
  "search_keywords" (3-5 words for stock footage search), "motion_description",
  "color_scheme", "style" (photography|animation|3d|illustrated|cinematic), "duration_seconds"`

func (s *VisualStage) Run(ctx context.Context, st *State) schemas.StageResult {
	script := st.Script()
	if script == nil {
		return missing(schemas.StageVisuals, schemas.StageScript)
	}

	var plan schemas.VisualPlan
	var reason string
	if err := s.LLM.ExtractJSON(ctx, fmt.Sprintf(visualPrompt, describeScenes(script.Scenes)), &plan); err != nil || len(plan.Scenes) == 0 {
		if err == nil {
			err = errors.New("response had no scenes")
		}
		s.Log.Warn("visual plan fallback", "workflow_id", st.WorkflowID, "error", err)
		reason = err.Error()
		plan = *FallbackVisuals(script)
	}
	alignVisuals(&plan, script)

	fetched := s.fetchAssets(ctx, st, &plan)
	s.Log.Info("visuals planned", "workflow_id", st.WorkflowID, "scenes", len(plan.Scenes), "clips", fetched)

	if reason != "" {
		return schemas.Fallback(&plan, reason)
	}
	return schemas.Ok(&plan)
}

// fetchAssets downloads one clip per scene; missing clips are tolerated
func (s *VisualStage) fetchAssets(ctx context.Context, st *State, plan *schemas.VisualPlan) int {
	if s.Stock == nil {
		return 0
	}
	fetched := 0
	for i := range plan.Scenes {
		sc := &plan.Scenes[i]
		clip, err := s.Stock.Search(ctx, stock.Query(sc.SearchKeywords, st.Topic))
		if errors.Is(err, stock.ErrNoProvider) {
			s.Log.Debug("stock footage disabled", "workflow_id", st.WorkflowID)
			return fetched
		}
		if err != nil {
			s.Log.Warn("no stock clip for scene", "workflow_id", st.WorkflowID, "scene", sc.SceneNumber, "error", err)
			continue
		}
		dest := filepath.Join(st.OutputDir, "clips", fmt.Sprintf("%s-%02d.mp4", st.WorkflowID, sc.SceneNumber))
		path, err := s.Stock.Download(ctx, clip, dest)
		if err != nil {
			s.Log.Warn("stock clip download failed", "workflow_id", st.WorkflowID, "scene", sc.SceneNumber, "error", err)
			continue
		}
		sc.AssetPath = path
		fetched++
	}
	return fetched
}

// FallbackVisuals uses each scene's own description as the search query
func FallbackVisuals(script *schemas.ScriptData) *schemas.VisualPlan {
	plan := &schemas.VisualPlan{}
	for _, sc := range script.Scenes {
		plan.Scenes = append(plan.Scenes, schemas.SceneVisual{
			SceneNumber:       sc.Number,
			VisualType:        "stock",
			VisualDescription: sc.VisualDescription,
			SearchKeywords:    limit(strings.Fields(sc.VisualDescription), 5),
			Style:             "cinematic",
			DurationSeconds:   sc.DurationSeconds,
		})
	}
	return plan
}

// alignVisuals fills numbers and durations from the script scenes
func alignVisuals(plan *schemas.VisualPlan, script *schemas.ScriptData) {
	for i := range plan.Scenes {
		v := &plan.Scenes[i]
		if i < len(script.Scenes) {
			if v.SceneNumber == 0 {
				v.SceneNumber = script.Scenes[i].Number
			}
			if v.DurationSeconds <= 0 {
				v.DurationSeconds = script.Scenes[i].DurationSeconds
			}
		}
		if v.SceneNumber == 0 {
			v.SceneNumber = i + 1
		}
		if v.DurationSeconds <= 0 {
			v.DurationSeconds = 30
		}
	}
}

func describeScenes(scenes []schemas.Scene) string {
	var b strings.Builder
	for _, sc := range scenes {
		fmt.Fprintf(&b, "%d. %s: %s\n", sc.Number, sc.Title, sc.VisualDescription)
	}
	return b.String()
}
