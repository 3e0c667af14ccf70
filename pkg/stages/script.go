package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// ScriptStage writes the narration and splits it into scenes
type ScriptStage struct {
	LLM   LLM
	Style string
	Log   *logger.Logger
}

func (s *ScriptStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageScript,
		Description: "write hook, body, call to action and scenes",
		DependsOn:   []schemas.StageName{schemas.StageResearch},
		Budget:      BudgetLLM,
	}
}

// Sampling temperatures per part; the hook is the most creative
const (
	hookTemperature = 0.9
	bodyTemperature = 0.8
	ctaTemperature  = 0.7
)

const hookPrompt = `Write a 2-3 sentence attention-grabbing HOOK for a YouTube video about: %s
It must create curiosity, stop someone from scrolling and take 3-5 seconds to read.
Respond with the hook text only.`

const bodyPrompt = `Write the MAIN BODY of a %s YouTube video script about: %s
About 300 words, conversational, as if narrating to camera.
Key points to cover:
%s
Respond with the narration text only.`

const ctaPrompt = `Write a short CALL-TO-ACTION for the end of a YouTube video about: %s
Encourage likes, subscriptions and comments, and give a reason to come back.
Respond with the call to action text only.`

const scenesPrompt = `Break this YouTube narration about "%s" into 5-7 scenes.
Narration:
%s
Return a JSON object {"scenes": [{"number", "title", "duration_seconds", "narration", "visual_type", "visual_description"}]}`

func (s *ScriptStage) Run(ctx context.Context, st *State) schemas.StageResult {
	research := st.Research()
	if research == nil {
		return missing(schemas.StageScript, schemas.StageResearch)
	}
	style := s.Style
	if style == "" {
		style = "cinematic"
	}
	fallback := FallbackScript(st.Topic, research)

	body, err := s.write(ctx, fmt.Sprintf(bodyPrompt, style, st.Topic, bullets(research.KeyPoints, 5)), bodyTemperature)
	if err != nil {
		s.Log.Warn("script fallback", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(fallback, err.Error())
	}

	data := schemas.ScriptData{Topic: st.Topic, Style: style, Body: body}

	// hook and call to action fall back to generic lines
	var reasons []string
	if data.Hook, err = s.write(ctx, fmt.Sprintf(hookPrompt, st.Topic), hookTemperature); err != nil {
		data.Hook = fallback.Hook
		reasons = append(reasons, "hook: "+err.Error())
	}
	if data.CTA, err = s.write(ctx, fmt.Sprintf(ctaPrompt, st.Topic), ctaTemperature); err != nil {
		data.CTA = fallback.CTA
		reasons = append(reasons, "cta: "+err.Error())
	}

	var scenes struct {
		Scenes []schemas.Scene `json:"scenes"`
	}
	if err := s.LLM.ExtractJSON(ctx, fmt.Sprintf(scenesPrompt, st.Topic, body), &scenes); err != nil {
		s.Log.Warn("scene split failed, using one scene", "workflow_id", st.WorkflowID, "error", err)
	}
	data.Scenes = scenes.Scenes
	normalizeScenes(&data)

	if len(reasons) > 0 {
		s.Log.Warn("script partly generic", "workflow_id", st.WorkflowID, "reasons", reasons)
		return schemas.Fallback(&data, strings.Join(reasons, "; "))
	}
	return schemas.Ok(&data)
}

func (s *ScriptStage) write(ctx context.Context, prompt string, temperature float64) (string, error) {
	text, err := s.LLM.Generate(ctx, prompt, temperature)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

// FallbackScript builds a single-scene script from the research key points
func FallbackScript(topic string, research *schemas.ResearchData) *schemas.ScriptData {
	var points []string
	if research != nil {
		points = research.KeyPoints
	}
	body := strings.Join(points, ". ")
	if body != "" && !strings.HasSuffix(body, ".") {
		body += "."
	}
	if body == "" {
		body = "Today we look at " + topic + "."
	}
	return &schemas.ScriptData{
		Topic: topic,
		Style: "educational",
		Hook:  "Here is what you need to know about " + topic + ".",
		Body:  body,
		CTA:   "Subscribe for more videos like this.",
		Scenes: []schemas.Scene{{
			Number:            1,
			Title:             topic,
			DurationSeconds:   30,
			Narration:         body,
			VisualType:        "stock",
			VisualDescription: topic,
		}},
	}
}

func normalizeScenes(data *schemas.ScriptData) {
	if len(data.Scenes) == 0 {
		data.Scenes = FallbackScript(data.Topic, nil).Scenes
		data.Scenes[0].Narration = data.Body
	}
	for i := range data.Scenes {
		sc := &data.Scenes[i]
		sc.Number = i + 1
		if sc.DurationSeconds <= 0 {
			sc.DurationSeconds = 30
		}
		if sc.VisualDescription == "" {
			sc.VisualDescription = sc.Title
		}
	}
}

func bullets(items []string, max int) string {
	if len(items) > max {
		items = items[:max]
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return b.String()
}
