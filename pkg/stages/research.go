package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// ResearchStage gathers facts about the topic
type ResearchStage struct {
	LLM LLM
	Log *logger.Logger
}

func (s *ResearchStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageResearch,
		Description: "collect key points, timeline and facts",
		Budget:      BudgetLLM,
	}
}

const researchPrompt = `Research the YouTube video topic "%s".
Return a JSON object with these fields:
  "key_points": 5-7 short strings,
  "timeline": [{"year": "...", "event": "..."}],
  "important_facts": [{"fact": "...", "significance": "..."}],
  "misconceptions": strings,
  "interesting_angles": strings,
  "statistics": strings`

func (s *ResearchStage) Run(ctx context.Context, st *State) schemas.StageResult {
	var data schemas.ResearchData
	err := s.LLM.ExtractJSON(ctx, fmt.Sprintf(researchPrompt, st.Topic), &data)
	data.Topic = st.Topic
	if err == nil && len(data.KeyPoints) == 0 {
		err = fmt.Errorf("response had no key points")
	}
	if err != nil {
		s.Log.Warn("research fallback", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(FallbackResearch(st.Topic), err.Error())
	}
	return schemas.Ok(&data)
}

// FallbackResearch derives generic key points from the topic
func FallbackResearch(topic string) *schemas.ResearchData {
	t := strings.TrimSpace(topic)
	return &schemas.ResearchData{
		Topic: t,
		KeyPoints: []string{
			"What " + t + " is",
			"How " + t + " began",
			"Why " + t + " matters today",
			"Common questions about " + t,
		},
	}
}
