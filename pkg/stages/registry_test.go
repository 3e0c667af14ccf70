package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&ResearchStage{Log: logger.Nop()})
	r.Register(&ScriptStage{Log: logger.Nop()})
	r.Register(&ResearchStage{Log: logger.Nop()})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, schemas.StageResearch, list[0].Describe().Name)
	assert.Equal(t, schemas.StageScript, list[1].Describe().Name)

	assert.True(t, r.Has(schemas.StageScript))
	_, err := r.Get(schemas.StageUpload)
	assert.Error(t, err)
}

func TestState(t *testing.T) {
	st := NewState("", "Cats", "")
	assert.Equal(t, "./output", st.OutputDir)
	assert.Nil(t, st.Research())

	st.Put(nil)
	st.Put(FallbackResearch("Cats"))
	assert.True(t, st.Has(schemas.StageResearch))
	assert.Equal(t, "Cats", st.Research().Topic)
	assert.Contains(t, st.ArtifactPath("audio", ".wav"), "run.wav")
}
