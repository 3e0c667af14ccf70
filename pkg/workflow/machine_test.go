package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/store"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	return NewMachine(store.NewMemoryStore(), logger.Nop())
}

func payloadFor(step schemas.StepName) schemas.Payload {
	switch step {
	case schemas.StepResearch:
		return &schemas.ResearchData{KeyPoints: []string{"x"}}
	case schemas.StepScript:
		return &schemas.ScriptData{Body: "body"}
	case schemas.StepMetadata:
		return &schemas.MetadataData{Title: "t"}
	case schemas.StepVideo:
		return &schemas.VideoData{VideoID: "v1"}
	}
	return &schemas.UploadData{}
}

func completeAndApprove(t *testing.T, m *Machine, id string, steps ...schemas.StepName) {
	t.Helper()
	ctx := context.Background()
	for _, step := range steps {
		require.NoError(t, m.CompleteStep(ctx, id, step, payloadFor(step)))
		_, err := m.ApproveStep(ctx, id, step)
		require.NoError(t, err)
	}
}

func TestCreate_AllStepsPending(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()

	id, err := m.Create(ctx, "Cats")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	w, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, w.Steps, 5)
	for _, name := range schemas.StepOrder {
		assert.Equal(t, schemas.StepPending, w.Step(name).Status, name)
	}

	other, err := m.Create(ctx, "Cats")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestCreate_EmptyTopic(t *testing.T) {
	_, err := newMachine(t).Create(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestGetStep_NotFound(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()

	_, err := m.GetStep(ctx, "missing", schemas.StepResearch)
	assert.ErrorIs(t, err, ErrNotFound)

	id, _ := m.Create(ctx, "Cats")
	_, err = m.GetStep(ctx, id, schemas.StepName("voiceover"))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "step", nf.Kind)
}

func TestApproveStep_Scenario(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")

	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepResearch, &schemas.ResearchData{KeyPoints: []string{"x"}}))

	next, err := m.ApproveStep(ctx, id, schemas.StepResearch)
	require.NoError(t, err)
	assert.Equal(t, schemas.StepScript, next)

	_, err = m.ApproveStep(ctx, id, schemas.StepScript)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	s, err := m.GetStep(ctx, id, schemas.StepScript)
	require.NoError(t, err)
	assert.Equal(t, schemas.StepPending, s.Status)
}

func TestApproveStep_RequiresCompleted(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Machine, id string)
	}{
		{"pending", func(m *Machine, id string) {}},
		{"approved", func(m *Machine, id string) {
			_ = m.CompleteStep(context.Background(), id, schemas.StepResearch, payloadFor(schemas.StepResearch))
			_, _ = m.ApproveStep(context.Background(), id, schemas.StepResearch)
		}},
		{"rejected", func(m *Machine, id string) {
			_ = m.CompleteStep(context.Background(), id, schemas.StepResearch, payloadFor(schemas.StepResearch))
			_ = m.RejectStep(context.Background(), id, schemas.StepResearch)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(t)
			ctx := context.Background()
			id, _ := m.Create(ctx, "Cats")
			tt.setup(m, id)

			before, _ := m.GetStep(ctx, id, schemas.StepResearch)
			_, err := m.ApproveStep(ctx, id, schemas.StepResearch)

			var ite *InvalidTransitionError
			require.ErrorAs(t, err, &ite)
			assert.Equal(t, before.Status, ite.From)

			after, _ := m.GetStep(ctx, id, schemas.StepResearch)
			assert.Equal(t, before.Status, after.Status)
		})
	}
}

func TestRejectThenRegenerate(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")

	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepResearch, payloadFor(schemas.StepResearch)))
	require.NoError(t, m.RejectStep(ctx, id, schemas.StepResearch))

	err := m.RejectStep(ctx, id, schemas.StepResearch)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepResearch, &schemas.ResearchData{KeyPoints: []string{"y"}}))
	_, err = m.ApproveStep(ctx, id, schemas.StepResearch)
	require.NoError(t, err)

	s, _ := m.GetStep(ctx, id, schemas.StepResearch)
	assert.Equal(t, []string{"y"}, s.Data.(*schemas.ResearchData).KeyPoints)
	assert.NotNil(t, s.CompletedAt)
}

func TestCompleteStep_CascadesDownstream(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")
	completeAndApprove(t, m, id, schemas.StepResearch, schemas.StepScript, schemas.StepMetadata)

	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepScript, &schemas.ScriptData{Body: "v2"}))

	w, _ := m.Get(ctx, id)
	assert.Equal(t, schemas.StepApproved, w.Step(schemas.StepResearch).Status)
	assert.Equal(t, schemas.StepCompleted, w.Step(schemas.StepScript).Status)
	assert.Equal(t, schemas.StepPending, w.Step(schemas.StepMetadata).Status)
	assert.Nil(t, w.Step(schemas.StepMetadata).Data)
}

func TestCompleteStep_RejectsForeignPayload(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")

	err := m.CompleteStep(ctx, id, schemas.StepScript, &schemas.ResearchData{})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = m.CompleteStep(ctx, id, schemas.StepScript, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCompleteStep_Fallback(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")

	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepResearch, payloadFor(schemas.StepResearch), AsFallback("llm unreachable")))

	s, _ := m.GetStep(ctx, id, schemas.StepResearch)
	assert.True(t, s.Fallback)
	assert.Equal(t, "llm unreachable", s.Reason)
}

func TestFinalizeUpload_NamesFirstUnmetStep(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")

	completeAndApprove(t, m, id, schemas.StepResearch, schemas.StepScript)
	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepMetadata, payloadFor(schemas.StepMetadata)))
	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepVideo, payloadFor(schemas.StepVideo)))
	_, err := m.ApproveStep(ctx, id, schemas.StepVideo)
	require.NoError(t, err)

	err = m.FinalizeUpload(ctx, id, &schemas.UploadData{Published: true, ExternalID: "yt1"})

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schemas.StepMetadata, pe.Step)
	assert.Contains(t, err.Error(), "metadata")
	assert.True(t, errors.Is(err, ErrPrecondition))

	up, _ := m.GetStep(ctx, id, schemas.StepUpload)
	assert.Equal(t, schemas.StepPending, up.Status)
}

func TestFinalizeUpload_ClosesWorkflow(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")
	completeAndApprove(t, m, id, schemas.UploadGates...)

	require.NoError(t, m.CheckUploadReady(ctx, id))
	require.NoError(t, m.FinalizeUpload(ctx, id, &schemas.UploadData{Published: true, ExternalID: "yt1"}))

	up, _ := m.GetStep(ctx, id, schemas.StepUpload)
	assert.Equal(t, schemas.StepUploaded, up.Status)
	assert.Equal(t, "yt1", up.Data.(*schemas.UploadData).ExternalID)

	assert.ErrorIs(t, m.CompleteStep(ctx, id, schemas.StepResearch, payloadFor(schemas.StepResearch)), ErrWorkflowClosed)
	assert.ErrorIs(t, m.FinalizeUpload(ctx, id, &schemas.UploadData{}), ErrWorkflowClosed)
	assert.ErrorIs(t, m.CheckUploadReady(ctx, id), ErrWorkflowClosed)
}

func TestRecordFailure_KeepsStatus(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()
	id, _ := m.Create(ctx, "Cats")

	require.NoError(t, m.RecordFailure(ctx, id, schemas.StepVideo, "ffmpeg not found"))

	s, _ := m.GetStep(ctx, id, schemas.StepVideo)
	assert.Equal(t, schemas.StepPending, s.Status)
	assert.Equal(t, "ffmpeg not found", s.LastError)

	require.NoError(t, m.CompleteStep(ctx, id, schemas.StepResearch, payloadFor(schemas.StepResearch)))
	s, _ = m.GetStep(ctx, id, schemas.StepResearch)
	assert.Empty(t, s.LastError)
}
