// Package stages wraps each external collaborator of the content pipeline
// behind a uniform contract: a stage reads what earlier stages produced from
// a State and returns a schemas.StageResult. Collaborator failures never
// escape as errors; they become Fallback results carrying a deterministic
// placeholder payload.
package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// Budget selects which configured timeout bounds a stage
type Budget string

const (
	BudgetLLM   Budget = "llm"
	BudgetTTS   Budget = "tts"
	BudgetMedia Budget = "media"
	BudgetHTTP  Budget = "http"
)

// Descriptor describes a stage
type Descriptor struct {
	Name        schemas.StageName
	Description string

	// DependsOn lists the stages whose payloads Run reads
	DependsOn []schemas.StageName

	Budget Budget
}

// Executor is the interface every stage implements
type Executor interface {
	Describe() Descriptor

	// Run must return Ok or Fallback whenever a well-typed payload can be
	// produced, and Failed only when it cannot
	Run(ctx context.Context, st *State) schemas.StageResult
}

// State threads payloads between the stages of one workflow
type State struct {
	WorkflowID string
	Topic      string

	// OutputDir receives intermediate artifacts (audio, subtitles, clips, thumbnails)
	OutputDir string

	// TopTopics from earlier analytics bias trend selection
	TopTopics []string

	mu       sync.RWMutex
	payloads map[schemas.StageName]schemas.Payload
}

func NewState(workflowID, topic, outputDir string) *State {
	if outputDir == "" {
		outputDir = "./output"
	}
	return &State{
		WorkflowID: workflowID,
		Topic:      topic,
		OutputDir:  outputDir,
		payloads:   make(map[schemas.StageName]schemas.Payload),
	}
}

// Put records the payload under the stage that owns it
func (s *State) Put(p schemas.Payload) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[p.Stage()] = p
}

// Get returns the payload produced by stage, or nil
func (s *State) Get(stage schemas.StageName) schemas.Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payloads[stage]
}

// Has reports whether stage produced a payload
func (s *State) Has(stage schemas.StageName) bool { return s.Get(stage) != nil }

// ArtifactPath returns OutputDir/kind/<workflow id><ext>
func (s *State) ArtifactPath(kind, ext string) string {
	name := s.WorkflowID
	if name == "" {
		name = "run"
	}
	return filepath.Join(s.OutputDir, kind, name+ext)
}

func (s *State) Research() *schemas.ResearchData {
	p, _ := s.Get(schemas.StageResearch).(*schemas.ResearchData)
	return p
}

func (s *State) Script() *schemas.ScriptData {
	p, _ := s.Get(schemas.StageScript).(*schemas.ScriptData)
	return p
}

func (s *State) Voiceover() *schemas.VoiceoverData {
	p, _ := s.Get(schemas.StageVoiceover).(*schemas.VoiceoverData)
	return p
}

func (s *State) Subtitles() *schemas.SubtitleData {
	p, _ := s.Get(schemas.StageSubtitles).(*schemas.SubtitleData)
	return p
}

func (s *State) Visuals() *schemas.VisualPlan {
	p, _ := s.Get(schemas.StageVisuals).(*schemas.VisualPlan)
	return p
}

func (s *State) Video() *schemas.VideoData {
	p, _ := s.Get(schemas.StageAssembly).(*schemas.VideoData)
	return p
}

func (s *State) Metadata() *schemas.MetadataData {
	p, _ := s.Get(schemas.StageMetadata).(*schemas.MetadataData)
	return p
}

func (s *State) Thumbnail() *schemas.ThumbnailData {
	p, _ := s.Get(schemas.StageThumbnail).(*schemas.ThumbnailData)
	return p
}

func (s *State) Upload() *schemas.UploadData {
	p, _ := s.Get(schemas.StageUpload).(*schemas.UploadData)
	return p
}

// missing builds the Failed result for an absent dependency
func missing(stage, dep schemas.StageName) schemas.StageResult {
	return schemas.Failed(stage, fmt.Sprintf("missing %s output", dep))
}
