package schemas

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepName identifies one gated step of a workflow
type StepName string

const (
	StepResearch StepName = "research"
	StepScript   StepName = "script"
	StepMetadata StepName = "metadata"
	StepVideo    StepName = "video"
	StepUpload   StepName = "upload"
)

// StepOrder is the fixed dependency order of workflow steps
var StepOrder = []StepName{StepResearch, StepScript, StepMetadata, StepVideo, StepUpload}

// UploadGates are the steps that must be approved before upload
var UploadGates = []StepName{StepResearch, StepScript, StepMetadata, StepVideo}

// ParseStepName validates a step name from external input
func ParseStepName(s string) (StepName, error) {
	for _, name := range StepOrder {
		if string(name) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown step %q", s)
}

// Index returns the position of the step in StepOrder, or -1
func (n StepName) Index() int {
	for i, name := range StepOrder {
		if name == n {
			return i
		}
	}
	return -1
}

// Next returns the step after n, or "" when n is last
func (n StepName) Next() StepName {
	i := n.Index()
	if i < 0 || i == len(StepOrder)-1 {
		return ""
	}
	return StepOrder[i+1]
}

// Stage returns the pipeline stage whose payload this step stores
func (n StepName) Stage() StageName {
	switch n {
	case StepResearch:
		return StageResearch
	case StepScript:
		return StageScript
	case StepMetadata:
		return StageMetadata
	case StepVideo:
		return StageAssembly
	case StepUpload:
		return StageUpload
	}
	return ""
}

// StepStatus represents the approval state of a step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepUploaded  StepStatus = "uploaded"
)

// StepState is the tracked state of one workflow step
type StepState struct {
	Name        StepName   `json:"name"`
	Status      StepStatus `json:"status"`
	Data        Payload    `json:"data"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Fallback marks Data as a placeholder produced after a collaborator failure
	Fallback bool   `json:"fallback,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// LastError is the diagnostic of the most recent failed attempt
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnmarshalJSON decodes Data into the payload variant owned by the step
func (s *StepState) UnmarshalJSON(b []byte) error {
	type alias StepState
	aux := struct {
		*alias
		Data json.RawMessage `json:"data"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	s.Data = nil
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	payload, err := DecodePayload(s.Name.Stage(), aux.Data)
	if err != nil {
		return fmt.Errorf("step %s: %w", s.Name, err)
	}
	s.Data = payload
	return nil
}
