package schemas

import "time"

// Outcome tags a StageResult
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// StageResult is what a stage executor hands back to the orchestrator.
// Ok carries a real payload, Fallback a deterministic placeholder plus the reason,
// Failed only the reason.
type StageResult struct {
	Stage   StageName     `json:"stage"`
	Outcome Outcome       `json:"outcome"`
	Payload Payload       `json:"payload,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

func Ok(p Payload) StageResult {
	return StageResult{Stage: p.Stage(), Outcome: OutcomeOK, Payload: p}
}

func Fallback(p Payload, reason string) StageResult {
	return StageResult{Stage: p.Stage(), Outcome: OutcomeFallback, Payload: p, Reason: reason}
}

func Failed(stage StageName, reason string) StageResult {
	return StageResult{Stage: stage, Outcome: OutcomeFailed, Reason: reason}
}

// Succeeded reports whether the payload is real data
func (r StageResult) Succeeded() bool { return r.Outcome == OutcomeOK }

// Usable reports whether downstream stages can consume the payload
func (r StageResult) Usable() bool { return r.Payload != nil && r.Outcome != OutcomeFailed }
