package domain

import "time"

// Outcome is the per-resource result of one pipeline pass.
type Outcome string

// Resource outcomes.
const (
	OutcomeProcessed Outcome = "processed" // every engine produced a computation
	OutcomeSkipped   Outcome = "skipped"   // fingerprint unchanged
	OutcomeDeferred  Outcome = "deferred"  // at least one engine asked to retry later
	OutcomeFailed    Outcome = "failed"    // an engine failed permanently
)

// RunSummary reports what one orchestrator run did.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Discovered int       `json:"discovered"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Deferred   int       `json:"deferred"`
	Failed     int       `json:"failed"`

	Resources []ResourceOutcome `json:"resources,omitempty"`
}

// ResourceOutcome is what happened to one resource during a run.
type ResourceOutcome struct {
	Location string  `json:"location"`
	Outcome  Outcome `json:"outcome"`
}

// Add counts one resource outcome.
func (s *RunSummary) Add(o Outcome) {
	s.Discovered++
	switch o {
	case OutcomeProcessed:
		s.Processed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDeferred:
		s.Deferred++
	case OutcomeFailed:
		s.Failed++
	}
}

// Record counts the outcome and keeps it against the resource location.
func (s *RunSummary) Record(location string, o Outcome) {
	s.Add(o)
	s.Resources = append(s.Resources, ResourceOutcome{Location: location, Outcome: o})
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
