package autoscan

import "fmt"

// Phase names one stage of the reconnaissance pipeline.
type Phase string

const (
	PhaseSubdomainEnum    Phase = "subdomain_enum"
	PhaseHTTPProbe        Phase = "http_probe"
	PhaseContentDiscovery Phase = "content_discovery"
	PhasePortScan         Phase = "port_scan"
	PhaseVulnScan         Phase = "vuln_scan"
)

func (p Phase) String() string { return string(p) }

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	for _, known := range AllPhases() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// pipeline groups phases into ordered stages. Phases inside one stage depend only
// on earlier stages, never on each other, and may run concurrently.
var pipeline = [][]Phase{
	{PhaseSubdomainEnum},
	{PhaseHTTPProbe},
	{PhaseContentDiscovery, PhasePortScan},
	{PhaseVulnScan},
}

// Stages returns a copy of the pipeline in execution order.
func Stages() [][]Phase {
	out := make([][]Phase, len(pipeline))
	for i, stage := range pipeline {
		out[i] = append([]Phase(nil), stage...)
	}
	return out
}

// AllPhases returns every phase in pipeline order.
func AllPhases() []Phase {
	var out []Phase
	for _, stage := range pipeline {
		out = append(out, stage...)
	}
	return out
}

// OutcomeKind classifies the result of one phase call.
type OutcomeKind int

const (
	// OutcomeSuccess advances the pipeline and records the phase as completed.
	OutcomeSuccess OutcomeKind = iota
	// OutcomePartialFailure advances the pipeline and records the phase as failed.
	OutcomePartialFailure
	// OutcomeFatalFailure aborts the job.
	OutcomeFatalFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial_failure"
	case OutcomeFatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// PhaseOutcome is the only shape in which phase results reach the orchestrator.
// Collaborator errors are folded into it before any control decision is made.
type PhaseOutcome struct {
	Phase   Phase
	Kind    OutcomeKind
	Summary Payload
	Err     error
}

// Success builds a successful outcome.
func Success(p Phase, summary Payload) PhaseOutcome {
	return PhaseOutcome{Phase: p, Kind: OutcomeSuccess, Summary: summary}
}

// PartialFailure builds a recoverable failure outcome.
func PartialFailure(p Phase, summary Payload, err error) PhaseOutcome {
	return PhaseOutcome{Phase: p, Kind: OutcomePartialFailure, Summary: summary, Err: err}
}

// FatalFailure builds an outcome that aborts the job.
func FatalFailure(p Phase, err error) PhaseOutcome {
	return PhaseOutcome{Phase: p, Kind: OutcomeFatalFailure, Err: err}
}

// Classify converts a collaborator return pair into an outcome. A nil error is
// success, an error wrapping ErrFatal is fatal and anything else is partial.
func Classify(p Phase, summary Payload, err error) PhaseOutcome {
	switch {
	case err == nil:
		return Success(p, summary)
	case IsFatal(err):
		return FatalFailure(p, err)
	default:
		return PartialFailure(p, summary, err)
	}
}
