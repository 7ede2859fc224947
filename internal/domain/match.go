package domain

import "math"

// MatchOutcome distinguishes why a recognition did or did not match.
type MatchOutcome string

const (
	MatchFound     MatchOutcome = "match_found"
	NoCandidates   MatchOutcome = "no_candidates"
	BelowThreshold MatchOutcome = "below_threshold"
)

// MatchResult representa o resultado de uma busca 1:N
type MatchResult struct {
	Outcome    MatchOutcome
	Identity   *EnrolledIdentity
	Distance   float64
	Candidates int
	Skipped    int
}

func (r MatchResult) Matched() bool {
	return r.Outcome == MatchFound && r.Identity != nil
}

// NoCandidatesResult is returned when nothing is enrolled.
func NoCandidatesResult() MatchResult {
	return MatchResult{
		Outcome:  NoCandidates,
		Distance: math.Inf(1),
	}
}
