package batch

import (
	"strings"
	"time"

	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// UnitResult is the outcome of one unit: a single image or a pair.
// Exactly one of Result and Err is set.
type UnitResult struct {
	Inputs []string
	Result *types.ProcessingResult
	Err    error
}

// OK reports whether the unit succeeded
func (u UnitResult) OK() bool {
	return u.Err == nil && u.Result != nil
}

// Label names the unit for messages
func (u UnitResult) Label() string {
	return strings.Join(u.Inputs, " + ")
}

// Failure is one failed unit in a summary
type Failure struct {
	Inputs []string `json:"inputs"`
	Error  string   `json:"error"`
}

// Summary aggregates one run
type Summary struct {
	Discovered      int                   `json:"discovered"`
	Units           int                   `json:"units"`
	Succeeded       int                   `json:"succeeded"`
	Failed          int                   `json:"failed"`
	Skipped         int                   `json:"skipped"`
	PortraitsFound  int                   `json:"portraits_found"`
	LandscapesFound int                   `json:"landscapes_found"`
	PairsCombined   int                   `json:"pairs_combined"`
	PeopleHits      int                   `json:"people_hits"`
	PeopleFound     int                   `json:"people_found"`
	Duration        time.Duration         `json:"duration"`
	DryRun          bool                  `json:"dry_run"`
	Failures        []Failure             `json:"failures,omitempty"`
	Skips           []types.SkippedResult `json:"skips,omitempty"`
}

// SuccessRate returns the succeeded share of all units, in percent
func (s Summary) SuccessRate() float64 {
	if s.Units == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Units) * 100
}

// Summarize partitions unit results into success and failure counts
func Summarize(results []UnitResult, skipped []types.SkippedResult) Summary {
	s := Summary{
		Units:   len(results),
		Skipped: len(skipped),
		Skips:   skipped,
	}
	for _, r := range results {
		if !r.OK() {
			s.Failed++
			msg := "unknown error"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			s.Failures = append(s.Failures, Failure{Inputs: r.Inputs, Error: msg})
			continue
		}
		s.Succeeded++
		if r.Result.PeopleDetected {
			s.PeopleHits++
			s.PeopleFound += r.Result.PeopleCount
		}
		switch r.Result.Kind {
		case types.CombinedPortrait, types.CombinedLandscape:
			s.PairsCombined++
		}
	}
	return s
}
