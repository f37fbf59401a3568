// Package activity decides how a user's cumulative contribution totals are
// computed for one cycle and runs that computation against GitHub.
package activity

import (
	"fmt"

	"github.com/rohankatakam/gitranker/internal/models"
)

// Kind is the update strategy chosen for one user in one cycle
type Kind int

const (
	// Full rescans every year from the join date to now.
	Full Kind = iota
	// Incremental fetches the current year and adds it to a baseline.
	Incremental
)

func (k Kind) String() string {
	switch k {
	case Full:
		return "full"
	case Incremental:
		return "incremental"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Plan is the resolved strategy. Baseline is set only for Incremental.
type Plan struct {
	Kind     Kind
	Year     int
	Baseline *models.ActivityLog
}

// Select picks Incremental when baseline anchors year, Full otherwise.
// The choice is made once per user per cycle.
func Select(baseline *models.ActivityLog, year int) Plan {
	if baseline.IsBaselineFor(year) {
		return Plan{Kind: Incremental, Year: year, Baseline: baseline}
	}
	return Plan{Kind: Full, Year: year}
}

// MergeIncremental adds the current year's counts to the baseline totals.
// PRMerged comes from an all-time search, so current replaces it.
func MergeIncremental(baseline, current models.ActivityStatistics) models.ActivityStatistics {
	merged := baseline.Merge(current)
	merged.PRMerged = current.PRMerged
	return merged
}
