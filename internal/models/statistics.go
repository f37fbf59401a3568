package models

// Score weights per contribution type. PR merges weigh the most.
const (
	CommitWeight   = 1
	IssueWeight    = 2
	ReviewWeight   = 5
	PROpenedWeight = 5
	PRMergedWeight = 8
)

// ActivityStatistics is an immutable set of contribution counts
type ActivityStatistics struct {
	Commits  int `json:"commits" db:"commit_count"`
	Issues   int `json:"issues" db:"issue_count"`
	PROpened int `json:"pr_opened" db:"pr_opened_count"`
	PRMerged int `json:"pr_merged" db:"pr_merged_count"`
	Reviews  int `json:"reviews" db:"review_count"`
}

// EmptyStatistics returns the zero value.
func EmptyStatistics() ActivityStatistics {
	return ActivityStatistics{}
}

// Merge returns the field-wise sum of s and other.
func (s ActivityStatistics) Merge(other ActivityStatistics) ActivityStatistics {
	return ActivityStatistics{
		Commits:  s.Commits + other.Commits,
		Issues:   s.Issues + other.Issues,
		PROpened: s.PROpened + other.PROpened,
		PRMerged: s.PRMerged + other.PRMerged,
		Reviews:  s.Reviews + other.Reviews,
	}
}

// Diff returns s minus previous, field by field. Results may be negative
// when upstream counts shrink (deleted repositories, hidden contributions).
func (s ActivityStatistics) Diff(previous ActivityStatistics) ActivityStatistics {
	return ActivityStatistics{
		Commits:  s.Commits - previous.Commits,
		Issues:   s.Issues - previous.Issues,
		PROpened: s.PROpened - previous.PROpened,
		PRMerged: s.PRMerged - previous.PRMerged,
		Reviews:  s.Reviews - previous.Reviews,
	}
}

// IsEmpty reports whether every count is zero.
func (s ActivityStatistics) IsEmpty() bool {
	return s == ActivityStatistics{}
}

// HasActivity reports whether any count is positive.
func (s ActivityStatistics) HasActivity() bool {
	return s.Commits > 0 || s.Issues > 0 || s.PROpened > 0 || s.PRMerged > 0 || s.Reviews > 0
}

// TotalActivityCount sums all counts without weights.
func (s ActivityStatistics) TotalActivityCount() int {
	return s.Commits + s.Issues + s.PROpened + s.PRMerged + s.Reviews
}

// Score applies the contribution weights. It fails when a count is negative.
func (s ActivityStatistics) Score() (Score, error) {
	raw := s.Commits*CommitWeight +
		s.Issues*IssueWeight +
		s.Reviews*ReviewWeight +
		s.PROpened*PROpenedWeight +
		s.PRMerged*PRMergedWeight
	if s.Commits < 0 || s.Issues < 0 || s.PROpened < 0 || s.PRMerged < 0 || s.Reviews < 0 {
		return 0, &InvalidValueError{Field: "activity statistics", Value: raw}
	}
	return NewScore(raw)
}
