package github

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/gitranker/internal/models"
)

// RateLimitInfo is the GraphQL rateLimit block
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Cost      int       `json:"cost"`
}

// YearContributions holds one contributionsCollection
type YearContributions struct {
	Commits  int `json:"totalCommitContributions"`
	Issues   int `json:"totalIssueContributions"`
	PROpened int `json:"totalPullRequestContributions"`
	Reviews  int `json:"totalPullRequestReviewContributions"`
}

// ActivityResponse aggregates one or more contribution query responses
type ActivityResponse struct {
	RateLimit *RateLimitInfo
	MergedPRs int
	// HasMergedPRs distinguishes a zero count from an absent block.
	HasMergedPRs bool
	Years        map[int]YearContributions
	// TotalCost sums rateLimit.cost over every merged response.
	TotalCost int
}

// UserInfo is the profile metadata needed to register a user
type UserInfo struct {
	NodeID     string    `json:"id"`
	DatabaseID int64     `json:"databaseId"`
	CreatedAt  time.Time `json:"createdAt"`
	Login      string    `json:"login"`
	AvatarURL  string    `json:"avatarUrl"`
}

// DecodeActivity parses the data object of a contribution query.
func DecodeActivity(data json.RawMessage) (*ActivityResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode activity data: %w", err)
	}

	resp := &ActivityResponse{Years: make(map[int]YearContributions)}
	for key, raw := range fields {
		switch {
		case key == "rateLimit":
			var rl RateLimitInfo
			if err := json.Unmarshal(raw, &rl); err != nil {
				return nil, fmt.Errorf("decode rateLimit: %w", err)
			}
			resp.RateLimit = &rl
			resp.TotalCost = rl.Cost
		case key == "mergedPRs":
			var search struct {
				IssueCount int `json:"issueCount"`
			}
			if err := json.Unmarshal(raw, &search); err != nil {
				return nil, fmt.Errorf("decode mergedPRs: %w", err)
			}
			resp.MergedPRs = search.IssueCount
			resp.HasMergedPRs = true
		case strings.HasPrefix(key, "year"):
			year, err := strconv.Atoi(strings.TrimPrefix(key, "year"))
			if err != nil {
				continue
			}
			if string(raw) == "null" {
				// user resolved to null; the errors array explains why
				continue
			}
			var user struct {
				Collection YearContributions `json:"contributionsCollection"`
			}
			if err := json.Unmarshal(raw, &user); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			resp.Years[year] = user.Collection
		}
	}
	return resp, nil
}

// Merge folds other into r. Costs are summed and the lowest remaining quota
// wins, since it was observed last on a shared token.
func (r *ActivityResponse) Merge(other *ActivityResponse) {
	if other == nil {
		return
	}
	if r.Years == nil {
		r.Years = make(map[int]YearContributions)
	}
	for year, c := range other.Years {
		r.Years[year] = c
	}
	if other.HasMergedPRs {
		r.MergedPRs = other.MergedPRs
		r.HasMergedPRs = true
	}
	r.TotalCost += other.TotalCost
	if other.RateLimit != nil {
		if r.RateLimit == nil || other.RateLimit.Remaining < r.RateLimit.Remaining {
			rl := *other.RateLimit
			r.RateLimit = &rl
		}
	}
}

// SortedYears lists the years present, ascending.
func (r *ActivityResponse) SortedYears() []int {
	years := make([]int, 0, len(r.Years))
	for y := range r.Years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Statistics sums every year and adds the all-time merged PR count.
func (r *ActivityResponse) Statistics() models.ActivityStatistics {
	stats := r.StatisticsUntilYear(int(^uint(0) >> 1))
	stats.PRMerged = r.MergedPRs
	return stats
}

// StatisticsUntilYear sums the years up to and including year. The merged PR
// count is all-time only, so it is left at zero.
func (r *ActivityResponse) StatisticsUntilYear(year int) models.ActivityStatistics {
	var stats models.ActivityStatistics
	for y, c := range r.Years {
		if y > year {
			continue
		}
		stats = stats.Merge(models.ActivityStatistics{
			Commits:  c.Commits,
			Issues:   c.Issues,
			PROpened: c.PROpened,
			Reviews:  c.Reviews,
		})
	}
	return stats
}
