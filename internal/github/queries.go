package github

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// GitHub logins are alphanumeric with single inner hyphens, at most 39 chars.
var loginPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

// ValidLogin reports whether username is a syntactically valid GitHub login.
func ValidLogin(username string) bool {
	return len(username) <= 39 && loginPattern.MatchString(username)
}

const rateLimitBlock = `
  rateLimit {
    limit
    remaining
    resetAt
    cost
  }`

func mergedPRBlock(username string) string {
	return fmt.Sprintf(`
  mergedPRs: search(query: "author:%s type:pr is:merged", type: ISSUE, first: 1) {
    issueCount
  }`, username)
}

func yearBlock(username string, year int, from, to time.Time) string {
	return fmt.Sprintf(`
  year%d: user(login: "%s") {
    contributionsCollection(from: "%s", to: "%s") {
      totalCommitContributions
      totalIssueContributions
      totalPullRequestContributions
      totalPullRequestReviewContributions
    }
  }`, year, username, from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func wrapQuery(blocks ...string) string {
	return "{" + strings.Join(blocks, "") + "\n}"
}

// MergedPRQuery fetches the all-time merged pull request count.
func MergedPRQuery(username string) string {
	return wrapQuery(rateLimitBlock, mergedPRBlock(username))
}

// YearRange returns the contribution window queried for year. The join year
// starts at joinedAt, the current year ends at now, and every other year
// spans Jan 1 00:00:00 to Dec 31 23:59:59 UTC.
func YearRange(year int, joinedAt, now time.Time) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !joinedAt.IsZero() && joinedAt.UTC().Year() == year {
		from = joinedAt.UTC()
	}
	to := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	if now.UTC().Year() == year {
		to = now.UTC()
	}
	return from, to
}

// YearlyContributionQuery fetches one year of contribution totals.
func YearlyContributionQuery(username string, year int, joinedAt, now time.Time) string {
	from, to := YearRange(year, joinedAt, now)
	return wrapQuery(rateLimitBlock, yearBlock(username, year, from, to))
}

// YearWithMergedPRQuery fetches one calendar year plus the all-time merged
// PR count in a single request. Used by incremental updates.
func YearWithMergedPRQuery(username string, year int, now time.Time) string {
	from, to := YearRange(year, time.Time{}, now)
	return wrapQuery(rateLimitBlock, mergedPRBlock(username), yearBlock(username, year, from, to))
}
