package models

import "fmt"

// RankInfo is a user's position in the population
type RankInfo struct {
	Rank       int     `json:"rank"`
	Percentile float64 `json:"percentile"`
	Tier       Tier    `json:"tier"`
}

// InitialRankInfo is assigned before a user has ever been ranked.
func InitialRankInfo() RankInfo {
	return RankInfo{Rank: 0, Percentile: 100, Tier: TierIron}
}

// NewRankInfo validates rank and percentile.
func NewRankInfo(rank int, percentile float64, tier Tier) (RankInfo, error) {
	if rank < 0 {
		return RankInfo{}, &InvalidValueError{Field: "rank", Value: rank}
	}
	if percentile < 0 || percentile > 100 {
		return RankInfo{}, &InvalidValueError{Field: "percentile", Value: percentile}
	}
	return RankInfo{Rank: rank, Percentile: percentile, Tier: tier}, nil
}

// ComputeRankInfo ranks a score given how many users score strictly higher
// and how many users exist in total.
func ComputeRankInfo(higherScoreCount, totalUserCount int64, score Score) (RankInfo, error) {
	if totalUserCount <= 0 {
		return InitialRankInfo(), nil
	}
	if higherScoreCount < 0 || higherScoreCount >= totalUserCount {
		return RankInfo{}, fmt.Errorf("rank: %d users above in a population of %d", higherScoreCount, totalUserCount)
	}
	rank := higherScoreCount + 1
	percentile := float64(rank) / float64(totalUserCount) * 100
	return NewRankInfo(int(rank), percentile, TierFor(score, percentile))
}

// IsPromotedFrom reports whether r is in a higher tier than previous.
func (r RankInfo) IsPromotedFrom(previous RankInfo) bool {
	return r.Tier.IsHigherThan(previous.Tier)
}
