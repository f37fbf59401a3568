package models

import (
	"time"
)

// FullScanCooldown is the minimum interval between two full scans of a user.
const FullScanCooldown = 5 * time.Minute

// User is a tracked GitHub account
type User struct {
	ID              int64      `json:"id"`
	NodeID          string     `json:"node_id"`
	Username        string     `json:"username"`
	ProfileImage    string     `json:"profile_image,omitempty"`
	GitHubCreatedAt time.Time  `json:"github_created_at"`
	Score           Score      `json:"score"`
	RankInfo        RankInfo   `json:"rank_info"`
	LastFullScanAt  *time.Time `json:"last_full_scan_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// JoinYear is the calendar year the GitHub account was created.
func (u *User) JoinYear() int {
	return u.GitHubCreatedAt.UTC().Year()
}

// UpdateScore replaces the score and stamps UpdatedAt.
func (u *User) UpdateScore(score Score, now time.Time) {
	u.Score = score
	u.UpdatedAt = now
}

// UpdateRank replaces the rank info and reports whether it was a promotion.
func (u *User) UpdateRank(info RankInfo) bool {
	promoted := info.IsPromotedFrom(u.RankInfo)
	u.RankInfo = info
	return promoted
}

// CanTriggerFullScan reports whether the full-scan cooldown has elapsed.
func (u *User) CanTriggerFullScan(now time.Time) bool {
	if u.LastFullScanAt == nil {
		return true
	}
	return !now.Before(u.NextFullScanAvailableAt())
}

// NextFullScanAvailableAt is the earliest time of the next full scan.
func (u *User) NextFullScanAvailableAt() time.Time {
	if u.LastFullScanAt == nil {
		return time.Time{}
	}
	return u.LastFullScanAt.Add(FullScanCooldown)
}

// RecordFullScan marks a completed full scan.
func (u *User) RecordFullScan(now time.Time) {
	t := now
	u.LastFullScanAt = &t
}
