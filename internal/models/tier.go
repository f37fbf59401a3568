package models

import (
	"fmt"
	"strings"
)

// Tier is an ordered rank category. Higher values are better.
type Tier int

const (
	TierIron Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
	TierEmerald
	TierDiamond
	TierMaster
	TierChallenger
)

var tierNames = [...]string{
	"IRON",
	"BRONZE",
	"SILVER",
	"GOLD",
	"PLATINUM",
	"EMERALD",
	"DIAMOND",
	"MASTER",
	"CHALLENGER",
}

// AllTiers lists every tier from lowest to highest.
func AllTiers() []Tier {
	tiers := make([]Tier, len(tierNames))
	for i := range tierNames {
		tiers[i] = Tier(i)
	}
	return tiers
}

func (t Tier) String() string {
	if t < TierIron || t > TierChallenger {
		return "UNKNOWN"
	}
	return tierNames[t]
}

// ParseTier accepts a tier name in any case.
func ParseTier(name string) (Tier, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range tierNames {
		if n == upper {
			return Tier(i), nil
		}
	}
	return TierIron, fmt.Errorf("unknown tier %q", name)
}

// IsHigherThan compares tier ordinals.
func (t Tier) IsHigherThan(other Tier) bool {
	return t > other
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// percentileBand is an elevated tier granted to a score at or above
// EliteScoreFloor whose percentile is within MaxPercentile.
type percentileBand struct {
	Tier          Tier
	MaxPercentile float64
}

// scoreBand is a tier granted purely on absolute score.
type scoreBand struct {
	Tier     Tier
	MinScore int
}

// EliteScoreFloor gates the percentile-based tiers.
const EliteScoreFloor = 2000

// Ordered from the most exclusive band down.
var percentileBands = []percentileBand{
	{TierChallenger, 1},
	{TierMaster, 5},
	{TierDiamond, 12},
	{TierEmerald, 25},
	{TierPlatinum, 45},
}

var scoreBands = []scoreBand{
	{TierGold, 1500},
	{TierSilver, 1000},
	{TierBronze, 500},
}

// TierFor assigns a tier from an absolute score and a percentile (0-100,
// lower is better). Percentile bands apply only from EliteScoreFloor upward.
func TierFor(score Score, percentile float64) Tier {
	if score.Int() >= EliteScoreFloor {
		for _, band := range percentileBands {
			if percentile <= band.MaxPercentile {
				return band.Tier
			}
		}
	}
	for _, band := range scoreBands {
		if score.Int() >= band.MinScore {
			return band.Tier
		}
	}
	return TierIron
}

// TierCaseSQL renders TierFor as a SQL CASE expression over a score column
// and a percentile expression in the range (0, 100].
func TierCaseSQL(scoreCol, percentileExpr string) string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, band := range percentileBands {
		fmt.Fprintf(&sb, " WHEN %s >= %d AND %s <= %g THEN '%s'",
			scoreCol, EliteScoreFloor, percentileExpr, band.MaxPercentile, band.Tier)
	}
	for _, band := range scoreBands {
		fmt.Fprintf(&sb, " WHEN %s >= %d THEN '%s'", scoreCol, band.MinScore, band.Tier)
	}
	fmt.Fprintf(&sb, " ELSE '%s' END", TierIron)
	return sb.String()
}
