package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleStats = []ActivityStatistics{
	{},
	{Commits: 10, Issues: 5, PROpened: 2, PRMerged: 1, Reviews: 3},
	{Commits: 1},
	{Commits: 250, Issues: 12, PROpened: 40, PRMerged: 33, Reviews: 71},
}

func TestSelfDiffIsEmpty(t *testing.T) {
	for _, s := range sampleStats {
		assert.Equal(t, EmptyStatistics(), s.Diff(s))
		assert.True(t, s.Diff(s).IsEmpty())
	}
}

func TestMergeLaws(t *testing.T) {
	for _, a := range sampleStats {
		assert.Equal(t, a, a.Merge(EmptyStatistics()), "identity")
		for _, b := range sampleStats {
			assert.Equal(t, a.Merge(b), b.Merge(a), "commutative")
			for _, c := range sampleStats {
				assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)), "associative")
			}
		}
	}
}

func TestDiffUndoesMerge(t *testing.T) {
	a := sampleStats[1]
	b := sampleStats[3]
	assert.Equal(t, a, a.Merge(b).Diff(b))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		stats   ActivityStatistics
		want    Score
		wantErr bool
	}{
		{"empty", ActivityStatistics{}, 0, false},
		{"all kinds", ActivityStatistics{Commits: 10, Issues: 5, Reviews: 3, PROpened: 2, PRMerged: 1}, 53, false},
		{"commits only", ActivityStatistics{Commits: 7}, 7, false},
		{"issues only", ActivityStatistics{Issues: 7}, 14, false},
		{"reviews only", ActivityStatistics{Reviews: 7}, 35, false},
		{"opened only", ActivityStatistics{PROpened: 7}, 35, false},
		{"merged only", ActivityStatistics{PRMerged: 7}, 56, false},
		{"negative count", ActivityStatistics{Commits: 10, Issues: -1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.stats.Score()
			if tt.wantErr {
				require.Error(t, err)
				var invalid *InvalidValueError
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreMonotonicPerField(t *testing.T) {
	build := []func(n int) ActivityStatistics{
		func(n int) ActivityStatistics { return ActivityStatistics{Commits: n} },
		func(n int) ActivityStatistics { return ActivityStatistics{Issues: n} },
		func(n int) ActivityStatistics { return ActivityStatistics{PROpened: n} },
		func(n int) ActivityStatistics { return ActivityStatistics{PRMerged: n} },
		func(n int) ActivityStatistics { return ActivityStatistics{Reviews: n} },
	}
	for _, f := range build {
		prev := Score(0)
		for n := 0; n < 50; n++ {
			s, err := f(n).Score()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, s, prev)
			prev = s
		}
	}
}

func TestNewScoreRejectsNegative(t *testing.T) {
	_, err := NewScore(-1)
	assert.Error(t, err)

	s, err := NewScore(0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Int())
}

func TestHasActivity(t *testing.T) {
	assert.False(t, EmptyStatistics().HasActivity())
	assert.True(t, ActivityStatistics{Reviews: 1}.HasActivity())
	assert.Equal(t, 21, sampleStats[1].TotalActivityCount())
}
