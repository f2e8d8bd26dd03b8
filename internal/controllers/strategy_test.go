package controllers

import (
	"testing"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/services/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitKeys(plan *Plan) []string {
	keys := make([]string, len(plan.Units))
	for i, u := range plan.Units {
		keys[i] = u.Key()
	}
	return keys
}

func TestBuildPlan(t *testing.T) {
	details := &tmdb.Details{Seasons: map[int]int{1: 3, 2: 2}}

	tests := []struct {
		name      string
		kind      models.MediaKind
		season    *int
		episodes  []int
		max       int
		want      []string
		truncated int
	}{
		{name: "movie", kind: models.MediaKindMovie, want: []string{"movie"}},
		{name: "requested episodes", kind: models.MediaKindShow, season: intPtr(2), episodes: []int{2, 1, 2, 0}, want: []string{"S02E01", "S02E02"}},
		{name: "whole season", kind: models.MediaKindShow, season: intPtr(1), want: []string{"S01E01", "S01E02", "S01E03"}},
		{name: "no season means season one", kind: models.MediaKindShow, want: []string{"S01E01", "S01E02", "S01E03"}},
		{name: "capped", kind: models.MediaKindShow, season: intPtr(1), max: 2, want: []string{"S01E01", "S01E02"}, truncated: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(tt.kind, details, tt.season, tt.episodes, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.want, unitKeys(plan))
			assert.Equal(t, tt.truncated, plan.Truncated)
		})
	}
}

func TestBuildPlan_UnknownSeason(t *testing.T) {
	_, err := BuildPlan(models.MediaKindShow, &tmdb.Details{}, intPtr(5), nil, 30)
	assert.Error(t, err)
}

func TestUnitSelector(t *testing.T) {
	plan, err := BuildPlan(models.MediaKindShow, nil, intPtr(3), []int{7}, 0)
	require.NoError(t, err)
	sel := plan.Units[0].Selector()
	assert.Equal(t, 3, sel.Season)
	assert.Equal(t, 7, sel.Episode)
	assert.True(t, sel.IsEpisode())

	movie, err := BuildPlan(models.MediaKindMovie, nil, nil, nil, 0)
	require.NoError(t, err)
	assert.False(t, movie.Units[0].Selector().IsEpisode())
}
