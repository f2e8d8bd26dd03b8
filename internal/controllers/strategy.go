package controllers

import (
	"fmt"
	"sort"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/amaumene/bridgarr/internal/services/tmdb"
)

// Unit is one playable unit of a plan: the movie, or one episode
type Unit struct {
	Season  *int
	Episode *int
}

// Key identifies the unit, "movie" or "S01E02"
func (u Unit) Key() string {
	return models.UnitKey(u.Season, u.Episode)
}

// Selector returns the provider file selector for the unit
func (u Unit) Selector() debrid.FileSelector {
	if u.Season == nil || u.Episode == nil {
		return debrid.FileSelector{}
	}
	return debrid.FileSelector{Season: *u.Season, Episode: *u.Episode}
}

func (u Unit) season() int {
	if u.Season == nil {
		return 0
	}
	return *u.Season
}

func (u Unit) episode() int {
	if u.Episode == nil {
		return 0
	}
	return *u.Episode
}

// Plan lists the playable units one job acquires
type Plan struct {
	Units     []Unit
	Truncated int
}

// BuildPlan decides which playable units a request covers:
// - movies: a single unit
// - shows: the requested episodes of the requested season; a season alone
//   expands to every episode the metadata knows; no season means season 1
// At most maxUnits units are planned, the rest is reported as Truncated.
func BuildPlan(kind models.MediaKind, details *tmdb.Details, season *int, episodes []int, maxUnits int) (*Plan, error) {
	if kind == models.MediaKindMovie {
		return &Plan{Units: []Unit{{}}}, nil
	}

	s := 1
	if season != nil && *season > 0 {
		s = *season
	}

	numbers := uniqueEpisodes(episodes)
	if len(numbers) == 0 {
		count := 0
		if details != nil {
			count = details.EpisodeCount(s)
		}
		if count == 0 {
			return nil, fmt.Errorf("no episodes known for season %d", s)
		}
		for e := 1; e <= count; e++ {
			numbers = append(numbers, e)
		}
	}

	plan := &Plan{}
	if maxUnits > 0 && len(numbers) > maxUnits {
		plan.Truncated = len(numbers) - maxUnits
		numbers = numbers[:maxUnits]
	}

	for _, e := range numbers {
		seasonNumber, episodeNumber := s, e
		plan.Units = append(plan.Units, Unit{Season: &seasonNumber, Episode: &episodeNumber})
	}
	return plan, nil
}

func uniqueEpisodes(episodes []int) []int {
	seen := make(map[int]struct{}, len(episodes))
	var out []int
	for _, e := range episodes {
		if e <= 0 {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Ints(out)
	return out
}
