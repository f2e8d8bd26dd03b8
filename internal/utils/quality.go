package utils

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/amaumene/bridgarr/internal/models"
)

var camRegex = regexp.MustCompile(`(?i)\b(cam|camrip|hdcam|ts|hdts|telesync|tc|telecine|hdtc)\b`)

// DetermineQuality parses a release title and determines its resolution tier
func DetermineQuality(title string) models.Quality {
	titleLower := strings.ToLower(title)

	switch {
	case strings.Contains(titleLower, "2160p") ||
		strings.Contains(titleLower, "4k") ||
		strings.Contains(titleLower, "uhd"):
		return models.Quality2160p
	case strings.Contains(titleLower, "1080p"):
		return models.Quality1080p
	case strings.Contains(titleLower, "720p"):
		return models.Quality720p
	case strings.Contains(titleLower, "480p"):
		return models.Quality480p
	default:
		return models.QualityUnknown
	}
}

// IsCamRelease reports whether a title looks like a theater recording
func IsCamRelease(title string) bool {
	return camRegex.MatchString(title)
}

// RankReleases sorts releases by:
// 1. Quality (2160p > 1080p > 720p > 480p > unknown)
// 2. Title similarity to the requested title
// 3. Seeders
// 4. Size (larger is better)
func RankReleases(releases []*models.Release) []*models.Release {
	sorted := make([]*models.Release, len(releases))
	copy(sorted, releases)

	sort.SliceStable(sorted, func(i, j int) bool {
		qualityI := qualityValue(sorted[i].Quality)
		qualityJ := qualityValue(sorted[j].Quality)
		if qualityI != qualityJ {
			return qualityI > qualityJ
		}

		if sorted[i].Similarity != sorted[j].Similarity {
			return sorted[i].Similarity > sorted[j].Similarity
		}

		if sorted[i].Seeders != sorted[j].Seeders {
			return sorted[i].Seeders > sorted[j].Seeders
		}

		return sorted[i].Size > sorted[j].Size
	})

	return sorted
}

func qualityValue(q models.Quality) int {
	switch q {
	case models.Quality2160p:
		return 4
	case models.Quality1080p:
		return 3
	case models.Quality720p:
		return 2
	case models.Quality480p:
		return 1
	default:
		return 0
	}
}

var yearRegex = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// ExtractYear extracts a 4-digit year from a release title
// Returns 0 if no year is found
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}
