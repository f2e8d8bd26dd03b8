package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// releaseTagRegex matches the first token after which a release name stops
// being part of the title: a year, a resolution or an episode marker
var releaseTagRegex = regexp.MustCompile(`(?i)[ ._\-\[(](19\d{2}|20\d{2}|2160p|1080p|720p|480p|4k|s\d{1,2}e\d{1,3}|s\d{1,2}\b|\d{1,2}x\d{2})`)

// CleanTitle lowercases a title, strips accents and punctuation and collapses whitespace
func CleanTitle(title string) string {
	s := strings.ToLower(title)
	s = removeAccents(s)

	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.NewReplacer(".", " ", "_", " ", "-", " ", ":", " ").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	if len(fields) > 1 && (fields[0] == "the" || fields[0] == "a" || fields[0] == "an") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// ReleaseName returns the part of a release title that names the work,
// e.g. "The.Matrix.1999.1080p.BluRay" gives "The.Matrix"
func ReleaseName(title string) string {
	if loc := releaseTagRegex.FindStringIndex(title); loc != nil && loc[0] > 0 {
		return title[:loc[0]]
	}
	return title
}

// TitleSimilarity scores how close a release title is to a requested title,
// between 0 (unrelated) and 1 (same name)
func TitleSimilarity(requested, release string) float64 {
	a := CleanTitle(requested)
	b := CleanTitle(ReleaseName(release))

	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(maxLen)
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}
