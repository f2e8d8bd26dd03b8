package utils

import (
	"bufio"
	"os"
	"strings"
)

// Blacklist holds terms that disqualify a release title
type Blacklist struct {
	terms []string
}

// NewBlacklist builds a blacklist from in-memory terms
func NewBlacklist(terms ...string) *Blacklist {
	b := &Blacklist{}
	for _, term := range terms {
		b.add(term)
	}
	return b
}

// LoadBlacklist loads blacklist terms from a file, one per line, '#' starts a comment
func LoadBlacklist(path string) (*Blacklist, error) {
	if path == "" {
		return NewBlacklist(), nil
	}
	// If file doesn't exist, return empty blacklist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewBlacklist(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	b := NewBlacklist()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		b.add(line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Blacklist) add(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term != "" {
		b.terms = append(b.terms, term)
	}
}

// Len returns the number of terms
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.terms)
}

// IsBlacklisted checks if a title matches any blacklist term
// Returns (isBlacklisted, matchedTerm)
func (b *Blacklist) IsBlacklisted(title string) (bool, string) {
	if b == nil {
		return false, ""
	}
	titleLower := strings.ToLower(title)

	for _, term := range b.terms {
		if strings.Contains(titleLower, term) {
			return true, term
		}
	}

	return false, ""
}
