package debrid

import (
	"context"
	"time"
)

// Provider tags, stored on every cached link
const (
	ProviderRealDebrid = "real-debrid"
	ProviderAllDebrid  = "alldebrid"
	ProviderPremiumize = "premiumize"
	ProviderDebridLink = "debrid-link"
	ProviderTorBox     = "torbox"
)

// CacheStatus is the normalized caching state shared by every provider
type CacheStatus string

const (
	StatusQueued      CacheStatus = "queued"
	StatusDownloading CacheStatus = "downloading"
	StatusProcessing  CacheStatus = "processing"
	StatusReady       CacheStatus = "ready"
	StatusError       CacheStatus = "error"
	StatusDead        CacheStatus = "dead"
)

// IsFailure reports whether the cache will never become ready
func (s CacheStatus) IsFailure() bool {
	return s == StatusError || s == StatusDead
}

// Source is an acquirable reference handed to a provider
type Source struct {
	Magnet   string
	InfoHash string
	Title    string
}

// FileSelector picks the playable file out of a multi-file cache. A zero
// selector picks the largest video file.
type FileSelector struct {
	Season  int
	Episode int
}

// IsEpisode reports whether the selector targets a specific episode
func (s FileSelector) IsEpisode() bool {
	return s.Episode > 0
}

// Ref locates a generated link on the provider side
type Ref struct {
	Cache string       // torrent, magnet or transfer id
	File  string       // provider file reference, empty when the cache alone suffices
	Unit  FileSelector // file to pick again when File is empty
}

// Link is a playable URL; ExpiresAt is nil for permanent links
type Link struct {
	URL       string
	ExpiresAt *time.Time
	FileRef   string
	FileName  string
	Size      int64
}

//go:generate mockgen -destination=mocks/provider.go -package=mocks . Provider

// Provider is the capability set every debrid service implements
type Provider interface {
	// Name returns the provider tag
	Name() string
	// ValidateToken performs a cheap credential check
	ValidateToken(ctx context.Context) (bool, error)
	// SubmitSource starts caching and returns the provider cache reference
	SubmitSource(ctx context.Context, source Source) (string, error)
	// GetCacheStatus returns the normalized state of a cache reference
	GetCacheStatus(ctx context.Context, cacheRef string) (CacheStatus, error)
	// GenerateLink produces a playable URL for the selected file
	GenerateLink(ctx context.Context, cacheRef string, selector FileSelector) (*Link, error)
	// RefreshLink re-derives a usable URL for an already generated link
	RefreshLink(ctx context.Context, ref Ref, existingURL string) (*Link, error)
}

func expiry(now time.Time, lifetime time.Duration) *time.Time {
	if lifetime <= 0 {
		return nil
	}
	t := now.Add(lifetime)
	return &t
}
