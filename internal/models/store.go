package models

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrLockNotHeld is returned when a job writes or releases a claim it does not hold
	ErrLockNotHeld = errors.New("acquisition claim not held by job")
)

// ListOptions filters and paginates media listings
type ListOptions struct {
	Offset    int
	Limit     int
	Kind      MediaKind
	Available *bool
	// Query matches titles containing it, case-insensitively.
	Query string
}

// ClaimResult describes the outcome of TryAcquireLock
type ClaimResult struct {
	Media    *MediaItem
	Acquired bool
	Created  bool
}

// LinkStats summarizes the link cache
type LinkStats struct {
	Total        int `json:"total"`
	Live         int `json:"live"`
	Dead         int `json:"dead"`
	Permanent    int `json:"permanent"`
	ExpiringSoon int `json:"expiring_soon"`
}

// Store is the durable state shared by the webhook receiver, the acquisition
// workers and the refresh scheduler
type Store interface {
	// TryAcquireLock atomically creates the media item if needed and claims it
	// for jobID unless another job holds an unexpired claim.
	TryAcquireLock(externalID int64, kind MediaKind, jobID, requester string, lease time.Duration) (*ClaimResult, error)
	// ReleaseLock clears the claim if it is still held by jobID.
	ReleaseLock(mediaID uint64, jobID string) error
	// RenewLock extends the claim lease of jobID.
	RenewLock(mediaID uint64, jobID string) error
	// UpdateMediaForJob writes the media item only while jobID holds its
	// claim and renews the lease. The availability flag and error message are
	// never written; they change only through SetAvailability.
	UpdateMediaForJob(media *MediaItem, jobID string) error
	// SetAvailability changes only the availability flag and error message,
	// leaving any claim untouched.
	SetAvailability(mediaID uint64, available bool, errorMessage string) error
	GetMediaByID(id uint64) (*MediaItem, error)
	GetMediaByExternalID(externalID int64, kind MediaKind) (*MediaItem, error)
	ListMedias(opts ListOptions) ([]*MediaItem, int, error)
	CountMediasByJobStatus() (map[JobStatus]int, error)

	// ReplaceLink inserts link and removes other links of the same playable unit.
	ReplaceLink(link *CachedLink) error
	// UpdateLink writes an existing link; ErrNotFound means it was replaced or deleted.
	UpdateLink(link *CachedLink) error
	DeleteLink(id uint64) error
	GetLinkByID(id uint64) (*CachedLink, error)
	GetLinksByMediaID(mediaID uint64) ([]*CachedLink, error)
	// GetExpiringLinks returns live links with an expiry at or before the given time.
	GetExpiringLinks(before time.Time) ([]*CachedLink, error)
	CountLiveLinks(mediaID uint64) (int, error)
	DeleteDeadLinksBefore(cutoff time.Time) (int, error)
	GetLinkStats(now time.Time, window time.Duration) (*LinkStats, error)

	Close() error
}
