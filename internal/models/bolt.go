package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// BoltStore implements Store on an embedded bolthold file. Claims are atomic
// because bbolt serializes write transactions.
type BoltStore struct {
	store *bolthold.Store
}

// NewBoltStore opens (or creates) a bolthold database at path
func NewBoltStore(path string) (*BoltStore, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BoltStore{store: store}, nil
}

// Close closes the database connection
func (db *BoltStore) Close() error {
	return db.store.Close()
}

func boltErr(err error) error {
	if errors.Is(err, bolthold.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Media operations

// TryAcquireLock creates the media item on first sight and claims it for jobID
func (db *BoltStore) TryAcquireLock(externalID int64, kind MediaKind, jobID, requester string, lease time.Duration) (*ClaimResult, error) {
	result := &ClaimResult{}

	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var medias []*MediaItem
		query := bolthold.Where("ExternalID").Eq(externalID).And("Kind").Eq(kind)
		if err := db.store.TxFind(tx, &medias, query); err != nil {
			return err
		}

		now := time.Now()
		if len(medias) == 0 {
			media := &MediaItem{
				ExternalID:  externalID,
				Kind:        kind,
				ActiveJobID: jobID,
				ClaimedAt:   &now,
				JobStatus:   JobStatusQueued,
				Requester:   requester,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := db.store.TxInsert(tx, bolthold.NextSequence(), media); err != nil {
				return err
			}
			result.Media = media
			result.Acquired = true
			result.Created = true
			return nil
		}

		media := medias[0]
		result.Media = media
		if media.HasActiveClaim(now, lease) {
			return nil
		}

		media.ActiveJobID = jobID
		media.ClaimedAt = &now
		media.JobStatus = JobStatusQueued
		if requester != "" {
			media.Requester = requester
		}
		media.UpdatedAt = now
		if err := db.store.TxUpdate(tx, media.ID, media); err != nil {
			return err
		}
		result.Acquired = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim media: %w", err)
	}

	return result, nil
}

// ReleaseLock clears the claim held by jobID
func (db *BoltStore) ReleaseLock(mediaID uint64, jobID string) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var media MediaItem
		if err := db.store.TxGet(tx, mediaID, &media); err != nil {
			return boltErr(err)
		}
		if media.ActiveJobID != jobID {
			return ErrLockNotHeld
		}
		media.ActiveJobID = ""
		media.ClaimedAt = nil
		media.UpdatedAt = time.Now()
		return db.store.TxUpdate(tx, media.ID, &media)
	})
}

// UpdateMediaForJob writes media only while jobID still holds the claim
func (db *BoltStore) UpdateMediaForJob(media *MediaItem, jobID string) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var current MediaItem
		if err := db.store.TxGet(tx, media.ID, &current); err != nil {
			return boltErr(err)
		}
		if current.ActiveJobID != jobID {
			return ErrLockNotHeld
		}
		now := time.Now()
		media.ActiveJobID = current.ActiveJobID
		media.ClaimedAt = &now
		media.IsAvailable = current.IsAvailable
		media.ErrorMessage = current.ErrorMessage
		media.CreatedAt = current.CreatedAt
		media.UpdatedAt = now
		return db.store.TxUpdate(tx, media.ID, media)
	})
}

// RenewLock moves the claim timestamp of jobID to now
func (db *BoltStore) RenewLock(mediaID uint64, jobID string) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var media MediaItem
		if err := db.store.TxGet(tx, mediaID, &media); err != nil {
			return boltErr(err)
		}
		if media.ActiveJobID != jobID {
			return ErrLockNotHeld
		}
		now := time.Now()
		media.ClaimedAt = &now
		return db.store.TxUpdate(tx, media.ID, &media)
	})
}

// SetAvailability updates the availability fields of a media item
func (db *BoltStore) SetAvailability(mediaID uint64, available bool, errorMessage string) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var media MediaItem
		if err := db.store.TxGet(tx, mediaID, &media); err != nil {
			return boltErr(err)
		}
		media.IsAvailable = available
		media.ErrorMessage = errorMessage
		media.UpdatedAt = time.Now()
		return db.store.TxUpdate(tx, media.ID, &media)
	})
}

// GetMediaByID retrieves a media item by ID
func (db *BoltStore) GetMediaByID(id uint64) (*MediaItem, error) {
	var media MediaItem
	if err := db.store.Get(id, &media); err != nil {
		return nil, boltErr(err)
	}
	return &media, nil
}

// GetMediaByExternalID retrieves a media item by its metadata id and kind
func (db *BoltStore) GetMediaByExternalID(externalID int64, kind MediaKind) (*MediaItem, error) {
	var media MediaItem
	err := db.store.FindOne(&media, bolthold.Where("ExternalID").Eq(externalID).And("Kind").Eq(kind))
	if err != nil {
		return nil, boltErr(err)
	}
	return &media, nil
}

// ListMedias returns a page of media items, newest first
func (db *BoltStore) ListMedias(opts ListOptions) ([]*MediaItem, int, error) {
	opts = normalizeLimit(opts)

	var query *bolthold.Query
	if opts.Kind != "" {
		query = bolthold.Where("Kind").Eq(opts.Kind)
	}
	if opts.Available != nil {
		if query == nil {
			query = bolthold.Where("IsAvailable").Eq(*opts.Available)
		} else {
			query = query.And("IsAvailable").Eq(*opts.Available)
		}
	}

	var medias []*MediaItem
	if err := db.store.Find(&medias, query); err != nil {
		return nil, 0, err
	}
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		matched := medias[:0]
		for _, media := range medias {
			if strings.Contains(strings.ToLower(media.Title), q) {
				matched = append(matched, media)
			}
		}
		medias = matched
	}

	sort.Slice(medias, func(i, j int) bool {
		return medias[i].ID > medias[j].ID
	})

	total := len(medias)
	if opts.Offset >= total {
		return []*MediaItem{}, total, nil
	}
	end := opts.Offset + opts.Limit
	if end > total {
		end = total
	}
	return medias[opts.Offset:end], total, nil
}

// CountMediasByJobStatus counts media items per last observed job status
func (db *BoltStore) CountMediasByJobStatus() (map[JobStatus]int, error) {
	var medias []*MediaItem
	if err := db.store.Find(&medias, nil); err != nil {
		return nil, err
	}
	counts := make(map[JobStatus]int)
	for _, media := range medias {
		counts[media.JobStatus]++
	}
	return counts, nil
}

// Link operations

// ReplaceLink inserts link and drops previous links of the same playable unit
func (db *BoltStore) ReplaceLink(link *CachedLink) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []*CachedLink
		if err := db.store.TxFind(tx, &existing, bolthold.Where("MediaItemID").Eq(link.MediaItemID)); err != nil {
			return err
		}
		for _, old := range existing {
			if sameUnit(old, link) {
				if err := db.store.TxDelete(tx, old.ID, &CachedLink{}); err != nil {
					return err
				}
			}
		}

		now := time.Now()
		link.ID = 0
		link.CreatedAt = now
		link.UpdatedAt = now
		return db.store.TxInsert(tx, bolthold.NextSequence(), link)
	})
}

// UpdateLink updates an existing link without resurrecting a deleted one
func (db *BoltStore) UpdateLink(link *CachedLink) error {
	link.UpdatedAt = time.Now()
	return boltErr(db.store.Update(link.ID, link))
}

// DeleteLink deletes a link by ID
func (db *BoltStore) DeleteLink(id uint64) error {
	return boltErr(db.store.Delete(id, &CachedLink{}))
}

// GetLinkByID retrieves a link by ID
func (db *BoltStore) GetLinkByID(id uint64) (*CachedLink, error) {
	var link CachedLink
	if err := db.store.Get(id, &link); err != nil {
		return nil, boltErr(err)
	}
	return &link, nil
}

// GetLinksByMediaID retrieves all links of a media item
func (db *BoltStore) GetLinksByMediaID(mediaID uint64) ([]*CachedLink, error) {
	var links []*CachedLink
	err := db.store.Find(&links, bolthold.Where("MediaItemID").Eq(mediaID).SortBy("ID"))
	return links, err
}

// GetExpiringLinks retrieves live links expiring at or before the given time
func (db *BoltStore) GetExpiringLinks(before time.Time) ([]*CachedLink, error) {
	var links []*CachedLink
	if err := db.store.Find(&links, bolthold.Where("Dead").Eq(false)); err != nil {
		return nil, err
	}

	expiring := make([]*CachedLink, 0, len(links))
	for _, link := range links {
		if link.ExpiresAt != nil && !link.ExpiresAt.After(before) {
			expiring = append(expiring, link)
		}
	}
	sort.Slice(expiring, func(i, j int) bool {
		return expiring[i].ExpiresAt.Before(*expiring[j].ExpiresAt)
	})
	return expiring, nil
}

// CountLiveLinks counts the links of a media item that are not dead
func (db *BoltStore) CountLiveLinks(mediaID uint64) (int, error) {
	var links []*CachedLink
	err := db.store.Find(&links, bolthold.Where("MediaItemID").Eq(mediaID).And("Dead").Eq(false))
	return len(links), err
}

// DeleteDeadLinksBefore deletes dead links last attempted before cutoff
func (db *BoltStore) DeleteDeadLinksBefore(cutoff time.Time) (int, error) {
	deleted := 0
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var links []*CachedLink
		if err := db.store.TxFind(tx, &links, bolthold.Where("Dead").Eq(true)); err != nil {
			return err
		}
		for _, link := range links {
			last := link.UpdatedAt
			if link.LastRefreshAttempt != nil {
				last = *link.LastRefreshAttempt
			}
			if !last.Before(cutoff) {
				continue
			}
			if err := db.store.TxDelete(tx, link.ID, &CachedLink{}); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// GetLinkStats summarizes the link cache
func (db *BoltStore) GetLinkStats(now time.Time, window time.Duration) (*LinkStats, error) {
	var links []*CachedLink
	if err := db.store.Find(&links, nil); err != nil {
		return nil, err
	}

	return summarizeLinks(links, now, window), nil
}
