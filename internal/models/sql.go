package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLStore implements Store on a relational database through gorm. Claims
// are single conditional UPDATE statements, so they hold across processes.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens (or creates) a SQLite database at path and migrates the schema
func NewSQLStore(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&MediaItem{}, &CachedLink{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqlErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Media operations

// TryAcquireLock creates the media item on first sight and claims it for jobID
func (s *SQLStore) TryAcquireLock(externalID int64, kind MediaKind, jobID, requester string, lease time.Duration) (*ClaimResult, error) {
	result := &ClaimResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		media := &MediaItem{
			ExternalID:  externalID,
			Kind:        kind,
			ActiveJobID: jobID,
			ClaimedAt:   &now,
			JobStatus:   JobStatusQueued,
			Requester:   requester,
		}
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(media)
		if created.Error != nil {
			return created.Error
		}
		if created.RowsAffected == 1 {
			result.Media = media
			result.Acquired = true
			result.Created = true
			return nil
		}

		updates := map[string]interface{}{
			"active_job_id": jobID,
			"claimed_at":    now,
			"job_status":    JobStatusQueued,
			"updated_at":    now,
		}
		if requester != "" {
			updates["requester"] = requester
		}

		claim := tx.Model(&MediaItem{}).Where("external_id = ? AND kind = ?", externalID, kind)
		if lease > 0 {
			claim = claim.Where("active_job_id = '' OR (claimed_at IS NOT NULL AND claimed_at < ?)", now.Add(-lease))
		} else {
			claim = claim.Where("active_job_id = ''")
		}
		claimed := claim.Updates(updates)
		if claimed.Error != nil {
			return claimed.Error
		}
		result.Acquired = claimed.RowsAffected == 1

		var current MediaItem
		if err := tx.Where("external_id = ? AND kind = ?", externalID, kind).First(&current).Error; err != nil {
			return err
		}
		result.Media = &current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim media: %w", err)
	}

	return result, nil
}

// ReleaseLock clears the claim held by jobID
func (s *SQLStore) ReleaseLock(mediaID uint64, jobID string) error {
	res := s.db.Model(&MediaItem{}).
		Where("id = ? AND active_job_id = ?", mediaID, jobID).
		Updates(map[string]interface{}{
			"active_job_id": "",
			"claimed_at":    nil,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMediaByID(mediaID); err != nil {
			return err
		}
		return ErrLockNotHeld
	}
	return nil
}

// RenewLock moves the claim timestamp of jobID to now
func (s *SQLStore) RenewLock(mediaID uint64, jobID string) error {
	res := s.db.Model(&MediaItem{}).
		Where("id = ? AND active_job_id = ?", mediaID, jobID).
		Update("claimed_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// UpdateMediaForJob writes media only while jobID still holds the claim
func (s *SQLStore) UpdateMediaForJob(media *MediaItem, jobID string) error {
	now := time.Now()
	media.ClaimedAt = &now
	res := s.db.Model(media).
		Where("active_job_id = ?", jobID).
		Select("*").
		Omit("id", "created_at", "active_job_id", "is_available", "error_message").
		Updates(media)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// SetAvailability updates the availability columns of a media item
func (s *SQLStore) SetAvailability(mediaID uint64, available bool, errorMessage string) error {
	res := s.db.Model(&MediaItem{}).
		Where("id = ?", mediaID).
		Updates(map[string]interface{}{
			"is_available":  available,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMediaByID retrieves a media item by ID
func (s *SQLStore) GetMediaByID(id uint64) (*MediaItem, error) {
	var media MediaItem
	if err := s.db.First(&media, id).Error; err != nil {
		return nil, sqlErr(err)
	}
	return &media, nil
}

// GetMediaByExternalID retrieves a media item by its metadata id and kind
func (s *SQLStore) GetMediaByExternalID(externalID int64, kind MediaKind) (*MediaItem, error) {
	var media MediaItem
	err := s.db.Where("external_id = ? AND kind = ?", externalID, kind).First(&media).Error
	if err != nil {
		return nil, sqlErr(err)
	}
	return &media, nil
}

// ListMedias returns a page of media items, newest first
func (s *SQLStore) ListMedias(opts ListOptions) ([]*MediaItem, int, error) {
	opts = normalizeLimit(opts)

	query := s.db.Model(&MediaItem{})
	if opts.Kind != "" {
		query = query.Where("kind = ?", opts.Kind)
	}
	if opts.Available != nil {
		query = query.Where("is_available = ?", *opts.Available)
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		query = query.Where("LOWER(title) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(q))+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	medias := []*MediaItem{}
	err := query.Order("id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&medias).Error
	return medias, int(total), err
}

// CountMediasByJobStatus counts media items per last observed job status
func (s *SQLStore) CountMediasByJobStatus() (map[JobStatus]int, error) {
	var rows []struct {
		JobStatus JobStatus
		Count     int
	}
	err := s.db.Model(&MediaItem{}).
		Select("job_status, count(*) as count").
		Group("job_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[JobStatus]int, len(rows))
	for _, row := range rows {
		counts[row.JobStatus] = row.Count
	}
	return counts, nil
}

// Link operations

// ReplaceLink inserts link and drops previous links of the same playable unit
func (s *SQLStore) ReplaceLink(link *CachedLink) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing []*CachedLink
		if err := tx.Where("media_item_id = ?", link.MediaItemID).Find(&existing).Error; err != nil {
			return err
		}
		for _, old := range existing {
			if sameUnit(old, link) {
				if err := tx.Delete(&CachedLink{}, old.ID).Error; err != nil {
					return err
				}
			}
		}
		link.ID = 0
		return tx.Create(link).Error
	})
}

// UpdateLink updates an existing link without resurrecting a deleted one
func (s *SQLStore) UpdateLink(link *CachedLink) error {
	res := s.db.Model(link).Select("*").Omit("id", "created_at").Updates(link)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLink deletes a link by ID
func (s *SQLStore) DeleteLink(id uint64) error {
	res := s.db.Delete(&CachedLink{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLinkByID retrieves a link by ID
func (s *SQLStore) GetLinkByID(id uint64) (*CachedLink, error) {
	var link CachedLink
	if err := s.db.First(&link, id).Error; err != nil {
		return nil, sqlErr(err)
	}
	return &link, nil
}

// GetLinksByMediaID retrieves all links of a media item
func (s *SQLStore) GetLinksByMediaID(mediaID uint64) ([]*CachedLink, error) {
	var links []*CachedLink
	err := s.db.Where("media_item_id = ?", mediaID).Order("id").Find(&links).Error
	return links, err
}

// GetExpiringLinks retrieves live links expiring at or before the given time
func (s *SQLStore) GetExpiringLinks(before time.Time) ([]*CachedLink, error) {
	var links []*CachedLink
	err := s.db.
		Where("dead = ? AND expires_at IS NOT NULL AND expires_at <= ?", false, before).
		Order("expires_at").
		Find(&links).Error
	return links, err
}

// CountLiveLinks counts the links of a media item that are not dead
func (s *SQLStore) CountLiveLinks(mediaID uint64) (int, error) {
	var count int64
	err := s.db.Model(&CachedLink{}).Where("media_item_id = ? AND dead = ?", mediaID, false).Count(&count).Error
	return int(count), err
}

// DeleteDeadLinksBefore deletes dead links last attempted before cutoff
func (s *SQLStore) DeleteDeadLinksBefore(cutoff time.Time) (int, error) {
	res := s.db.
		Where("dead = ? AND COALESCE(last_refresh_attempt, updated_at) < ?", true, cutoff).
		Delete(&CachedLink{})
	return int(res.RowsAffected), res.Error
}

// GetLinkStats summarizes the link cache
func (s *SQLStore) GetLinkStats(now time.Time, window time.Duration) (*LinkStats, error) {
	var links []*CachedLink
	if err := s.db.Select("id", "dead", "expires_at").Find(&links).Error; err != nil {
		return nil, err
	}

	return summarizeLinks(links, now, window), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
