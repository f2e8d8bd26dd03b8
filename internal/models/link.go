package models

import (
	"fmt"
	"time"
)

// CachedLink represents a streaming URL obtained from a debrid provider for
// one playable unit (a movie, or one episode of a show)
type CachedLink struct {
	ID          uint64 `boltholdKey:"ID" gorm:"primaryKey;autoIncrement" json:"id"`
	MediaItemID uint64 `boltholdIndex:"MediaItemID" gorm:"not null;index" json:"media_item_id"`

	// Episode selector, nil for movies
	Season  *int `json:"season,omitempty"`
	Episode *int `json:"episode,omitempty"`

	Provider string `gorm:"type:TEXT;not null" json:"provider"`
	CacheRef string `gorm:"type:TEXT;not null" json:"-"` // provider-side torrent/transfer id
	FileRef  string `gorm:"type:TEXT" json:"-"`          // provider-side file reference used to regenerate the URL

	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size,omitempty"`

	IssuedAt           time.Time  `json:"issued_at"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at,omitempty"`
	LastRefreshAttempt *time.Time `json:"last_refresh_attempt,omitempty"`
	FailureCount       int        `json:"failure_count"`
	Dead               bool       `boltholdIndex:"Dead" gorm:"index" json:"dead"`
	LastError          string     `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the gorm table name
func (CachedLink) TableName() string {
	return "cached_links"
}

// IsPermanent reports whether the provider issued the link without expiry
func (l *CachedLink) IsPermanent() bool {
	return l.ExpiresAt == nil
}

// ExpiresWithin reports whether the link expires before now+window
func (l *CachedLink) ExpiresWithin(now time.Time, window time.Duration) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return !l.ExpiresAt.After(now.Add(window))
}

// UnitKey identifies the playable unit the link belongs to
func (l *CachedLink) UnitKey() string {
	return UnitKey(l.Season, l.Episode)
}

// UnitKey builds a playable unit key, "movie" or "S01E02"
func UnitKey(season, episode *int) string {
	if season == nil || episode == nil {
		return "movie"
	}
	return fmt.Sprintf("S%02dE%02d", *season, *episode)
}
