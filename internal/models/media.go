package models

import "time"

// MediaItem represents one requestable title (movie or show)
type MediaItem struct {
	ID         uint64    `boltholdKey:"ID" gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID int64     `boltholdIndex:"ExternalID" gorm:"not null;uniqueIndex:ux_media_external,priority:1" json:"external_id"` // TMDb id
	Kind       MediaKind `gorm:"type:TEXT;not null;uniqueIndex:ux_media_external,priority:2" json:"kind"`

	// Metadata, backfilled once the metadata lookup succeeds
	Title       string `json:"title"`
	Overview    string `json:"overview,omitempty"`
	PosterURL   string `json:"poster_url,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Year        int    `json:"year,omitempty"`
	IMDbID      string `gorm:"column:imdb_id" json:"imdb_id,omitempty"`

	IsAvailable  bool   `boltholdIndex:"IsAvailable" json:"is_available"`
	ErrorMessage string `json:"error,omitempty"`

	// Acquisition claim: at most one job holds it at a time
	ActiveJobID string     `gorm:"index" json:"active_job_id,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	JobStatus   JobStatus  `json:"job_status,omitempty"`
	Requester   string     `json:"requester,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the gorm table name
func (MediaItem) TableName() string {
	return "media_items"
}

// HasActiveClaim reports whether a job holds the claim and its lease has not run out
func (m *MediaItem) HasActiveClaim(now time.Time, lease time.Duration) bool {
	if m.ActiveJobID == "" {
		return false
	}
	if m.ClaimedAt == nil || lease <= 0 {
		return true
	}
	return now.Sub(*m.ClaimedAt) < lease
}
