package models

import "strings"

// MediaKind represents the kind of a requestable title (movie or show)
type MediaKind string

const (
	MediaKindMovie MediaKind = "movie"
	MediaKindShow  MediaKind = "show"
)

// ParseMediaKind normalizes the media type names used by request managers
func ParseMediaKind(s string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie":
		return MediaKindMovie, true
	case "tv", "show", "series":
		return MediaKindShow, true
	default:
		return "", false
	}
}

// JobStatus represents the state of an acquisition job
type JobStatus string

const (
	JobStatusQueued            JobStatus = "queued"
	JobStatusResolvingMetadata JobStatus = "resolving-metadata"
	JobStatusResolvingSource   JobStatus = "resolving-source"
	JobStatusCaching           JobStatus = "caching"
	JobStatusLinking           JobStatus = "linking"
	JobStatusDone              JobStatus = "done"
	JobStatusFailed            JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen from s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Quality represents the quality tier of a release
type Quality string

const (
	Quality2160p   Quality = "2160p"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	Quality480p    Quality = "480p"
	QualityUnknown Quality = "unknown"
)
