package models

import (
	"fmt"
	"time"
)

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// NewDatabase opens the store selected by driver at path
func NewDatabase(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLStore(path)
	case DriverBolt:
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func normalizeLimit(opts ListOptions) ListOptions {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}

func sameUnit(a, b *CachedLink) bool {
	return a.MediaItemID == b.MediaItemID && a.UnitKey() == b.UnitKey()
}

func summarizeLinks(links []*CachedLink, now time.Time, window time.Duration) *LinkStats {
	stats := &LinkStats{Total: len(links)}
	for _, link := range links {
		switch {
		case link.Dead:
			stats.Dead++
		case link.IsPermanent():
			stats.Live++
			stats.Permanent++
		default:
			stats.Live++
			if link.ExpiresWithin(now, window) {
				stats.ExpiringSoon++
			}
		}
	}
	return stats
}
