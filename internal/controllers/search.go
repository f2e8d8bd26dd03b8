package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/services/torrentio"
	"github.com/sirupsen/logrus"
)

// SourceResolver finds one acquirable release for a playable unit. A nil
// release with a nil error means nothing was found.
type SourceResolver interface {
	Resolve(ctx context.Context, q torrentio.Query) (*models.Release, error)
}

// Sources is the outcome of source resolution for a plan
type Sources struct {
	ByUnit  map[string]*models.Release
	Missing []Unit
	LastErr error
}

// Found returns the number of units with a release
func (s *Sources) Found() int {
	return len(s.ByUnit)
}

// SearchController resolves sources for planned units
type SearchController struct {
	resolver SourceResolver
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewSearchController creates a new search controller. resolver may be nil,
// in which case nothing is ever found.
func NewSearchController(resolver SourceResolver, timeout time.Duration, logger *logrus.Logger) *SearchController {
	return &SearchController{
		resolver: resolver,
		timeout:  timeout,
		logger:   logger,
	}
}

// ResolveSources asks the resolver for every unit of the plan. Returns
// ErrSourceNotFound when no unit has a source.
func (c *SearchController) ResolveSources(ctx context.Context, media *models.MediaItem, plan *Plan) (*Sources, error) {
	sources := &Sources{ByUnit: make(map[string]*models.Release, len(plan.Units))}

	if c.resolver == nil {
		c.logger.WithField("media_id", media.ID).Warn("No source resolver configured")
		sources.Missing = append(sources.Missing, plan.Units...)
		return sources, ErrSourceNotFound
	}

	for _, unit := range plan.Units {
		release, err := c.resolveUnit(ctx, media, unit)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"media_id": media.ID,
				"unit":     unit.Key(),
			}).Warn("Source resolution failed")
			sources.LastErr = err
			sources.Missing = append(sources.Missing, unit)
			continue
		}
		if release == nil {
			sources.Missing = append(sources.Missing, unit)
			continue
		}

		c.logger.WithFields(logrus.Fields{
			"media_id": media.ID,
			"unit":     unit.Key(),
			"release":  release.Title,
			"quality":  release.Quality,
			"seeders":  release.Seeders,
		}).Info("Source selected")
		sources.ByUnit[unit.Key()] = release
	}

	if sources.Found() == 0 {
		if sources.LastErr != nil {
			return sources, fmt.Errorf("%w: %v", ErrSourceNotFound, sources.LastErr)
		}
		return sources, ErrSourceNotFound
	}
	return sources, nil
}

func (c *SearchController) resolveUnit(ctx context.Context, media *models.MediaItem, unit Unit) (*models.Release, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	return c.resolver.Resolve(ctx, torrentio.Query{
		IMDbID:  media.IMDbID,
		Title:   media.Title,
		Kind:    media.Kind,
		Season:  unit.season(),
		Episode: unit.episode(),
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
