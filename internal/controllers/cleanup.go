package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/sirupsen/logrus"
)

// CleanupController removes dead links once their retention has passed
type CleanupController struct {
	store     models.Store
	retention time.Duration
	now       func() time.Time
	logger    *logrus.Logger
}

// NewCleanupController creates a new cleanup controller
func NewCleanupController(store models.Store, retention time.Duration, logger *logrus.Logger) *CleanupController {
	return &CleanupController{
		store:     store,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// CleanupDeadLinks deletes dead links whose last refresh attempt is older than the retention
func (c *CleanupController) CleanupDeadLinks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-c.retention)
	removed, err := c.store.DeleteDeadLinksBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dead links: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"removed": removed,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Dead link cleanup completed")
	return removed, nil
}
