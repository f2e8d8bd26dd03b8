package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const maxCacheInterval = time.Minute

// DownloadController hands sources to a debrid provider and turns ready
// caches into stored links
type DownloadController struct {
	store        models.Store
	timeout      time.Duration
	maxRetries   int
	retryInitial time.Duration
	logger       *logrus.Logger
}

// NewDownloadController creates a new download controller. Caching calls
// are retried maxRetries times, starting retryInitial apart.
func NewDownloadController(store models.Store, timeout time.Duration, maxRetries int, retryInitial time.Duration, logger *logrus.Logger) *DownloadController {
	return &DownloadController{
		store:        store,
		timeout:      timeout,
		maxRetries:   maxRetries,
		retryInitial: retryInitial,
		logger:       logger,
	}
}

// isJobFatal reports whether an error affects every unit of the job, not
// just the source that produced it
func isJobFatal(err error) bool {
	return errors.Is(err, debrid.ErrInvalidToken) ||
		errors.Is(err, debrid.ErrQuotaExceeded) ||
		errors.Is(err, debrid.ErrUnknownProvider) ||
		errors.Is(err, models.ErrLockNotHeld)
}

func retryable(err error) error {
	if debrid.IsPermanent(err) || errors.Is(err, debrid.ErrNotFound) {
		return backoff.Permanent(err)
	}
	return err
}

func (c *DownloadController) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.MaxInterval = maxCacheInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

// CacheSource submits a release and waits until the provider reports the
// cache ready. Transient errors are retried with exponential backoff,
// permanent ones end the attempt immediately.
func (c *DownloadController) CacheSource(ctx context.Context, provider debrid.Provider, release *models.Release) (string, error) {
	log := c.logger.WithFields(logrus.Fields{
		"provider":  provider.Name(),
		"info_hash": release.InfoHash,
	})

	var cacheRef string
	submit := func() error {
		callCtx, cancel := withTimeout(ctx, c.timeout)
		defer cancel()

		ref, err := provider.SubmitSource(callCtx, debrid.Source{
			Magnet:   release.Magnet,
			InfoHash: release.InfoHash,
			Title:    release.Title,
		})
		if err != nil {
			log.WithError(err).Debug("Submit failed")
			return retryable(err)
		}
		cacheRef = ref
		return nil
	}
	if err := backoff.Retry(submit, c.newBackOff(ctx)); err != nil {
		return "", fmt.Errorf("submit source: %w", err)
	}

	log = log.WithField("cache_ref", cacheRef)
	log.Info("Source submitted")

	checks := 0
	poll := func() error {
		checks++
		callCtx, cancel := withTimeout(ctx, c.timeout)
		defer cancel()

		status, err := provider.GetCacheStatus(callCtx, cacheRef)
		if err != nil {
			return retryable(err)
		}
		switch {
		case status == debrid.StatusReady:
			return nil
		case status.IsFailure():
			return backoff.Permanent(fmt.Errorf("%w: provider reported %s", ErrCacheFailed, status))
		default:
			log.WithField("status", status).Debug("Cache not ready yet")
			return fmt.Errorf("%w: still %s", debrid.ErrNotReady, status)
		}
	}
	if err := backoff.Retry(poll, c.newBackOff(ctx)); err != nil {
		return cacheRef, fmt.Errorf("after %d status checks: %w", checks, err)
	}

	log.WithField("checks", checks).Info("Cache ready")
	return cacheRef, nil
}

// LinkUnit generates the playable link of one unit and stores it, replacing
// any previous link of the same unit. The claim of jobID is renewed right
// before the write; a job that lost its claim stores nothing.
func (c *DownloadController) LinkUnit(ctx context.Context, provider debrid.Provider, media *models.MediaItem, jobID string, unit Unit, cacheRef string) (*models.CachedLink, error) {
	var link *debrid.Link
	generate := func() error {
		callCtx, cancel := withTimeout(ctx, c.timeout)
		defer cancel()

		l, err := provider.GenerateLink(callCtx, cacheRef, unit.Selector())
		if err != nil {
			return retryable(err)
		}
		link = l
		return nil
	}
	if err := backoff.Retry(generate, c.newBackOff(ctx)); err != nil {
		return nil, fmt.Errorf("generate link for %s: %w", unit.Key(), err)
	}

	if err := c.store.RenewLock(media.ID, jobID); err != nil {
		return nil, fmt.Errorf("store link for %s: %w", unit.Key(), err)
	}

	now := time.Now()
	cached := &models.CachedLink{
		MediaItemID: media.ID,
		Season:      unit.Season,
		Episode:     unit.Episode,
		Provider:    provider.Name(),
		CacheRef:    cacheRef,
		FileRef:     link.FileRef,
		URL:         link.URL,
		FileName:    link.FileName,
		Size:        link.Size,
		IssuedAt:    now,
		ExpiresAt:   link.ExpiresAt,
	}
	if err := c.store.ReplaceLink(cached); err != nil {
		return nil, fmt.Errorf("store link for %s: %w", unit.Key(), err)
	}

	c.logger.WithFields(logrus.Fields{
		"media_id":  media.ID,
		"unit":      unit.Key(),
		"provider":  provider.Name(),
		"link_id":   cached.ID,
		"permanent": cached.IsPermanent(),
	}).Info("Link stored")

	return cached, nil
}
