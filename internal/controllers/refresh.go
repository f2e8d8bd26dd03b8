package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/amaumene/bridgarr/internal/metrics"
	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrLinkRemoved is returned when the provider no longer knows the cache
	// behind a link and the link was deleted
	ErrLinkRemoved = errors.New("link removed, provider cache is gone")
	// ErrLinkReplaced is returned when an acquisition replaced or deleted the
	// link while it was being refreshed; the result is discarded
	ErrLinkReplaced = errors.New("link replaced during refresh")
)

// ProviderLookup returns the provider registered under a tag
type ProviderLookup interface {
	Get(name string) (debrid.Provider, error)
}

// RefreshConfig holds the link refresh tunables
type RefreshConfig struct {
	Window      time.Duration
	LazyWindow  time.Duration
	Timeout     time.Duration
	Concurrency int
	MaxFailures int
}

// RefreshSummary counts the outcomes of one refresh pass
type RefreshSummary struct {
	Checked   int `json:"checked"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
	Removed   int `json:"removed"`
}

// RefreshController keeps cached links playable. The periodic pass and the
// read path go through the same RefreshLink routine.
type RefreshController struct {
	store     models.Store
	providers ProviderLookup
	cfg       RefreshConfig
	group     singleflight.Group
	now       func() time.Time
	logger    *logrus.Logger
}

// NewRefreshController creates a new refresh controller
func NewRefreshController(store models.Store, providers ProviderLookup, cfg RefreshConfig, logger *logrus.Logger) *RefreshController {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	return &RefreshController{
		store:     store,
		providers: providers,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// RunRefresh refreshes every live link expiring within the refresh window.
// Links are refreshed concurrently and independently; a failing link never
// stops the others.
func (c *RefreshController) RunRefresh(ctx context.Context) (*RefreshSummary, error) {
	links, err := c.store.GetExpiringLinks(c.now().Add(c.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to get expiring links: %w", err)
	}

	c.logger.WithField("count", len(links)).Info("Starting link refresh")

	var (
		mu      sync.Mutex
		summary = &RefreshSummary{Checked: len(links)}
	)

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, link := range links {
		link := link
		g.Go(func() error {
			refreshed, err := c.RefreshLink(ctx, link)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Refreshed++
			case errors.Is(err, ErrLinkRemoved), errors.Is(err, ErrLinkReplaced):
				summary.Removed++
			case refreshed != nil && refreshed.Dead:
				summary.Dead++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	c.logger.WithFields(logrus.Fields{
		"checked":   summary.Checked,
		"refreshed": summary.Refreshed,
		"failed":    summary.Failed,
		"dead":      summary.Dead,
		"removed":   summary.Removed,
	}).Info("Link refresh completed")

	return summary, nil
}

// EnsureFresh returns the live links of a media item, refreshing first any
// link that expires within the lazy window. Refresh failures are recorded on
// the link but do not fail the read.
func (c *RefreshController) EnsureFresh(ctx context.Context, mediaID uint64) ([]*models.CachedLink, error) {
	links, err := c.store.GetLinksByMediaID(mediaID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	live := make([]*models.CachedLink, 0, len(links))
	for _, link := range links {
		if link.Dead {
			continue
		}
		if link.ExpiresWithin(now, c.cfg.LazyWindow) {
			refreshed, err := c.RefreshLink(ctx, link)
			if err != nil {
				c.logger.WithError(err).WithField("link_id", link.ID).Warn("Lazy refresh failed")
			}
			if refreshed == nil || refreshed.Dead {
				continue
			}
			link = refreshed
		}
		live = append(live, link)
	}
	return live, nil
}

// RefreshLink re-derives the URL of one link. Concurrent calls for the same
// link share a single provider call. The shared call is detached from the
// caller and bounded only by the refresh timeout: a caller that goes away
// gets its context error back while the refresh completes for the others.
//
// On success the URL is replaced, the expiry never moves backwards and the
// failure count resets. When the provider no longer has the cache the link
// is deleted. Any other failure, timeouts included, increments the failure
// count; at the configured maximum the link is marked dead. When a media
// item has no live link left it becomes unavailable.
func (c *RefreshController) RefreshLink(ctx context.Context, link *models.CachedLink) (*models.CachedLink, error) {
	if link.IsPermanent() {
		return link, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(link.ID, 10), func() (interface{}, error) {
		return c.refresh(shared, link.ID)
	})

	select {
	case res := <-ch:
		refreshed, _ := res.Val.(*models.CachedLink)
		return refreshed, res.Err
	case <-ctx.Done():
		return link, ctx.Err()
	}
}

func (c *RefreshController) refresh(ctx context.Context, linkID uint64) (*models.CachedLink, error) {
	link, err := c.store.GetLinkByID(linkID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: link %d", ErrLinkReplaced, linkID)
	}
	if err != nil {
		return nil, fmt.Errorf("load link %d: %w", linkID, err)
	}
	if link.IsPermanent() || link.Dead {
		return link, nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"link_id":  link.ID,
		"media_id": link.MediaItemID,
		"provider": link.Provider,
		"unit":     link.UnitKey(),
	})

	fresh, err := c.callProvider(ctx, link)
	if errors.Is(err, context.Canceled) {
		// not a provider failure, leave the link as it was
		return link, err
	}
	now := c.now()
	link.LastRefreshAttempt = &now

	if err == nil {
		link.URL = fresh.URL
		if fresh.FileRef != "" {
			link.FileRef = fresh.FileRef
		}
		link.ExpiresAt = laterExpiry(link.ExpiresAt, fresh.ExpiresAt)
		link.FailureCount = 0
		link.LastError = ""
		if err := c.store.UpdateLink(link); err != nil {
			return nil, c.updateFailed(link, err, log)
		}
		metrics.LinkRefreshesTotal.WithLabelValues(link.Provider, "refreshed").Inc()
		log.WithField("expires_at", link.ExpiresAt).Debug("Link refreshed")
		return link, nil
	}

	if errors.Is(err, debrid.ErrNotFound) {
		if derr := c.store.DeleteLink(link.ID); derr != nil {
			return nil, fmt.Errorf("delete link %d: %w", link.ID, derr)
		}
		metrics.LinkRefreshesTotal.WithLabelValues(link.Provider, "removed").Inc()
		log.WithError(err).Warn("Provider cache gone, link removed")
		c.checkAvailability(link.MediaItemID, "provider cache removed, no playable link left", log)
		return nil, fmt.Errorf("%w: %v", ErrLinkRemoved, err)
	}

	link.FailureCount++
	link.LastError = err.Error()
	if link.FailureCount >= c.cfg.MaxFailures {
		link.Dead = true
	}
	if uerr := c.store.UpdateLink(link); uerr != nil {
		return nil, c.updateFailed(link, uerr, log)
	}

	if link.Dead {
		metrics.LinkRefreshesTotal.WithLabelValues(link.Provider, "dead").Inc()
		log.WithError(err).WithField("failures", link.FailureCount).Warn("Link marked dead")
		c.checkAvailability(link.MediaItemID,
			fmt.Sprintf("link refresh failed %d times, no playable link left: %v", link.FailureCount, err), log)
	} else {
		metrics.LinkRefreshesTotal.WithLabelValues(link.Provider, "failed").Inc()
		log.WithError(err).WithField("failures", link.FailureCount).Warn("Link refresh failed")
	}

	return link, fmt.Errorf("refresh link %d: %w", link.ID, err)
}

// updateFailed maps a failed link write. A missing row means the link was
// replaced or deleted meanwhile, so the refresh result is dropped.
func (c *RefreshController) updateFailed(link *models.CachedLink, err error, log *logrus.Entry) error {
	if errors.Is(err, models.ErrNotFound) {
		metrics.LinkRefreshesTotal.WithLabelValues(link.Provider, "replaced").Inc()
		log.Info("Link replaced during refresh, result dropped")
		return fmt.Errorf("%w: link %d", ErrLinkReplaced, link.ID)
	}
	return fmt.Errorf("store link %d: %w", link.ID, err)
}

func (c *RefreshController) callProvider(ctx context.Context, link *models.CachedLink) (*debrid.Link, error) {
	provider, err := c.providers.Get(link.Provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ref := debrid.Ref{
		Cache: link.CacheRef,
		File:  link.FileRef,
		Unit:  Unit{Season: link.Season, Episode: link.Episode}.Selector(),
	}
	fresh, err := provider.RefreshLink(ctx, ref, link.URL)
	if err != nil {
		return nil, err
	}
	if fresh == nil || fresh.URL == "" {
		return nil, fmt.Errorf("%s returned an empty link", link.Provider)
	}
	return fresh, nil
}

// checkAvailability flips the media item to unavailable once no live link remains
func (c *RefreshController) checkAvailability(mediaID uint64, reason string, log *logrus.Entry) {
	count, err := c.store.CountLiveLinks(mediaID)
	if err != nil {
		log.WithError(err).Error("Failed to count live links")
		return
	}
	if count > 0 {
		return
	}
	if err := c.store.SetAvailability(mediaID, false, reason); err != nil {
		log.WithError(err).Error("Failed to mark media unavailable")
		return
	}
	log.WithField("reason", reason).Warn("Media no longer available")
}

// laterExpiry keeps expiry monotonic: a renewed link never expires earlier
// than the one it replaces. nil means no expiry.
func laterExpiry(current, renewed *time.Time) *time.Time {
	if current == nil || renewed == nil {
		return nil
	}
	if renewed.Before(*current) {
		return current
	}
	return renewed
}
