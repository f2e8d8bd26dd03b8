package controllers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/amaumene/bridgarr/internal/metrics"
	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/queue"
	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/amaumene/bridgarr/internal/services/tmdb"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amaumene/bridgarr/internal/controllers"

var (
	// ErrSourceNotFound is recorded when no acquirable source exists
	ErrSourceNotFound = errors.New("source not found")
	// ErrCacheFailed is returned when the provider gives up on a cache
	ErrCacheFailed = errors.New("provider failed to cache source")
	// ErrEnqueueFailed is returned by Submit when the job queue rejects the job
	ErrEnqueueFailed = errors.New("failed to enqueue acquisition job")
	// ErrJobPanicked is recorded when a job crashed
	ErrJobPanicked = errors.New("acquisition job panicked")
)

// MetadataProvider looks up descriptive metadata for a title
type MetadataProvider interface {
	Lookup(ctx context.Context, id int64, kind models.MediaKind) (*tmdb.Details, error)
}

// ProviderSelector picks the debrid provider serving a requester
type ProviderSelector interface {
	ForRequester(requester string) (debrid.Provider, error)
}

// Request is a normalized acquisition request
type Request struct {
	ExternalID int64
	Kind       models.MediaKind
	Season     *int
	Episodes   []int
	Requester  string
}

// SubmitStatus is the outcome of Submit
type SubmitStatus string

const (
	SubmitQueued           SubmitStatus = "queued"
	SubmitDuplicate        SubmitStatus = "duplicate"
	SubmitAlreadyAvailable SubmitStatus = "already-available"
)

// SubmitResult describes what Submit did
type SubmitResult struct {
	Status  SubmitStatus
	MediaID uint64
	JobID   string
}

// AcquisitionConfig holds the acquisition tunables
type AcquisitionConfig struct {
	JobLease          time.Duration
	MetadataTimeout   time.Duration
	MaxEpisodesPerJob int
}

// AcquisitionController claims media items, enqueues jobs and runs each job
// through the acquisition state machine
type AcquisitionController struct {
	store     models.Store
	queue     queue.Queue
	metadata  MetadataProvider
	search    *SearchController
	download  *DownloadController
	providers ProviderSelector
	cfg       AcquisitionConfig
	tracer    trace.Tracer
	logger    *logrus.Logger
}

// NewAcquisitionController creates a new acquisition controller
func NewAcquisitionController(store models.Store, q queue.Queue, metadata MetadataProvider, search *SearchController, download *DownloadController, providers ProviderSelector, cfg AcquisitionConfig, logger *logrus.Logger) *AcquisitionController {
	return &AcquisitionController{
		store:     store,
		queue:     q,
		metadata:  metadata,
		search:    search,
		download:  download,
		providers: providers,
		cfg:       cfg,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// SetTracer replaces the tracer used for job spans
func (c *AcquisitionController) SetTracer(tracer trace.Tracer) {
	c.tracer = tracer
}

// Submit claims the media item for a new job and enqueues it. It performs no
// upstream call; a duplicate request while a job is active is not an error.
func (c *AcquisitionController) Submit(ctx context.Context, req Request) (*SubmitResult, error) {
	if req.ExternalID <= 0 {
		return nil, fmt.Errorf("invalid external id %d", req.ExternalID)
	}

	jobID := queue.NewJobID()
	claim, err := c.store.TryAcquireLock(req.ExternalID, req.Kind, jobID, req.Requester, c.cfg.JobLease)
	if err != nil {
		return nil, err
	}
	media := claim.Media

	log := c.logger.WithFields(logrus.Fields{
		"media_id":    media.ID,
		"external_id": req.ExternalID,
		"kind":        req.Kind,
	})

	if !claim.Acquired {
		log.WithField("active_job_id", media.ActiveJobID).Info("Acquisition already in progress")
		return &SubmitResult{Status: SubmitDuplicate, MediaID: media.ID, JobID: media.ActiveJobID}, nil
	}

	if media.Kind == models.MediaKindMovie && media.IsAvailable && !claim.Created {
		media.JobStatus = models.JobStatusDone
		if err := c.store.UpdateMediaForJob(media, jobID); err != nil {
			log.WithError(err).Warn("Failed to restore job status")
		}
		c.release(media.ID, jobID, log)
		log.Info("Movie already available")
		return &SubmitResult{Status: SubmitAlreadyAvailable, MediaID: media.ID}, nil
	}

	job := &queue.Job{
		ID:         jobID,
		MediaID:    media.ID,
		ExternalID: req.ExternalID,
		Kind:       req.Kind,
		Season:     req.Season,
		Episodes:   req.Episodes,
		Requester:  req.Requester,
		Attempt:    1,
	}
	if err := c.queue.Enqueue(ctx, job); err != nil {
		media.JobStatus = models.JobStatusFailed
		if uerr := c.store.UpdateMediaForJob(media, jobID); uerr != nil {
			log.WithError(uerr).Warn("Failed to record enqueue failure")
		} else {
			c.settle(media.ID, fmt.Sprintf("job queue unavailable: %v", err), log)
		}
		c.release(media.ID, jobID, log)
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	log.WithFields(logrus.Fields{
		"job_id":  jobID,
		"created": claim.Created,
	}).Info("Acquisition job queued")

	return &SubmitResult{Status: SubmitQueued, MediaID: media.ID, JobID: jobID}, nil
}

type jobRun struct {
	job   *queue.Job
	media *models.MediaItem
	log   *logrus.Entry
}

// Run executes one job: resolving-metadata, resolving-source, caching,
// linking, then done. Every transition is written to the media item before
// the step starts, any failure is recorded on it, and the claim is always
// released on return.
func (c *AcquisitionController) Run(ctx context.Context, job *queue.Job) (err error) {
	ctx, span := c.tracer.Start(ctx, "acquisition.run", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int64("media.external_id", job.ExternalID),
		attribute.String("media.kind", string(job.Kind)),
	))
	defer span.End()

	run := &jobRun{
		job: job,
		log: c.logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"media_id": job.MediaID,
		}),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
			run.log.WithField("stack", string(debug.Stack())).Error("Acquisition job panicked")
			if run.media != nil {
				c.fail(run, err)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.release(job.MediaID, job.ID, run.log)
	}()

	media, err := c.store.GetMediaByID(job.MediaID)
	if err != nil {
		return fmt.Errorf("load media %d: %w", job.MediaID, err)
	}
	run.media = media

	run.log.WithFields(logrus.Fields{
		"external_id": job.ExternalID,
		"kind":        job.Kind,
		"requester":   job.Requester,
	}).Info("Acquisition started")

	var details *tmdb.Details
	err = c.step(ctx, run, models.JobStatusResolvingMetadata, func(ctx context.Context) error {
		var err error
		details, err = c.resolveMetadata(ctx, run)
		return err
	})
	if err != nil {
		return c.abort(run, err)
	}

	plan, err := BuildPlan(job.Kind, details, job.Season, job.Episodes, c.cfg.MaxEpisodesPerJob)
	if err != nil {
		return c.abort(run, err)
	}

	var sources *Sources
	err = c.step(ctx, run, models.JobStatusResolvingSource, func(ctx context.Context) error {
		var err error
		sources, err = c.search.ResolveSources(ctx, run.media, plan)
		return err
	})
	if err != nil {
		return c.abort(run, err)
	}

	var (
		provider  debrid.Provider
		cacheRefs map[string]string
	)
	err = c.step(ctx, run, models.JobStatusCaching, func(ctx context.Context) error {
		var err error
		provider, err = c.providers.ForRequester(job.Requester)
		if err != nil {
			return err
		}
		cacheRefs, err = c.cacheSources(ctx, run, provider, sources)
		return err
	})
	if err != nil {
		return c.abort(run, err)
	}

	var missing []Unit
	err = c.step(ctx, run, models.JobStatusLinking, func(ctx context.Context) error {
		var err error
		missing, err = c.linkUnits(ctx, run, provider, plan, sources, cacheRefs)
		return err
	})
	if err != nil {
		return c.abort(run, err)
	}

	run.media.JobStatus = models.JobStatusDone
	if err := c.store.UpdateMediaForJob(run.media, job.ID); err != nil {
		return c.abort(run, fmt.Errorf("persist %s: %w", models.JobStatusDone, err))
	}
	message := partialMessage(missing, plan.Truncated)
	available := c.settle(run.media.ID, message, run.log)

	outcome := "done"
	if message != "" {
		outcome = "partial"
	}
	metrics.AcquisitionsTotal.WithLabelValues(outcome).Inc()

	run.log.WithFields(logrus.Fields{
		"title":     run.media.Title,
		"available": available,
		"linked":  len(plan.Units) - len(missing),
		"missing": len(missing),
	}).Info("Acquisition completed")
	return nil
}

// step persists the transition into status, then runs fn under its own span
func (c *AcquisitionController) step(ctx context.Context, run *jobRun, status models.JobStatus, fn func(ctx context.Context) error) error {
	run.media.JobStatus = status
	if err := c.store.UpdateMediaForJob(run.media, run.job.ID); err != nil {
		return fmt.Errorf("persist %s: %w", status, err)
	}

	ctx, span := c.tracer.Start(ctx, "acquisition."+string(status))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.AcquisitionStepDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.log.WithError(err).WithField("step", status).Warn("Acquisition step failed")
		return err
	}
	run.log.WithField("step", status).Debug("Acquisition step completed")
	return nil
}

// abort records err on the media item unless the claim was lost, in which
// case another job owns the item and nothing may be written
func (c *AcquisitionController) abort(run *jobRun, err error) error {
	if errors.Is(err, models.ErrLockNotHeld) {
		run.log.WithError(err).Error("Acquisition claim lost, abandoning job")
		metrics.AcquisitionsTotal.WithLabelValues("abandoned").Inc()
		return err
	}
	c.fail(run, err)
	return err
}

func (c *AcquisitionController) fail(run *jobRun, err error) {
	run.media.JobStatus = models.JobStatusFailed
	if uerr := c.store.UpdateMediaForJob(run.media, run.job.ID); uerr != nil {
		run.log.WithError(uerr).Error("Failed to record acquisition failure")
	} else {
		c.settle(run.media.ID, err.Error(), run.log)
	}
	metrics.AcquisitionsTotal.WithLabelValues("failed").Inc()
	run.log.WithError(err).Warn("Acquisition failed")
}

// settle records message on the media item and derives its availability
// from the links alive right now, never from the job's own copy
func (c *AcquisitionController) settle(mediaID uint64, message string, log *logrus.Entry) bool {
	live, err := c.store.CountLiveLinks(mediaID)
	if err != nil {
		log.WithError(err).Error("Failed to count live links")
		return false
	}
	if err := c.store.SetAvailability(mediaID, live > 0, message); err != nil {
		log.WithError(err).Error("Failed to record availability")
	}
	return live > 0
}

func (c *AcquisitionController) release(mediaID uint64, jobID string, log *logrus.Entry) {
	if err := c.store.ReleaseLock(mediaID, jobID); err != nil {
		if errors.Is(err, models.ErrLockNotHeld) {
			log.WithError(err).Error("Acquisition claim was taken over before release")
			return
		}
		log.WithError(err).Error("Failed to release acquisition claim")
	}
}

func (c *AcquisitionController) resolveMetadata(ctx context.Context, run *jobRun) (*tmdb.Details, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.MetadataTimeout)
	defer cancel()

	details, err := c.metadata.Lookup(ctx, run.job.ExternalID, run.job.Kind)
	if err != nil {
		if run.media.Title == "" {
			run.media.Title = placeholderTitle(run.job.ExternalID)
		}
		return nil, fmt.Errorf("metadata lookup failed: %w", err)
	}

	run.media.Title = details.Title
	run.media.Overview = details.Overview
	run.media.PosterURL = details.PosterURL
	run.media.ReleaseDate = details.ReleaseDate
	run.media.Year = details.Year
	run.media.IMDbID = details.IMDbID
	return details, nil
}

// cacheSources caches every distinct release once, keyed by info hash
func (c *AcquisitionController) cacheSources(ctx context.Context, run *jobRun, provider debrid.Provider, sources *Sources) (map[string]string, error) {
	var (
		hashes   []string
		releases = make(map[string]*models.Release)
	)
	for _, release := range sources.ByUnit {
		if _, ok := releases[release.InfoHash]; !ok {
			hashes = append(hashes, release.InfoHash)
			releases[release.InfoHash] = release
		}
	}
	sort.Strings(hashes)

	cacheRefs := make(map[string]string, len(hashes))
	var lastErr error
	for _, hash := range hashes {
		if err := c.store.RenewLock(run.media.ID, run.job.ID); err != nil {
			return nil, err
		}
		ref, err := c.download.CacheSource(ctx, provider, releases[hash])
		if err != nil {
			if isJobFatal(err) {
				return nil, err
			}
			run.log.WithError(err).WithField("info_hash", hash).Warn("Caching failed")
			lastErr = err
			continue
		}
		cacheRefs[hash] = ref
	}

	if len(cacheRefs) == 0 {
		return nil, lastErr
	}
	return cacheRefs, nil
}

// linkUnits stores a link for every unit with a ready cache and returns the
// units left without one
func (c *AcquisitionController) linkUnits(ctx context.Context, run *jobRun, provider debrid.Provider, plan *Plan, sources *Sources, cacheRefs map[string]string) ([]Unit, error) {
	var (
		missing []Unit
		linked  int
		lastErr error
	)
	for _, unit := range plan.Units {
		release, ok := sources.ByUnit[unit.Key()]
		if !ok {
			missing = append(missing, unit)
			continue
		}
		ref, ok := cacheRefs[release.InfoHash]
		if !ok {
			missing = append(missing, unit)
			continue
		}

		if _, err := c.download.LinkUnit(ctx, provider, run.media, run.job.ID, unit, ref); err != nil {
			if isJobFatal(err) {
				return nil, err
			}
			run.log.WithError(err).WithField("unit", unit.Key()).Warn("Linking failed")
			lastErr = err
			missing = append(missing, unit)
			continue
		}
		linked++
	}

	if linked == 0 {
		if lastErr == nil {
			lastErr = ErrSourceNotFound
		}
		return nil, fmt.Errorf("no playable link generated: %w", lastErr)
	}
	return missing, nil
}

func placeholderTitle(externalID int64) string {
	return fmt.Sprintf("Unknown (TMDb %d)", externalID)
}

func partialMessage(missing []Unit, truncated int) string {
	if len(missing) == 0 && truncated == 0 {
		return ""
	}
	var parts []string
	if len(missing) > 0 {
		keys := make([]string, len(missing))
		for i, unit := range missing {
			keys[i] = unit.Key()
		}
		parts = append(parts, "unavailable episodes: "+strings.Join(keys, ", "))
	}
	if truncated > 0 {
		parts = append(parts, fmt.Sprintf("%d episodes over the per-job limit were not requested", truncated))
	}
	return strings.Join(parts, "; ")
}
