package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxQueryLength  = 200
)

// LinkReader returns the playable links of a media item, refreshing the ones
// about to expire
type LinkReader interface {
	EnsureFresh(ctx context.Context, mediaID uint64) ([]*models.CachedLink, error)
}

// MediaStore is the read side of the store used by the media endpoints
type MediaStore interface {
	GetMediaByID(id uint64) (*models.MediaItem, error)
	ListMedias(opts models.ListOptions) ([]*models.MediaItem, int, error)
	GetLinkStats(now time.Time, window time.Duration) (*models.LinkStats, error)
}

// MediaListResponse is a page of media items
type MediaListResponse struct {
	Items  []*models.MediaItem `json:"items"`
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
}

// MediaLinksResponse lists the playable links of one media item
type MediaLinksResponse struct {
	MediaID     uint64               `json:"media_id"`
	IsAvailable bool                 `json:"is_available"`
	Error       string               `json:"error,omitempty"`
	Links       []*models.CachedLink `json:"links"`
}

// MediaHandler serves the read API
type MediaHandler struct {
	store       MediaStore
	links       LinkReader
	statsWindow time.Duration
	logger      *logrus.Logger
}

// NewMediaHandler creates a new media handler. statsWindow is the horizon
// used to count links expiring soon.
func NewMediaHandler(store MediaStore, links LinkReader, statsWindow time.Duration, logger *logrus.Logger) *MediaHandler {
	return &MediaHandler{
		store:       store,
		links:       links,
		statsWindow: statsWindow,
		logger:      logger,
	}
}

// Router mounts the media endpoints
func (h *MediaHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/links", h.getLinks)
	return r
}

func (h *MediaHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := models.ListOptions{Limit: defaultPageSize}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		opts.Offset = offset
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = min(limit, maxPageSize)
	}
	if raw := q.Get("kind"); raw != "" {
		kind, ok := models.ParseMediaKind(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "kind must be movie or show")
			return
		}
		opts.Kind = kind
	}
	if raw := q.Get("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "available must be a boolean")
			return
		}
		opts.Available = &available
	}
	if raw := strings.TrimSpace(q.Get("q")); raw != "" {
		if len(raw) > maxQueryLength {
			writeError(w, http.StatusBadRequest, "q is too long")
			return
		}
		opts.Query = raw
	}

	items, total, err := h.store.ListMedias(opts)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list medias")
		writeError(w, http.StatusInternalServerError, "failed to list media")
		return
	}
	if items == nil {
		items = []*models.MediaItem{}
	}

	writeJSON(w, http.StatusOK, MediaListResponse{
		Items:  items,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	})
}

func (h *MediaHandler) get(w http.ResponseWriter, r *http.Request) {
	media, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, media)
}

func (h *MediaHandler) getLinks(w http.ResponseWriter, r *http.Request) {
	media, ok := h.loadMedia(w, r)
	if !ok {
		return
	}

	links, err := h.links.EnsureFresh(r.Context(), media.ID)
	if err != nil {
		h.logger.WithError(err).WithField("media_id", media.ID).Error("Failed to load links")
		writeError(w, http.StatusInternalServerError, "failed to load links")
		return
	}

	// a lazy refresh may have changed availability
	if current, err := h.store.GetMediaByID(media.ID); err == nil {
		media = current
	}
	if links == nil {
		links = []*models.CachedLink{}
	}

	writeJSON(w, http.StatusOK, MediaLinksResponse{
		MediaID:     media.ID,
		IsAvailable: media.IsAvailable,
		Error:       media.ErrorMessage,
		Links:       links,
	})
}

// Stats summarizes the link cache
func (h *MediaHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetLinkStats(time.Now(), h.statsWindow)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute link stats")
		writeError(w, http.StatusInternalServerError, "failed to compute link stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *MediaHandler) loadMedia(w http.ResponseWriter, r *http.Request) (*models.MediaItem, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return nil, false
	}

	media, err := h.store.GetMediaByID(id)
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "media item not found")
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).WithField("media_id", id).Error("Failed to load media")
		writeError(w, http.StatusInternalServerError, "failed to load media")
		return nil, false
	}
	return media, true
}
