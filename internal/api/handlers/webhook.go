package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/amaumene/bridgarr/internal/controllers"
	"github.com/amaumene/bridgarr/internal/metrics"
	"github.com/amaumene/bridgarr/internal/models"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

// Notification kinds that start an acquisition
var acceptedKinds = map[string]bool{
	"approved":      true,
	"available":     true,
	"auto-approved": true,
}

// Submitter claims a media item and enqueues its acquisition job
type Submitter interface {
	Submit(ctx context.Context, req controllers.Request) (*controllers.SubmitResult, error)
}

// WebhookPayload is the Overseerr/Jellyseerr notification body
type WebhookPayload struct {
	NotificationType string          `json:"notification_type"`
	Subject          string          `json:"subject"`
	Media            *WebhookMedia   `json:"media"`
	Request          *WebhookRequest `json:"request"`
	Extra            []WebhookExtra  `json:"extra"`
}

// WebhookMedia describes the requested title
type WebhookMedia struct {
	MediaType      string   `json:"media_type"`
	TMDbID         flexInt  `json:"tmdbId"`
	SeasonNumber   *flexInt `json:"seasonNumber"`
	EpisodeNumbers flexInts `json:"episodeNumbers"`
}

// WebhookRequest carries the requester
type WebhookRequest struct {
	RequestedByUsername string `json:"requestedBy_username"`
}

// WebhookExtra is a free-form name/value pair
type WebhookExtra struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// WebhookResponse acknowledges a notification
type WebhookResponse struct {
	Status  string `json:"status"`
	MediaID uint64 `json:"media_id,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

// NormalizeNotificationType maps MEDIA_AUTO_APPROVED to auto-approved
func NormalizeNotificationType(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	kind = strings.TrimPrefix(kind, "media_")
	return strings.ReplaceAll(kind, "_", "-")
}

// ToRequest validates the media descriptor and builds an acquisition request
func (p *WebhookPayload) ToRequest() (controllers.Request, error) {
	if p.Media == nil {
		return controllers.Request{}, errors.New("missing media descriptor")
	}
	if p.Media.TMDbID <= 0 {
		return controllers.Request{}, errors.New("missing or invalid tmdbId")
	}
	kind, ok := models.ParseMediaKind(p.Media.MediaType)
	if !ok {
		return controllers.Request{}, fmt.Errorf("unsupported media_type %q", p.Media.MediaType)
	}

	req := controllers.Request{
		ExternalID: int64(p.Media.TMDbID),
		Kind:       kind,
	}
	if p.Request != nil {
		req.Requester = strings.TrimSpace(p.Request.RequestedByUsername)
	}
	if kind != models.MediaKindShow {
		return req, nil
	}

	if p.Media.SeasonNumber != nil && *p.Media.SeasonNumber > 0 {
		season := int(*p.Media.SeasonNumber)
		req.Season = &season
	} else if season, ok := p.requestedSeason(); ok {
		req.Season = &season
	}
	for _, e := range p.Media.EpisodeNumbers {
		if e > 0 {
			req.Episodes = append(req.Episodes, int(e))
		}
	}
	return req, nil
}

// requestedSeason reads the first season of the "Requested Seasons" extra
func (p *WebhookPayload) requestedSeason() (int, bool) {
	for _, extra := range p.Extra {
		if !strings.EqualFold(extra.Name, "Requested Seasons") {
			continue
		}
		for _, field := range strings.Split(extra.Value, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(field)); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// WebhookHandler receives request manager notifications
type WebhookHandler struct {
	submitter Submitter
	secret    string
	logger    *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables
// the Authorization check.
func NewWebhookHandler(submitter Submitter, secret string, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		submitter: submitter,
		secret:    secret,
		logger:    logger,
	}
}

// ServeHTTP handles the webhook endpoint
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && !h.authorized(r) {
		metrics.WebhooksTotal.WithLabelValues("unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		h.logger.WithError(err).Warn("Failed to decode webhook payload")
		metrics.WebhooksTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	kind := NormalizeNotificationType(payload.NotificationType)
	if !acceptedKinds[kind] {
		h.logger.WithField("notification_type", payload.NotificationType).Debug("Ignoring webhook notification")
		metrics.WebhooksTotal.WithLabelValues("ignored").Inc()
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	}

	req, err := payload.ToRequest()
	if err != nil {
		h.logger.WithError(err).WithField("notification_type", kind).Warn("Rejecting webhook")
		metrics.WebhooksTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"notification_type": kind,
		"external_id":       req.ExternalID,
		"kind":              req.Kind,
		"requester":         req.Requester,
	})

	result, err := h.submitter.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, controllers.ErrEnqueueFailed) {
			log.WithError(err).Error("Job queue rejected acquisition")
			metrics.WebhooksTotal.WithLabelValues("unavailable").Inc()
			writeError(w, http.StatusServiceUnavailable, "job queue unavailable")
			return
		}
		log.WithError(err).Error("Failed to submit acquisition")
		metrics.WebhooksTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to submit acquisition")
		return
	}

	metrics.WebhooksTotal.WithLabelValues(string(result.Status)).Inc()
	log.WithFields(logrus.Fields{
		"status":   result.Status,
		"media_id": result.MediaID,
	}).Info("Webhook processed")

	response := WebhookResponse{Status: string(result.Status)}
	if result.Status == controllers.SubmitQueued {
		response.MediaID = result.MediaID
		response.JobID = result.JobID
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	got = strings.TrimPrefix(got, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// WebhookTestHandler answers connectivity checks
func WebhookTestHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "bridgarr webhook endpoint is reachable",
	})
}

// flexInt accepts a JSON number or a numeric string; empty strings decode to 0
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", raw)
	}
	*n = flexInt(v)
	return nil
}

// flexInts accepts an array of numbers or numeric strings, or a comma
// separated string
type flexInts []flexInt

func (l *flexInts) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []flexInt
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}

	var items []flexInt
	for _, field := range strings.Split(strings.Trim(trimmed, `"`), ",") {
		field = strings.TrimSpace(field)
		if field == "" || field == "null" {
			continue
		}
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid episode number %q", field)
		}
		items = append(items, flexInt(v))
	}
	*l = items
	return nil
}
