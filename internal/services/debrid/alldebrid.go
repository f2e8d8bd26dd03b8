package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	allDebridAPIBase      = "https://api.alldebrid.com/v4"
	allDebridAgent        = "bridgarr"
	allDebridLinkLifetime = 4 * time.Hour
)

// AllDebridClient talks to the AllDebrid v4 API. Errors come back as HTTP
// 200 with an error envelope, so every response goes through checkEnvelope.
type AllDebridClient struct {
	api          *apiClient
	linkLifetime time.Duration
}

var _ Provider = (*AllDebridClient)(nil)

type allDebridResponse[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type allDebridUser struct {
	User struct {
		Username  string `json:"username"`
		IsPremium bool   `json:"isPremium"`
	} `json:"user"`
}

type allDebridUpload struct {
	Magnets []struct {
		ID    int    `json:"id"`
		Hash  string `json:"hash"`
		Name  string `json:"name"`
		Ready bool   `json:"ready"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"magnets"`
}

type allDebridLink struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type allDebridMagnetStatus struct {
	ID         int             `json:"id"`
	Filename   string          `json:"filename"`
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Links      []allDebridLink `json:"links"`
}

type allDebridStatusData struct {
	Magnets json.RawMessage `json:"magnets"`
}

type allDebridUnlock struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// NewAllDebridClient creates an AllDebrid client
func NewAllDebridClient(token string, logger *logrus.Logger, opts ...Option) (*AllDebridClient, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("AllDebrid API token is required")
	}

	o := buildOptions(options{
		baseURL:      allDebridAPIBase,
		linkLifetime: allDebridLinkLifetime,
	}, append([]Option{WithRateLimit(10, 10)}, opts...))

	api := newAPIClient(ProviderAllDebrid, o, logger)
	api.authorize = bearer(token)
	api.mapError = func(status int, body []byte) error {
		var envelope allDebridResponse[json.RawMessage]
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
			return nil
		}
		return allDebridError(status, envelope.Error.Code, envelope.Error.Message)
	}

	return &AllDebridClient{api: api, linkLifetime: o.linkLifetime}, nil
}

func allDebridError(status int, code, message string) error {
	var sentinel error
	switch {
	case strings.HasPrefix(code, "AUTH_"):
		sentinel = ErrInvalidToken
	case strings.Contains(code, "PREMIUM"), strings.Contains(code, "TOO_MANY"), strings.Contains(code, "LIMIT"):
		sentinel = ErrQuotaExceeded
	case code == "MAGNET_INVALID_ID", code == "LINK_DOWN", code == "LINK_IS_MISSING":
		sentinel = ErrNotFound
	case code == "GENERIC", code == "MAINTENANCE", code == "LINK_HOST_UNAVAILABLE", strings.HasSuffix(code, "_UNAVAILABLE"):
		sentinel = ErrProviderUnavailable
	case strings.HasPrefix(code, "MAGNET_"), strings.HasPrefix(code, "LINK_"):
		sentinel = ErrInvalidReference
	default:
		sentinel = errorForStatus(status)
	}
	return newAPIError(ProviderAllDebrid, status, code, message, sentinel)
}

func (c *AllDebridClient) query(extra url.Values) url.Values {
	q := url.Values{"agent": {allDebridAgent}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

func checkEnvelope[T any](resp *allDebridResponse[T]) error {
	if resp.Status == "success" {
		return nil
	}
	if resp.Error != nil {
		return allDebridError(200, resp.Error.Code, resp.Error.Message)
	}
	return newAPIError(ProviderAllDebrid, 200, "", "unexpected status "+resp.Status, ErrProviderUnavailable)
}

// Name returns the provider tag
func (c *AllDebridClient) Name() string {
	return ProviderAllDebrid
}

// ValidateToken checks the key and requires a premium account
func (c *AllDebridClient) ValidateToken(ctx context.Context) (bool, error) {
	var resp allDebridResponse[allDebridUser]
	if err := c.api.get(ctx, "/user", c.query(nil), &resp); err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	if err := checkEnvelope(&resp); err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Data.User.IsPremium, nil
}

// SubmitSource uploads the magnet
func (c *AllDebridClient) SubmitSource(ctx context.Context, source Source) (string, error) {
	if source.Magnet == "" {
		return "", newAPIError(ProviderAllDebrid, 0, "", "empty magnet", ErrInvalidReference)
	}

	var resp allDebridResponse[allDebridUpload]
	form := url.Values{"magnets[]": {source.Magnet}}
	if err := c.api.postForm(ctx, "/magnet/upload", c.query(nil), form, &resp); err != nil {
		return "", err
	}
	if err := checkEnvelope(&resp); err != nil {
		return "", err
	}
	if len(resp.Data.Magnets) == 0 {
		return "", newAPIError(ProviderAllDebrid, 0, "", "no magnet returned", ErrProviderUnavailable)
	}

	magnet := resp.Data.Magnets[0]
	if magnet.Error != nil {
		return "", allDebridError(200, magnet.Error.Code, magnet.Error.Message)
	}

	id := strconv.Itoa(magnet.ID)
	c.api.logger.WithFields(logrus.Fields{
		"provider":  ProviderAllDebrid,
		"magnet_id": id,
		"ready":     magnet.Ready,
	}).Info("Submitted magnet to AllDebrid")
	return id, nil
}

func (c *AllDebridClient) magnetStatus(ctx context.Context, id string) (*allDebridMagnetStatus, error) {
	var resp allDebridResponse[allDebridStatusData]
	if err := c.api.get(ctx, "/magnet/status", c.query(url.Values{"id": {id}}), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(&resp); err != nil {
		return nil, err
	}

	// a single id yields an object, older deployments still wrap it in an array
	raw := resp.Data.Magnets
	var status allDebridMagnetStatus
	if len(raw) > 0 && raw[0] == '[' {
		var list []allDebridMagnetStatus
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, newAPIError(ProviderAllDebrid, 0, "", "failed to decode magnet status", ErrProviderUnavailable)
		}
		if len(list) == 0 {
			return nil, newAPIError(ProviderAllDebrid, 0, "", "magnet "+id+" not found", ErrNotFound)
		}
		status = list[0]
	} else if err := json.Unmarshal(raw, &status); err != nil {
		return nil, newAPIError(ProviderAllDebrid, 0, "", "failed to decode magnet status", ErrProviderUnavailable)
	}
	return &status, nil
}

// GetCacheStatus normalizes the magnet status code
func (c *AllDebridClient) GetCacheStatus(ctx context.Context, cacheRef string) (CacheStatus, error) {
	status, err := c.magnetStatus(ctx, cacheRef)
	if err != nil {
		return "", err
	}
	return mapAllDebridStatus(status.StatusCode), nil
}

func mapAllDebridStatus(code int) CacheStatus {
	switch code {
	case 0:
		return StatusQueued
	case 1:
		return StatusDownloading
	case 2, 3:
		return StatusProcessing
	case 4:
		return StatusReady
	case 11:
		return StatusDead
	default:
		// 5-10 are upload, unpacking, size and timeout failures
		return StatusError
	}
}

// GenerateLink unlocks the hoster link of the selected file
func (c *AllDebridClient) GenerateLink(ctx context.Context, cacheRef string, selector FileSelector) (*Link, error) {
	status, err := c.magnetStatus(ctx, cacheRef)
	if err != nil {
		return nil, err
	}
	if mapAllDebridStatus(status.StatusCode) != StatusReady {
		return nil, newAPIError(ProviderAllDebrid, 0, strconv.Itoa(status.StatusCode), status.Status, ErrNotReady)
	}

	files := make([]fileCandidate, 0, len(status.Links))
	for _, l := range status.Links {
		files = append(files, fileCandidate{ID: l.Link, Path: l.Filename, Size: l.Size, Link: l.Link})
	}
	file, err := selectFile(files, selector)
	if err != nil {
		return nil, err
	}
	return c.unlock(ctx, file.Link)
}

// RefreshLink unlocks the stored hoster link again
func (c *AllDebridClient) RefreshLink(ctx context.Context, ref Ref, existingURL string) (*Link, error) {
	if ref.File == "" {
		return c.GenerateLink(ctx, ref.Cache, ref.Unit)
	}
	return c.unlock(ctx, ref.File)
}

func (c *AllDebridClient) unlock(ctx context.Context, hosterLink string) (*Link, error) {
	var resp allDebridResponse[allDebridUnlock]
	if err := c.api.get(ctx, "/link/unlock", c.query(url.Values{"link": {hosterLink}}), &resp); err != nil {
		return nil, err
	}
	if err := checkEnvelope(&resp); err != nil {
		return nil, err
	}
	if resp.Data.Link == "" {
		return nil, newAPIError(ProviderAllDebrid, 0, "", "empty unlocked link", ErrProviderUnavailable)
	}

	return &Link{
		URL:       resp.Data.Link,
		ExpiresAt: expiry(time.Now(), c.linkLifetime),
		FileRef:   hosterLink,
		FileName:  resp.Data.Filename,
		Size:      resp.Data.Filesize,
	}, nil
}
