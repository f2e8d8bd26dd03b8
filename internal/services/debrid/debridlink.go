package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	debridLinkAPIBase      = "https://debrid-link.com/api/v2"
	debridLinkLinkLifetime = 24 * time.Hour
)

// DebridLinkClient talks to the Debrid-Link v2 seedbox API. Seedbox files
// carry their download URL directly, no unrestrict step is needed.
type DebridLinkClient struct {
	api          *apiClient
	linkLifetime time.Duration
}

var _ Provider = (*DebridLinkClient)(nil)

type debridLinkResponse[T any] struct {
	Success bool   `json:"success"`
	Value   T      `json:"value"`
	Error   string `json:"error,omitempty"`
}

type debridLinkAccount struct {
	Pseudo      string `json:"pseudo"`
	AccountType int    `json:"accountType"`
	PremiumLeft int64  `json:"premiumLeft"`
}

type debridLinkFile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	DownloadURL     string `json:"downloadUrl"`
	DownloadPercent int    `json:"downloadPercent"`
}

type debridLinkTorrent struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	HashString      string           `json:"hashString"`
	Status          int              `json:"status"`
	DownloadPercent float64          `json:"downloadPercent"`
	Files           []debridLinkFile `json:"files"`
}

// NewDebridLinkClient creates a Debrid-Link client
func NewDebridLinkClient(token string, logger *logrus.Logger, opts ...Option) (*DebridLinkClient, error) {
	if token == "" {
		return nil, fmt.Errorf("Debrid-Link API token is required")
	}

	o := buildOptions(options{
		baseURL:      debridLinkAPIBase,
		linkLifetime: debridLinkLinkLifetime,
	}, append([]Option{WithRateLimit(5, 5)}, opts...))

	api := newAPIClient(ProviderDebridLink, o, logger)
	api.authorize = bearer(token)
	api.mapError = func(status int, body []byte) error {
		var envelope debridLinkResponse[json.RawMessage]
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
			return nil
		}
		return debridLinkError(status, envelope.Error)
	}

	return &DebridLinkClient{api: api, linkLifetime: o.linkLifetime}, nil
}

func debridLinkError(status int, code string) error {
	var sentinel error
	switch code {
	case "badToken", "expired_token", "unauthorized_client", "accountLocked", "notDebrid":
		sentinel = ErrInvalidToken
	case "maxLink", "maxLinkHost", "maxData", "maxDataHost", "maxTorrent", "freeServerOverload", "needPremium":
		sentinel = ErrQuotaExceeded
	case "fileNotFound", "notFound", "torrentNotFound":
		sentinel = ErrNotFound
	case "serverNotAvailable", "internalError", "floodDetected", "disabledServerHost":
		sentinel = ErrProviderUnavailable
	case "badArguments", "notAddTorrent", "torrentTooBig", "hostNotValid", "badFileUrl":
		sentinel = ErrInvalidReference
	default:
		sentinel = errorForStatus(status)
	}
	return newAPIError(ProviderDebridLink, status, code, "", sentinel)
}

func checkDebridLink[T any](resp *debridLinkResponse[T]) error {
	if resp.Success {
		return nil
	}
	return debridLinkError(200, resp.Error)
}

// Name returns the provider tag
func (c *DebridLinkClient) Name() string {
	return ProviderDebridLink
}

// ValidateToken checks the token and requires remaining premium time
func (c *DebridLinkClient) ValidateToken(ctx context.Context) (bool, error) {
	var resp debridLinkResponse[debridLinkAccount]
	err := c.api.get(ctx, "/account/infos", nil, &resp)
	if err == nil {
		err = checkDebridLink(&resp)
	}
	if err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Value.PremiumLeft > 0, nil
}

// SubmitSource adds the magnet to the seedbox
func (c *DebridLinkClient) SubmitSource(ctx context.Context, source Source) (string, error) {
	if source.Magnet == "" {
		return "", newAPIError(ProviderDebridLink, 0, "", "empty magnet", ErrInvalidReference)
	}

	var resp debridLinkResponse[debridLinkTorrent]
	form := url.Values{"url": {source.Magnet}, "async": {"true"}}
	if err := c.api.postForm(ctx, "/seedbox/add", nil, form, &resp); err != nil {
		return "", err
	}
	if err := checkDebridLink(&resp); err != nil {
		return "", err
	}

	c.api.logger.WithFields(logrus.Fields{
		"provider":   ProviderDebridLink,
		"torrent_id": resp.Value.ID,
	}).Info("Submitted magnet to Debrid-Link")
	return resp.Value.ID, nil
}

func (c *DebridLinkClient) torrent(ctx context.Context, id string) (*debridLinkTorrent, error) {
	var resp debridLinkResponse[[]debridLinkTorrent]
	if err := c.api.get(ctx, "/seedbox/list", url.Values{"ids": {id}}, &resp); err != nil {
		return nil, err
	}
	if err := checkDebridLink(&resp); err != nil {
		return nil, err
	}
	for i := range resp.Value {
		if resp.Value[i].ID == id {
			return &resp.Value[i], nil
		}
	}
	return nil, newAPIError(ProviderDebridLink, 0, "", "torrent "+id+" not found", ErrNotFound)
}

// GetCacheStatus normalizes the seedbox status
func (c *DebridLinkClient) GetCacheStatus(ctx context.Context, cacheRef string) (CacheStatus, error) {
	torrent, err := c.torrent(ctx, cacheRef)
	if err != nil {
		return "", err
	}
	return mapDebridLinkStatus(torrent.Status), nil
}

func mapDebridLinkStatus(status int) CacheStatus {
	switch status {
	case 0:
		return StatusQueued
	case 1:
		return StatusDownloading
	case 2:
		return StatusReady
	default:
		// 3 error, 4 virus and anything new
		return StatusError
	}
}

// GenerateLink returns the download URL of the selected file
func (c *DebridLinkClient) GenerateLink(ctx context.Context, cacheRef string, selector FileSelector) (*Link, error) {
	torrent, err := c.torrent(ctx, cacheRef)
	if err != nil {
		return nil, err
	}
	if mapDebridLinkStatus(torrent.Status) != StatusReady {
		return nil, newAPIError(ProviderDebridLink, 0, fmt.Sprint(torrent.Status), "torrent not downloaded", ErrNotReady)
	}

	files := make([]fileCandidate, 0, len(torrent.Files))
	for _, f := range torrent.Files {
		if f.DownloadURL == "" {
			continue
		}
		files = append(files, fileCandidate{ID: f.ID, Path: f.Name, Size: f.Size, Link: f.DownloadURL})
	}
	file, err := selectFile(files, selector)
	if err != nil {
		return nil, err
	}
	return c.link(file), nil
}

// RefreshLink reads the current download URL of the stored file
func (c *DebridLinkClient) RefreshLink(ctx context.Context, ref Ref, existingURL string) (*Link, error) {
	if ref.File == "" {
		return c.GenerateLink(ctx, ref.Cache, ref.Unit)
	}

	torrent, err := c.torrent(ctx, ref.Cache)
	if err != nil {
		return nil, err
	}
	for _, f := range torrent.Files {
		if f.ID == ref.File && f.DownloadURL != "" {
			return c.link(fileCandidate{ID: f.ID, Path: f.Name, Size: f.Size, Link: f.DownloadURL}), nil
		}
	}
	return nil, newAPIError(ProviderDebridLink, 0, "", "file "+ref.File+" not found", ErrNotFound)
}

func (c *DebridLinkClient) link(file fileCandidate) *Link {
	return &Link{
		URL:       file.Link,
		ExpiresAt: expiry(time.Now(), c.linkLifetime),
		FileRef:   file.ID,
		FileName:  file.Path,
		Size:      file.Size,
	}
}
