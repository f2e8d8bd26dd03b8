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
	realDebridAPIBase      = "https://api.real-debrid.com/rest/1.0"
	realDebridLinkLifetime = 4 * time.Hour
)

// RealDebridClient talks to the Real-Debrid REST API. Torrents need an
// explicit file selection before they start downloading and unrestricted
// links expire after a few hours.
type RealDebridClient struct {
	api          *apiClient
	linkLifetime time.Duration
}

var _ Provider = (*RealDebridClient)(nil)

type realDebridError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

type realDebridUser struct {
	Username   string `json:"username"`
	Type       string `json:"type"`
	Premium    int    `json:"premium"`
	Expiration string `json:"expiration"`
}

type realDebridTorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

type realDebridTorrent struct {
	ID       string                  `json:"id"`
	Filename string                  `json:"filename"`
	Hash     string                  `json:"hash"`
	Status   string                  `json:"status"`
	Progress float64                 `json:"progress"`
	Files    []realDebridTorrentFile `json:"files"`
	Links    []string                `json:"links"`
}

type realDebridUnrestricted struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Link     string `json:"link"`
	Download string `json:"download"`
}

// NewRealDebridClient creates a Real-Debrid client
func NewRealDebridClient(token string, logger *logrus.Logger, opts ...Option) (*RealDebridClient, error) {
	if token == "" {
		return nil, fmt.Errorf("Real-Debrid API token is required")
	}

	o := buildOptions(options{
		baseURL:      realDebridAPIBase,
		linkLifetime: realDebridLinkLifetime,
	}, append([]Option{WithRateLimit(4, 10)}, opts...))

	api := newAPIClient(ProviderRealDebrid, o, logger)
	api.authorize = bearer(token)
	api.mapError = mapRealDebridError

	return &RealDebridClient{api: api, linkLifetime: o.linkLifetime}, nil
}

func mapRealDebridError(status int, body []byte) error {
	var apiErr realDebridError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error == "" {
		return nil
	}

	var sentinel error
	switch apiErr.ErrorCode {
	case 8, 9, 12, 13, 14, 22:
		sentinel = ErrInvalidToken
	case 20, 21, 23, 26, 36:
		sentinel = ErrQuotaExceeded
	case 7:
		sentinel = ErrNotFound
	case 5, 25, 34:
		sentinel = ErrProviderUnavailable
	case 2, 3, 16, 19, 24, 29, 30, 35:
		sentinel = ErrInvalidReference
	default:
		sentinel = errorForStatus(status)
	}
	return newAPIError(ProviderRealDebrid, status, strconv.Itoa(apiErr.ErrorCode), apiErr.Error, sentinel)
}

// Name returns the provider tag
func (c *RealDebridClient) Name() string {
	return ProviderRealDebrid
}

// ValidateToken checks the token against the user endpoint and requires a premium account
func (c *RealDebridClient) ValidateToken(ctx context.Context) (bool, error) {
	var user realDebridUser
	if err := c.api.get(ctx, "/user", nil, &user); err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	return user.Type == "premium", nil
}

// SubmitSource adds the magnet and selects its video files
func (c *RealDebridClient) SubmitSource(ctx context.Context, source Source) (string, error) {
	if source.Magnet == "" {
		return "", newAPIError(ProviderRealDebrid, 0, "", "empty magnet", ErrInvalidReference)
	}

	var added struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	form := url.Values{"magnet": {source.Magnet}}
	if err := c.api.postForm(ctx, "/torrents/addMagnet", nil, form, &added); err != nil {
		return "", err
	}
	if added.ID == "" {
		return "", newAPIError(ProviderRealDebrid, 0, "", "no torrent id returned", ErrProviderUnavailable)
	}

	torrent, err := c.torrentInfo(ctx, added.ID)
	if err != nil {
		return "", err
	}

	if err := c.selectFiles(ctx, torrent); err != nil {
		return "", err
	}

	c.api.logger.WithFields(logrus.Fields{
		"provider":   ProviderRealDebrid,
		"torrent_id": added.ID,
		"title":      source.Title,
	}).Info("Submitted magnet to Real-Debrid")
	return added.ID, nil
}

func (c *RealDebridClient) selectFiles(ctx context.Context, torrent *realDebridTorrent) error {
	ids := make([]string, 0, len(torrent.Files))
	for _, f := range torrent.Files {
		if isPlayable(f.Path) {
			ids = append(ids, strconv.Itoa(f.ID))
		}
	}
	selection := "all"
	if len(ids) > 0 {
		selection = strings.Join(ids, ",")
	}

	form := url.Values{"files": {selection}}
	return c.api.postForm(ctx, "/torrents/selectFiles/"+url.PathEscape(torrent.ID), nil, form, nil)
}

func (c *RealDebridClient) torrentInfo(ctx context.Context, id string) (*realDebridTorrent, error) {
	var torrent realDebridTorrent
	if err := c.api.get(ctx, "/torrents/info/"+url.PathEscape(id), nil, &torrent); err != nil {
		return nil, err
	}
	return &torrent, nil
}

// GetCacheStatus normalizes the torrent status
func (c *RealDebridClient) GetCacheStatus(ctx context.Context, cacheRef string) (CacheStatus, error) {
	torrent, err := c.torrentInfo(ctx, cacheRef)
	if err != nil {
		return "", err
	}
	return mapRealDebridStatus(torrent.Status), nil
}

func mapRealDebridStatus(status string) CacheStatus {
	switch status {
	case "magnet_conversion", "waiting_files_selection", "queued":
		return StatusQueued
	case "downloading":
		return StatusDownloading
	case "compressing", "uploading":
		return StatusProcessing
	case "downloaded":
		return StatusReady
	case "dead":
		return StatusDead
	default:
		// magnet_error, error, virus and anything new
		return StatusError
	}
}

// GenerateLink unrestricts the hoster link of the selected file
func (c *RealDebridClient) GenerateLink(ctx context.Context, cacheRef string, selector FileSelector) (*Link, error) {
	torrent, err := c.torrentInfo(ctx, cacheRef)
	if err != nil {
		return nil, err
	}
	if status := mapRealDebridStatus(torrent.Status); status != StatusReady {
		return nil, newAPIError(ProviderRealDebrid, 0, torrent.Status, "torrent not downloaded", ErrNotReady)
	}

	// links are listed in the order of the selected files
	files := make([]fileCandidate, 0, len(torrent.Files))
	i := 0
	for _, f := range torrent.Files {
		if f.Selected != 1 {
			continue
		}
		if i >= len(torrent.Links) {
			break
		}
		files = append(files, fileCandidate{
			ID:   strconv.Itoa(f.ID),
			Path: f.Path,
			Size: f.Bytes,
			Link: torrent.Links[i],
		})
		i++
	}

	file, err := selectFile(files, selector)
	if err != nil {
		return nil, err
	}
	return c.unrestrict(ctx, file.Link)
}

// RefreshLink unrestricts the stored hoster link again
func (c *RealDebridClient) RefreshLink(ctx context.Context, ref Ref, existingURL string) (*Link, error) {
	if ref.File == "" {
		return c.GenerateLink(ctx, ref.Cache, ref.Unit)
	}
	return c.unrestrict(ctx, ref.File)
}

func (c *RealDebridClient) unrestrict(ctx context.Context, hosterLink string) (*Link, error) {
	var unrestricted realDebridUnrestricted
	form := url.Values{"link": {hosterLink}}
	if err := c.api.postForm(ctx, "/unrestrict/link", nil, form, &unrestricted); err != nil {
		return nil, err
	}
	if unrestricted.Download == "" {
		return nil, newAPIError(ProviderRealDebrid, 0, "", "empty download link", ErrProviderUnavailable)
	}

	return &Link{
		URL:       unrestricted.Download,
		ExpiresAt: expiry(time.Now(), c.linkLifetime),
		FileRef:   hosterLink,
		FileName:  unrestricted.Filename,
		Size:      unrestricted.Filesize,
	}, nil
}
