package debrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	torboxAPIBase      = "https://api.torbox.app/v1/api"
	torboxLinkLifetime = 3 * time.Hour
)

// TorBoxClient talks to the TorBox torrent API. Download links are requested
// per file with the API key and expire after a few hours.
type TorBoxClient struct {
	api          *apiClient
	apiKey       string
	linkLifetime time.Duration
}

var _ Provider = (*TorBoxClient)(nil)

type torboxResponse[T any] struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Detail  string  `json:"detail"`
	Data    T       `json:"data"`
}

type torboxUser struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Plan  int    `json:"plan"`
}

type torboxCreated struct {
	TorrentID int    `json:"torrent_id"`
	Hash      string `json:"hash"`
	AuthID    string `json:"auth_id"`
}

type torboxFile struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Size      int64  `json:"size"`
}

type torboxTorrent struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	Hash             string       `json:"hash"`
	DownloadState    string       `json:"download_state"`
	Progress         float64      `json:"progress"`
	DownloadFinished bool         `json:"download_finished"`
	DownloadPresent  bool         `json:"download_present"`
	Files            []torboxFile `json:"files"`
}

// NewTorBoxClient creates a TorBox client
func NewTorBoxClient(apiKey string, logger *logrus.Logger, opts ...Option) (*TorBoxClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TorBox API key is required")
	}

	o := buildOptions(options{
		baseURL:      torboxAPIBase,
		linkLifetime: torboxLinkLifetime,
	}, append([]Option{WithRateLimit(5, 5)}, opts...))

	api := newAPIClient(ProviderTorBox, o, logger)
	api.authorize = bearer(apiKey)
	api.mapError = func(status int, body []byte) error {
		var envelope torboxResponse[json.RawMessage]
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
			return nil
		}
		return torboxError(status, *envelope.Error, envelope.Detail)
	}

	return &TorBoxClient{api: api, apiKey: apiKey, linkLifetime: o.linkLifetime}, nil
}

func torboxError(status int, code, detail string) error {
	var sentinel error
	switch code {
	case "BAD_TOKEN", "AUTH_ERROR", "NO_AUTH":
		sentinel = ErrInvalidToken
	case "PLAN_RESTRICTED_FEATURE", "ACTIVE_LIMIT", "MONTHLY_LIMIT", "COOLDOWN_LIMIT":
		sentinel = ErrQuotaExceeded
	case "ITEM_NOT_FOUND":
		sentinel = ErrNotFound
	case "DOWNLOAD_SERVER_ERROR", "DATABASE_ERROR", "UNKNOWN_ERROR":
		sentinel = ErrProviderUnavailable
	case "INVALID_OPTION", "DOWNLOAD_TOO_LARGE", "BOZO_TORRENT", "NO_SERVERS_AVAILABLE_ERROR":
		sentinel = ErrInvalidReference
	default:
		sentinel = errorForStatus(status)
	}
	return newAPIError(ProviderTorBox, status, code, detail, sentinel)
}

func checkTorBox[T any](resp *torboxResponse[T]) error {
	if resp.Success {
		return nil
	}
	code := ""
	if resp.Error != nil {
		code = *resp.Error
	}
	return torboxError(200, code, resp.Detail)
}

// Name returns the provider tag
func (c *TorBoxClient) Name() string {
	return ProviderTorBox
}

// ValidateToken checks the key and requires a paid plan
func (c *TorBoxClient) ValidateToken(ctx context.Context) (bool, error) {
	var resp torboxResponse[torboxUser]
	err := c.api.get(ctx, "/user/me", nil, &resp)
	if err == nil {
		err = checkTorBox(&resp)
	}
	if err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Data.Plan > 0, nil
}

// SubmitSource creates a torrent from the magnet
func (c *TorBoxClient) SubmitSource(ctx context.Context, source Source) (string, error) {
	if source.Magnet == "" {
		return "", newAPIError(ProviderTorBox, 0, "", "empty magnet", ErrInvalidReference)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("magnet", source.Magnet); err != nil {
		return "", fmt.Errorf("failed to add magnet field: %w", err)
	}
	if source.Title != "" {
		if err := writer.WriteField("name", source.Title); err != nil {
			return "", fmt.Errorf("failed to add name field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var resp torboxResponse[torboxCreated]
	if err := c.api.send(ctx, http.MethodPost, "/torrents/createtorrent", nil, &buf, writer.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	if err := checkTorBox(&resp); err != nil {
		return "", err
	}

	id := strconv.Itoa(resp.Data.TorrentID)
	c.api.logger.WithFields(logrus.Fields{
		"provider":   ProviderTorBox,
		"torrent_id": id,
		"detail":     resp.Detail,
	}).Info("Submitted magnet to TorBox")
	return id, nil
}

func (c *TorBoxClient) torrent(ctx context.Context, id string) (*torboxTorrent, error) {
	var resp torboxResponse[*torboxTorrent]
	query := url.Values{"id": {id}, "bypass_cache": {"true"}}
	if err := c.api.get(ctx, "/torrents/mylist", query, &resp); err != nil {
		return nil, err
	}
	if err := checkTorBox(&resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, newAPIError(ProviderTorBox, 0, "", "torrent "+id+" not found", ErrNotFound)
	}
	return resp.Data, nil
}

// GetCacheStatus normalizes the download state
func (c *TorBoxClient) GetCacheStatus(ctx context.Context, cacheRef string) (CacheStatus, error) {
	torrent, err := c.torrent(ctx, cacheRef)
	if err != nil {
		return "", err
	}
	return mapTorBoxStatus(torrent), nil
}

func mapTorBoxStatus(t *torboxTorrent) CacheStatus {
	if t.DownloadFinished && t.DownloadPresent {
		return StatusReady
	}
	switch t.DownloadState {
	case "queued", "metaDL", "checkingResumeData", "paused":
		return StatusQueued
	case "downloading", "stalled", "stalled (no seeds)", "stalledDL":
		return StatusDownloading
	case "uploading", "completed", "cached", "processing":
		return StatusProcessing
	case "expired", "deleted":
		return StatusDead
	default:
		return StatusError
	}
}

// GenerateLink requests a download link for the selected file
func (c *TorBoxClient) GenerateLink(ctx context.Context, cacheRef string, selector FileSelector) (*Link, error) {
	torrent, err := c.torrent(ctx, cacheRef)
	if err != nil {
		return nil, err
	}
	if mapTorBoxStatus(torrent) != StatusReady {
		return nil, newAPIError(ProviderTorBox, 0, torrent.DownloadState, "torrent not ready", ErrNotReady)
	}

	files := make([]fileCandidate, 0, len(torrent.Files))
	for _, f := range torrent.Files {
		files = append(files, fileCandidate{ID: strconv.Itoa(f.ID), Path: f.Name, Size: f.Size})
	}
	file, err := selectFile(files, selector)
	if err != nil {
		return nil, err
	}

	link, err := c.requestDownload(ctx, cacheRef, file.ID)
	if err != nil {
		return nil, err
	}
	link.FileName = file.Path
	link.Size = file.Size
	return link, nil
}

// RefreshLink requests a fresh download link for the stored file
func (c *TorBoxClient) RefreshLink(ctx context.Context, ref Ref, existingURL string) (*Link, error) {
	if ref.File == "" {
		return c.GenerateLink(ctx, ref.Cache, ref.Unit)
	}
	return c.requestDownload(ctx, ref.Cache, ref.File)
}

func (c *TorBoxClient) requestDownload(ctx context.Context, torrentID, fileID string) (*Link, error) {
	var resp torboxResponse[string]
	query := url.Values{
		"token":      {c.apiKey},
		"torrent_id": {torrentID},
		"file_id":    {fileID},
	}
	if err := c.api.get(ctx, "/torrents/requestdl", query, &resp); err != nil {
		return nil, err
	}
	if err := checkTorBox(&resp); err != nil {
		return nil, err
	}
	if resp.Data == "" {
		return nil, newAPIError(ProviderTorBox, 0, "", "empty download link", ErrProviderUnavailable)
	}

	return &Link{
		URL:       resp.Data,
		ExpiresAt: expiry(time.Now(), c.linkLifetime),
		FileRef:   fileID,
	}, nil
}
