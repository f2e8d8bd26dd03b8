package debrid

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	premiumizeAPIBase     = "https://www.premiumize.me/api"
	premiumizeFolderDepth = 3
)

// PremiumizeClient talks to the Premiumize API. Finished transfers land in a
// cloud folder whose file links never expire.
type PremiumizeClient struct {
	api    *apiClient
	apiKey string
}

var _ Provider = (*PremiumizeClient)(nil)

type premiumizeStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type premiumizeAccount struct {
	premiumizeStatus
	CustomerID   string  `json:"customer_id"`
	PremiumUntil int64   `json:"premium_until"`
	LimitUsed    float64 `json:"limit_used"`
}

type premiumizeTransfer struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Message  string  `json:"message"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	FolderID string  `json:"folder_id"`
	FileID   string  `json:"file_id"`
}

type premiumizeItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Link string `json:"link"`
}

// NewPremiumizeClient creates a Premiumize client
func NewPremiumizeClient(apiKey string, logger *logrus.Logger, opts ...Option) (*PremiumizeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Premiumize API key is required")
	}

	o := buildOptions(options{baseURL: premiumizeAPIBase}, append([]Option{WithRateLimit(5, 5)}, opts...))

	return &PremiumizeClient{
		api:    newAPIClient(ProviderPremiumize, o, logger),
		apiKey: apiKey,
	}, nil
}

func (c *PremiumizeClient) query(extra url.Values) url.Values {
	q := url.Values{"apikey": {c.apiKey}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

func premiumizeError(message string) error {
	lower := strings.ToLower(message)

	var sentinel error
	switch {
	case strings.Contains(lower, "not logged in"), strings.Contains(lower, "apikey"), strings.Contains(lower, "auth"):
		sentinel = ErrInvalidToken
	case strings.Contains(lower, "limit"), strings.Contains(lower, "fair use"), strings.Contains(lower, "premium"):
		sentinel = ErrQuotaExceeded
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		sentinel = ErrNotFound
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "not valid"), strings.Contains(lower, "unsupported"):
		sentinel = ErrInvalidReference
	default:
		sentinel = ErrProviderUnavailable
	}
	return newAPIError(ProviderPremiumize, 200, "", message, sentinel)
}

func (s premiumizeStatus) err() error {
	if s.Status == "success" {
		return nil
	}
	return premiumizeError(s.Message)
}

// Name returns the provider tag
func (c *PremiumizeClient) Name() string {
	return ProviderPremiumize
}

// ValidateToken checks the key and requires an active premium period
func (c *PremiumizeClient) ValidateToken(ctx context.Context) (bool, error) {
	var account premiumizeAccount
	if err := c.api.get(ctx, "/account/info", c.query(nil), &account); err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	if err := account.err(); err != nil {
		if isInvalidToken(err) {
			return false, nil
		}
		return false, err
	}
	return account.PremiumUntil > time.Now().Unix(), nil
}

// SubmitSource creates a transfer from the magnet
func (c *PremiumizeClient) SubmitSource(ctx context.Context, source Source) (string, error) {
	if source.Magnet == "" {
		return "", newAPIError(ProviderPremiumize, 0, "", "empty magnet", ErrInvalidReference)
	}

	var created struct {
		premiumizeStatus
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	form := url.Values{"src": {source.Magnet}}
	if err := c.api.postForm(ctx, "/transfer/create", c.query(nil), form, &created); err != nil {
		return "", err
	}
	if err := created.err(); err != nil {
		return "", err
	}

	c.api.logger.WithFields(logrus.Fields{
		"provider":    ProviderPremiumize,
		"transfer_id": created.ID,
	}).Info("Submitted magnet to Premiumize")
	return created.ID, nil
}

func (c *PremiumizeClient) transfer(ctx context.Context, id string) (*premiumizeTransfer, error) {
	var list struct {
		premiumizeStatus
		Transfers []premiumizeTransfer `json:"transfers"`
	}
	if err := c.api.get(ctx, "/transfer/list", c.query(nil), &list); err != nil {
		return nil, err
	}
	if err := list.err(); err != nil {
		return nil, err
	}
	for i := range list.Transfers {
		if list.Transfers[i].ID == id {
			return &list.Transfers[i], nil
		}
	}
	return nil, newAPIError(ProviderPremiumize, 0, "", "transfer "+id+" not found", ErrNotFound)
}

// GetCacheStatus normalizes the transfer status
func (c *PremiumizeClient) GetCacheStatus(ctx context.Context, cacheRef string) (CacheStatus, error) {
	transfer, err := c.transfer(ctx, cacheRef)
	if err != nil {
		return "", err
	}
	return mapPremiumizeStatus(transfer.Status), nil
}

func mapPremiumizeStatus(status string) CacheStatus {
	switch status {
	case "waiting", "queued":
		return StatusQueued
	case "running":
		return StatusDownloading
	case "finishing":
		return StatusProcessing
	case "finished", "seeding":
		return StatusReady
	case "deleted":
		return StatusDead
	default:
		// error, banned, timeout and anything new
		return StatusError
	}
}

// GenerateLink returns the permanent link of the selected file
func (c *PremiumizeClient) GenerateLink(ctx context.Context, cacheRef string, selector FileSelector) (*Link, error) {
	transfer, err := c.transfer(ctx, cacheRef)
	if err != nil {
		return nil, err
	}
	if mapPremiumizeStatus(transfer.Status) != StatusReady {
		return nil, newAPIError(ProviderPremiumize, 0, transfer.Status, transfer.Message, ErrNotReady)
	}

	var files []fileCandidate
	switch {
	case transfer.FolderID != "":
		files, err = c.folderFiles(ctx, transfer.FolderID, premiumizeFolderDepth)
	case transfer.FileID != "":
		files, err = c.itemFile(ctx, transfer.FileID)
	default:
		return nil, newAPIError(ProviderPremiumize, 0, "", "transfer has no content", ErrNoPlayableFile)
	}
	if err != nil {
		return nil, err
	}

	file, err := selectFile(files, selector)
	if err != nil {
		return nil, err
	}

	return &Link{
		URL:      file.Link,
		FileRef:  file.ID,
		FileName: file.Path,
		Size:     file.Size,
	}, nil
}

func (c *PremiumizeClient) folderFiles(ctx context.Context, folderID string, depth int) ([]fileCandidate, error) {
	var folder struct {
		premiumizeStatus
		Content []premiumizeItem `json:"content"`
	}
	if err := c.api.get(ctx, "/folder/list", c.query(url.Values{"id": {folderID}}), &folder); err != nil {
		return nil, err
	}
	if err := folder.err(); err != nil {
		return nil, err
	}

	var files []fileCandidate
	for _, item := range folder.Content {
		switch item.Type {
		case "file":
			files = append(files, fileCandidate{ID: item.ID, Path: item.Name, Size: item.Size, Link: item.Link})
		case "folder":
			if depth <= 1 {
				continue
			}
			nested, err := c.folderFiles(ctx, item.ID, depth-1)
			if err != nil {
				return nil, err
			}
			files = append(files, nested...)
		}
	}
	return files, nil
}

func (c *PremiumizeClient) itemFile(ctx context.Context, fileID string) ([]fileCandidate, error) {
	var item struct {
		premiumizeStatus
		premiumizeItem
	}
	if err := c.api.get(ctx, "/item/details", c.query(url.Values{"id": {fileID}}), &item); err != nil {
		return nil, err
	}
	// item/details omits status on success
	if item.Status == "error" {
		return nil, premiumizeError(item.Message)
	}
	return []fileCandidate{{ID: item.ID, Path: item.Name, Size: item.Size, Link: item.Link}}, nil
}

// RefreshLink is a no-op for permanent links; without a stored URL it
// regenerates from the transfer
func (c *PremiumizeClient) RefreshLink(ctx context.Context, ref Ref, existingURL string) (*Link, error) {
	if existingURL != "" {
		return &Link{URL: existingURL, FileRef: ref.File}, nil
	}
	return c.GenerateLink(ctx, ref.Cache, ref.Unit)
}
