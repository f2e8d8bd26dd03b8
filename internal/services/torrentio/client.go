package torrentio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/utils"
	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://torrentio.strem.fun"

var (
	sizeRegex    = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGT]?B)`)
	seedersRegex = regexp.MustCompile(`👤\s*(\d+)`)
	trackerRegex = regexp.MustCompile(`⚙️\s*([^\n]+)`)
)

// Query describes the playable unit a source is wanted for
type Query struct {
	IMDbID  string
	Title   string
	Kind    models.MediaKind
	Season  int
	Episode int
}

type streamResponse struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	InfoHash string   `json:"infoHash"`
	FileIdx  *int     `json:"fileIdx"`
	Sources  []string `json:"sources"`
}

// Client resolves torrent sources through a Torrentio instance
type Client struct {
	baseURL    string
	options    string
	httpClient *http.Client
	blacklist  *utils.Blacklist
	logger     *logrus.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBlacklist drops releases whose title matches a blacklist term
func WithBlacklist(b *utils.Blacklist) Option {
	return func(c *Client) {
		c.blacklist = b
	}
}

// NewClient creates a new Torrentio client. options is the optional path
// segment Torrentio uses for provider and quality filters.
func NewClient(baseURL, options string, logger *logrus.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		options: strings.Trim(strings.TrimSpace(options), "/"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		blacklist: utils.NewBlacklist(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the best ranked release for a query, or nil when nothing
// acceptable is available. An empty result is not an error.
func (c *Client) Resolve(ctx context.Context, q Query) (*models.Release, error) {
	releases, err := c.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}
	return releases[0], nil
}

// Search returns every acceptable release for a query, best first
func (c *Client) Search(ctx context.Context, q Query) ([]*models.Release, error) {
	if strings.TrimSpace(q.IMDbID) == "" {
		c.logger.WithField("title", q.Title).Debug("No IMDb id, skipping source search")
		return nil, nil
	}

	streams, err := c.fetchStreams(ctx, q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(streams))
	releases := make([]*models.Release, 0, len(streams))
	for _, s := range streams {
		hash := strings.ToLower(strings.TrimSpace(s.InfoHash))
		if hash == "" {
			continue
		}
		fileIdx := 0
		if s.FileIdx != nil {
			fileIdx = *s.FileIdx
		}
		key := hash + ":" + strconv.Itoa(fileIdx)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		title := firstLine(s.Title)
		if title == "" {
			title = firstLine(s.Name)
		}

		if utils.IsCamRelease(title) {
			c.logger.WithField("title", title).Debug("Skipping cam release")
			continue
		}
		if hit, term := c.blacklist.IsBlacklisted(title); hit {
			c.logger.WithFields(logrus.Fields{
				"title": title,
				"term":  term,
			}).Debug("Skipping blacklisted release")
			continue
		}

		releases = append(releases, &models.Release{
			Title:      title,
			InfoHash:   hash,
			FileIndex:  fileIdx,
			Size:       parseSize(s.Title),
			Seeders:    parseSeeders(s.Title),
			Tracker:    parseTracker(s.Title),
			Quality:    utils.DetermineQuality(s.Name + " " + title),
			Similarity: utils.TitleSimilarity(q.Title, title),
			Magnet:     BuildMagnet(hash, trackers(s.Sources)),
		})
	}

	ranked := utils.RankReleases(releases)

	c.logger.WithFields(logrus.Fields{
		"imdb_id":    q.IMDbID,
		"season":     q.Season,
		"episode":    q.Episode,
		"streams":    len(streams),
		"candidates": len(ranked),
	}).Debug("Torrentio search completed")

	return ranked, nil
}

func (c *Client) streamURL(q Query) string {
	kind := "movie"
	id := q.IMDbID
	if q.Kind == models.MediaKindShow {
		kind = "series"
		season := q.Season
		if season == 0 {
			season = 1
		}
		episode := q.Episode
		if episode == 0 {
			episode = 1
		}
		id = fmt.Sprintf("%s:%d:%d", q.IMDbID, season, episode)
	}

	base := c.baseURL
	if c.options != "" {
		base += "/" + c.options
	}
	return fmt.Sprintf("%s/stream/%s/%s.json", base, kind, url.PathEscape(id))
}

func (c *Client) fetchStreams(ctx context.Context, q Query) ([]stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bridgarr/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("torrentio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload streamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode torrentio response: %w", err)
	}
	return payload.Streams, nil
}

// BuildMagnet builds a magnet URI from an info hash and tracker announce URLs
func BuildMagnet(infoHash string, trackers []string) string {
	if infoHash == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToUpper(infoHash))
	for _, tracker := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

func trackers(sources []string) []string {
	var out []string
	for _, src := range sources {
		if announce, ok := strings.CutPrefix(src, "tracker:"); ok && announce != "" {
			out = append(out, announce)
		}
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

func parseSize(raw string) int64 {
	match := sizeRegex.FindStringSubmatch(raw)
	if len(match) != 3 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	multipliers := map[string]float64{
		"B":  1,
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
		"TB": 1 << 40,
	}
	return int64(value * multipliers[strings.ToUpper(match[2])])
}

func parseSeeders(raw string) int {
	match := seedersRegex.FindStringSubmatch(raw)
	if len(match) != 2 {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

func parseTracker(raw string) string {
	match := trackerRegex.FindStringSubmatch(raw)
	if len(match) != 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}
