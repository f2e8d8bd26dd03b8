package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	defaultImageBase = "https://image.tmdb.org/t/p/w500"
	defaultCacheTTL  = 24 * time.Hour
)

// ErrNotFound is returned when a title doesn't exist in TMDb
var ErrNotFound = errors.New("title not found in TMDb")

// Details is the metadata the acquisition pipeline needs for one title
type Details struct {
	ExternalID  int64
	Kind        models.MediaKind
	Title       string
	Overview    string
	PosterURL   string
	ReleaseDate string
	Year        int
	IMDbID      string
	// Seasons maps season number to episode count, shows only
	Seasons map[int]int
}

// EpisodeCount returns the number of episodes of a season, 0 when unknown
func (d *Details) EpisodeCount(season int) int {
	return d.Seasons[season]
}

type movieResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
	ReleaseDate string `json:"release_date"`
	IMDbID      string `json:"imdb_id"`
}

type showResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	FirstAirDate string `json:"first_air_date"`
	Seasons      []struct {
		SeasonNumber int `json:"season_number"`
		EpisodeCount int `json:"episode_count"`
	} `json:"seasons"`
	ExternalIDs struct {
		IMDbID string `json:"imdb_id"`
	} `json:"external_ids"`
}

// Client is a TMDb API client
type Client struct {
	apiKey     string
	baseURL    string
	imageBase  string
	httpClient *http.Client
	cache      *gocache.Cache
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithCacheTTL sets the cache TTL
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = gocache.New(ttl, 2*ttl)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new TMDb client. A v4 read access token is sent as a
// bearer token, a v3 key as the api_key parameter.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		imageBase: defaultImageBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: gocache.New(defaultCacheTTL, 2*defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the metadata of a movie or show by TMDb id
func (c *Client) Lookup(ctx context.Context, id int64, kind models.MediaKind) (*Details, error) {
	key := fmt.Sprintf("%s:%d", kind, id)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*Details), nil
	}

	var (
		details *Details
		err     error
	)
	switch kind {
	case models.MediaKindMovie:
		details, err = c.movie(ctx, id)
	case models.MediaKindShow:
		details, err = c.show(ctx, id)
	default:
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(key, details)
	return details, nil
}

func (c *Client) movie(ctx context.Context, id int64) (*Details, error) {
	var movie movieResponse
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), nil, &movie); err != nil {
		return nil, err
	}

	return &Details{
		ExternalID:  id,
		Kind:        models.MediaKindMovie,
		Title:       movie.Title,
		Overview:    movie.Overview,
		PosterURL:   c.posterURL(movie.PosterPath),
		ReleaseDate: movie.ReleaseDate,
		Year:        yearOf(movie.ReleaseDate),
		IMDbID:      movie.IMDbID,
	}, nil
}

func (c *Client) show(ctx context.Context, id int64) (*Details, error) {
	var show showResponse
	query := url.Values{"append_to_response": {"external_ids"}}
	if err := c.get(ctx, "/tv/"+strconv.FormatInt(id, 10), query, &show); err != nil {
		return nil, err
	}

	seasons := make(map[int]int, len(show.Seasons))
	for _, s := range show.Seasons {
		seasons[s.SeasonNumber] = s.EpisodeCount
	}

	return &Details{
		ExternalID:  id,
		Kind:        models.MediaKindShow,
		Title:       show.Name,
		Overview:    show.Overview,
		PosterURL:   c.posterURL(show.PosterPath),
		ReleaseDate: show.FirstAirDate,
		Year:        yearOf(show.FirstAirDate),
		IMDbID:      show.ExternalIDs.IMDbID,
		Seasons:     seasons,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	bearer := strings.HasPrefix(c.apiKey, "eyJ")
	if !bearer {
		query.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("TMDb API error: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) posterURL(path string) string {
	if path == "" {
		return ""
	}
	return c.imageBase + path
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
