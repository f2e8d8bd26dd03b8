package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Movie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/603", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 603,
			"title": "The Matrix",
			"overview": "A computer hacker learns about the true nature of reality.",
			"poster_path": "/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg",
			"release_date": "1999-03-30",
			"imdb_id": "tt0133093"
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	details, err := client.Lookup(context.Background(), 603, models.MediaKindMovie)

	require.NoError(t, err)
	assert.Equal(t, "The Matrix", details.Title)
	assert.Equal(t, 1999, details.Year)
	assert.Equal(t, "tt0133093", details.IMDbID)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg", details.PosterURL)
	assert.Equal(t, models.MediaKindMovie, details.Kind)
}

func TestLookup_Show(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/1399", r.URL.Path)
		assert.Equal(t, "external_ids", r.URL.Query().Get("append_to_response"))
		w.Write([]byte(`{
			"id": 1399,
			"name": "Game of Thrones",
			"first_air_date": "2011-04-17",
			"poster_path": "/got.jpg",
			"seasons": [
				{"season_number": 0, "episode_count": 14},
				{"season_number": 1, "episode_count": 10}
			],
			"external_ids": {"imdb_id": "tt0944947"}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	details, err := client.Lookup(context.Background(), 1399, models.MediaKindShow)

	require.NoError(t, err)
	assert.Equal(t, "Game of Thrones", details.Title)
	assert.Equal(t, "tt0944947", details.IMDbID)
	assert.Equal(t, 10, details.EpisodeCount(1))
	assert.Equal(t, 0, details.EpisodeCount(5))
	assert.Equal(t, 2011, details.Year)
}

func TestLookup_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), 999999, models.MediaKindMovie)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), 603, models.MediaKindMovie)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "503")
}

func TestLookup_Cached(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Write([]byte(`{"id": 603, "title": "The Matrix"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.Lookup(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
	_, err = client.Lookup(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
}

func TestLookup_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer eyJhbGciOiJIUzI1NiJ9.token", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"id": 603, "title": "The Matrix"}`))
	}))
	defer srv.Close()

	client := NewClient("eyJhbGciOiJIUzI1NiJ9.token", WithBaseURL(srv.URL))
	_, err := client.Lookup(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
}
