package torrentio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const matrixStreams = `{
  "streams": [
    {
      "name": "Torrentio\n720p",
      "title": "The.Matrix.1999.720p.BluRay.x264\n👤 850 💾 1.1 GB ⚙️ YTS",
      "infoHash": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
      "fileIdx": 0,
      "sources": ["tracker:udp://tracker.opentrackr.org:1337/announce", "dht:aaaa"]
    },
    {
      "name": "Torrentio\n1080p",
      "title": "The.Matrix.1999.1080p.BluRay.x264\n👤 120 💾 2,048 MB ⚙️ ThePirateBay",
      "infoHash": "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
      "fileIdx": 1,
      "sources": ["tracker:udp://open.demonii.com:1337/announce"]
    },
    {
      "name": "Torrentio\n1080p",
      "title": "The.Matrix.1999.1080p.HDCAM\n👤 5000 💾 900 MB ⚙️ 1337x",
      "infoHash": "cccccccccccccccccccccccccccccccccccccccc"
    },
    {
      "name": "Torrentio\n2160p",
      "title": "The.Matrix.1999.2160p.KORSUB\n👤 300 💾 40 GB ⚙️ 1337x",
      "infoHash": "dddddddddddddddddddddddddddddddddddddddd"
    },
    {
      "name": "Torrentio\n1080p",
      "title": "duplicate\n👤 1",
      "infoHash": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
      "fileIdx": 1
    },
    {
      "name": "Torrentio",
      "title": "no hash"
    }
  ]
}`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSearch_FiltersAndRanks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/providers=yts/stream/movie/tt0133093.json", r.URL.Path)
		w.Write([]byte(matrixStreams))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "providers=yts", testLogger(), WithBlacklist(utils.NewBlacklist("korsub")))
	releases, err := client.Search(context.Background(), Query{
		IMDbID: "tt0133093",
		Title:  "The Matrix",
		Kind:   models.MediaKindMovie,
	})
	require.NoError(t, err)
	require.Len(t, releases, 2)

	best := releases[0]
	assert.Equal(t, "The.Matrix.1999.1080p.BluRay.x264", best.Title)
	assert.Equal(t, models.Quality1080p, best.Quality)
	assert.Equal(t, 120, best.Seeders)
	assert.Equal(t, int64(2048)<<20, best.Size)
	assert.Equal(t, "ThePirateBay", best.Tracker)
	assert.Equal(t, 1, best.FileIndex)
	assert.Equal(t, 1.0, best.Similarity)
	assert.Equal(t,
		"magnet:?xt=urn:btih:BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB&tr=udp%3A%2F%2Fopen.demonii.com%3A1337%2Fannounce",
		best.Magnet)

	assert.Equal(t, models.Quality720p, releases[1].Quality)
}

func TestResolve_Series(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream/series/tt0903747:2:3.json", r.URL.Path)
		w.Write([]byte(`{"streams":[{"name":"Torrentio\n1080p","title":"Breaking.Bad.S02E03.1080p\n👤 40","infoHash":"eeee"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", testLogger())
	release, err := client.Resolve(context.Background(), Query{
		IMDbID:  "tt0903747",
		Title:   "Breaking Bad",
		Kind:    models.MediaKindShow,
		Season:  2,
		Episode: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.Equal(t, "eeee", release.InfoHash)
	assert.Equal(t, "magnet:?xt=urn:btih:EEEE", release.Magnet)
}

func TestResolve_NoCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"streams":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", testLogger())
	release, err := client.Resolve(context.Background(), Query{IMDbID: "tt9999999", Kind: models.MediaKindMovie})
	require.NoError(t, err)
	assert.Nil(t, release)
}

func TestResolve_NoIMDbID(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", testLogger())
	release, err := client.Resolve(context.Background(), Query{Title: "Obscure", Kind: models.MediaKindMovie})
	require.NoError(t, err)
	assert.Nil(t, release)
}

func TestResolve_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", testLogger())
	_, err := client.Resolve(context.Background(), Query{IMDbID: "tt0133093", Kind: models.MediaKindMovie})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
