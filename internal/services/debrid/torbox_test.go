package debrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTorBoxTest(t *testing.T, state *string, finished *bool) *TorBoxClient {
	t.Helper()
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/user/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{"id": 1, "plan": 2}})
	})
	mux.HandleFunc("/torrents/createtorrent", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		if r.FormValue("magnet") == "magnet:?xt=urn:btih:LIMIT" {
			code := "ACTIVE_LIMIT"
			writeJSON(t, w, http.StatusOK, map[string]interface{}{"success": false, "error": code, "detail": "too many active downloads"})
			return
		}
		assert.Equal(t, "The Matrix", r.FormValue("name"))
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"detail":  "Found cached torrent. Using cached torrent.",
			"data":    map[string]interface{}{"torrent_id": 77, "hash": "abc"},
		})
	})
	mux.HandleFunc("/torrents/mylist", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("bypass_cache"))
		if r.URL.Query().Get("id") != "77" {
			writeJSON(t, w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "ITEM_NOT_FOUND"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"id": 77, "download_state": *state, "download_finished": *finished, "download_present": *finished,
				"files": []map[string]interface{}{
					{"id": 0, "name": "The.Matrix/The.Matrix.1999.mkv", "size": 7000},
					{"id": 1, "name": "The.Matrix/The.Matrix.1999.srt", "size": 10},
				},
			},
		})
	})
	mux.HandleFunc("/torrents/requestdl", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tb-key", r.URL.Query().Get("token"))
		assert.Equal(t, "77", r.URL.Query().Get("torrent_id"))
		assert.Equal(t, "0", r.URL.Query().Get("file_id"))
		requests++
		writeJSON(t, w, http.StatusOK, map[string]interface{}{"success": true, "data": "https://store.torbox.app/dl/" + strconv.Itoa(requests)})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewTorBoxClient("tb-key", testLogger(), WithBaseURL(srv.URL))
	require.NoError(t, err)
	return client
}

func TestTorBox_SubmitSource(t *testing.T) {
	state, finished := "queued", false
	client := newTorBoxTest(t, &state, &finished)

	ref, err := client.SubmitSource(context.Background(), Source{Magnet: "magnet:?xt=urn:btih:ABC", Title: "The Matrix"})
	require.NoError(t, err)
	assert.Equal(t, "77", ref)

	_, err = client.SubmitSource(context.Background(), Source{Magnet: "magnet:?xt=urn:btih:LIMIT"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestTorBox_StatusMapping(t *testing.T) {
	state, finished := "downloading", false
	client := newTorBoxTest(t, &state, &finished)

	status, err := client.GetCacheStatus(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, status)

	state, finished = "cached", true
	status, err = client.GetCacheStatus(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, status)

	state, finished = "something new", false
	status, err = client.GetCacheStatus(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, StatusError, status)

	_, err = client.GetCacheStatus(context.Background(), "78")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTorBox_GenerateAndRefresh(t *testing.T) {
	state, finished := "completed", true
	client := newTorBoxTest(t, &state, &finished)
	ctx := context.Background()

	valid, err := client.ValidateToken(ctx)
	require.NoError(t, err)
	assert.True(t, valid)

	link, err := client.GenerateLink(ctx, "77", FileSelector{})
	require.NoError(t, err)
	assert.Equal(t, "https://store.torbox.app/dl/1", link.URL)
	assert.Equal(t, "0", link.FileRef)
	assert.Equal(t, "The.Matrix/The.Matrix.1999.mkv", link.FileName)
	require.NotNil(t, link.ExpiresAt)

	refreshed, err := client.RefreshLink(ctx, Ref{Cache: "77", File: link.FileRef}, link.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://store.torbox.app/dl/2", refreshed.URL)
	assert.False(t, refreshed.ExpiresAt.Before(*link.ExpiresAt))
}
