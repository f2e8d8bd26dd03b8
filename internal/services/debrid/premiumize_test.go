package debrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func premiumizeHandler(t *testing.T, transferStatus string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/info", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "pm-key" {
			writeJSON(t, w, http.StatusOK, map[string]string{"status": "error", "message": "Not logged in."})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"status":        "success",
			"customer_id":   "1",
			"premium_until": time.Now().Add(24 * time.Hour).Unix(),
		})
	})
	mux.HandleFunc("/transfer/create", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("src") == "magnet:?xt=urn:btih:LIMIT" {
			writeJSON(t, w, http.StatusOK, map[string]string{"status": "error", "message": "You have reached your download limit."})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "success", "id": "tr-1", "name": "Show"})
	})
	mux.HandleFunc("/transfer/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"status": "success",
			"transfers": []map[string]interface{}{
				{"id": "tr-1", "status": transferStatus, "folder_id": "folder-root"},
			},
		})
	})
	mux.HandleFunc("/folder/list", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "folder-root":
			writeJSON(t, w, http.StatusOK, map[string]interface{}{
				"status": "success",
				"content": []map[string]interface{}{
					{"id": "f-nfo", "name": "Show.nfo", "type": "file", "size": 1, "link": "https://pm/nfo"},
					{"id": "folder-season", "name": "Season 1", "type": "folder"},
				},
			})
		case "folder-season":
			writeJSON(t, w, http.StatusOK, map[string]interface{}{
				"status": "success",
				"content": []map[string]interface{}{
					{"id": "f-e1", "name": "Show.S01E01.mkv", "type": "file", "size": 1000, "link": "https://pm/e1"},
					{"id": "f-e2", "name": "Show.S01E02.mkv", "type": "file", "size": 1100, "link": "https://pm/e2"},
				},
			})
		default:
			writeJSON(t, w, http.StatusOK, map[string]string{"status": "error", "message": "Folder not found"})
		}
	})
	return mux
}

func newPremiumizeTest(t *testing.T, transferStatus string) *PremiumizeClient {
	t.Helper()
	srv := httptest.NewServer(premiumizeHandler(t, transferStatus))
	t.Cleanup(srv.Close)

	client, err := NewPremiumizeClient("pm-key", testLogger(), WithBaseURL(srv.URL))
	require.NoError(t, err)
	return client
}

func TestPremiumize_ValidateToken(t *testing.T) {
	client := newPremiumizeTest(t, "finished")
	valid, err := client.ValidateToken(context.Background())
	require.NoError(t, err)
	assert.True(t, valid)

	client.apiKey = "wrong"
	valid, err = client.ValidateToken(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestPremiumize_SubmitSource(t *testing.T) {
	client := newPremiumizeTest(t, "queued")

	ref, err := client.SubmitSource(context.Background(), Source{Magnet: "magnet:?xt=urn:btih:OK"})
	require.NoError(t, err)
	assert.Equal(t, "tr-1", ref)

	_, err = client.SubmitSource(context.Background(), Source{Magnet: "magnet:?xt=urn:btih:LIMIT"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestPremiumize_StatusMapping(t *testing.T) {
	expected := map[string]CacheStatus{
		"waiting":   StatusQueued,
		"queued":    StatusQueued,
		"running":   StatusDownloading,
		"finishing": StatusProcessing,
		"finished":  StatusReady,
		"seeding":   StatusReady,
		"error":     StatusError,
		"banned":    StatusError,
		"timeout":   StatusError,
		"deleted":   StatusDead,
		"mystery":   StatusError,
	}
	for native, want := range expected {
		assert.Equal(t, want, mapPremiumizeStatus(native), native)
	}

	client := newPremiumizeTest(t, "running")
	status, err := client.GetCacheStatus(context.Background(), "tr-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, status)

	_, err = client.GetCacheStatus(context.Background(), "tr-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPremiumize_PermanentLinks(t *testing.T) {
	client := newPremiumizeTest(t, "finished")
	ctx := context.Background()

	link, err := client.GenerateLink(ctx, "tr-1", FileSelector{Season: 1, Episode: 2})
	require.NoError(t, err)
	assert.Equal(t, "https://pm/e2", link.URL)
	assert.Equal(t, "f-e2", link.FileRef)
	assert.Nil(t, link.ExpiresAt)

	refreshed, err := client.RefreshLink(ctx, Ref{Cache: "tr-1", File: link.FileRef}, link.URL)
	require.NoError(t, err)
	assert.Equal(t, link.URL, refreshed.URL)
	assert.Nil(t, refreshed.ExpiresAt)
}

func TestPremiumize_GenerateLinkNotReady(t *testing.T) {
	client := newPremiumizeTest(t, "running")

	_, err := client.GenerateLink(context.Background(), "tr-1", FileSelector{})
	assert.ErrorIs(t, err, ErrNotReady)
}
