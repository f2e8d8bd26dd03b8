package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("TMDB_API_KEY", "tmdb-key")
	t.Setenv("REALDEBRID_API_TOKEN", "rd-token")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, filepath.Join(dir, "bridgarr.db"), cfg.DatabaseFile)
	assert.Equal(t, filepath.Join(dir, "blacklist.txt"), cfg.BlacklistFile)
	assert.Equal(t, "real-debrid", cfg.DebridProvider)
	assert.Equal(t, 3, cfg.LinkMaxFailures)
	assert.Equal(t, 3*time.Hour, cfg.LinkRefreshWindow)
	assert.Equal(t, 30*time.Second, cfg.LinkRefreshTimeout)
	assert.Equal(t, 30*time.Minute, cfg.LazyRefreshWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.DeadLinkRetention)
	assert.Equal(t, time.Hour, cfg.JobLease)
	assert.Equal(t, 5, cfg.CacheMaxRetries)
	assert.Equal(t, "https://api.themoviedb.org/3", cfg.TMDbBaseURL)
	assert.Empty(t, cfg.RequesterProviders)
}

func TestLoad_MissingTMDbKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TMDB_API_KEY", "")

	_, err := Load()
	assert.EqualError(t, err, "TMDB_API_KEY is required")
}

func TestLoad_MissingProviderToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DEBRID_PROVIDER", "premiumize")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PREMIUMIZE_API_TOKEN")
}

func TestLoad_UnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DEBRID_PROVIDER", "putio")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestLoad_RequesterProviders(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PREMIUMIZE_API_TOKEN", "pm-key")
	t.Setenv("REQUESTER_PROVIDERS", "Alice:premiumize, bob:real-debrid")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "premiumize", "bob": "real-debrid"}, cfg.RequesterProviders)
	assert.Equal(t, "pm-key", cfg.ProviderToken("premiumize"))
}

func TestLoad_RequesterProviderWithoutToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REQUESTER_PROVIDERS", "alice:alldebrid")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLDEBRID_API_TOKEN")
}

func TestParseRequesterProviders_Invalid(t *testing.T) {
	_, err := parseRequesterProviders("alice")
	assert.Error(t, err)

	_, err = parseRequesterProviders("alice:putio")
	assert.Error(t, err)

	result, err := parseRequesterProviders("")
	require.NoError(t, err)
	assert.Empty(t, result)
}
