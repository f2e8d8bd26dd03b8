package controllers

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/bridgarr/internal/models"
	"github.com/amaumene/bridgarr/internal/queue"
	"github.com/amaumene/bridgarr/internal/services/debrid"
	"github.com/amaumene/bridgarr/internal/services/debrid/mocks"
	"github.com/amaumene/bridgarr/internal/services/tmdb"
	"github.com/amaumene/bridgarr/internal/services/torrentio"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) models.Store {
	t.Helper()
	store, err := models.NewDatabase(models.DriverSQLite, filepath.Join(t.TempDir(), "bridgarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

type fakeMetadata struct {
	details map[int64]*tmdb.Details
	err     error
	panics  bool
}

func (f *fakeMetadata) Lookup(ctx context.Context, id int64, kind models.MediaKind) (*tmdb.Details, error) {
	if f.panics {
		panic("metadata exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, tmdb.ErrNotFound
	}
	return d, nil
}

// fakeResolver answers by unit key ("movie", "S01E02")
type fakeResolver struct {
	releases  map[string]*models.Release
	err       error
	onResolve func()
}

func (f *fakeResolver) Resolve(ctx context.Context, q torrentio.Query) (*models.Release, error) {
	if f.onResolve != nil {
		f.onResolve()
	}
	if f.err != nil {
		return nil, f.err
	}
	key := "movie"
	if q.Kind == models.MediaKindShow {
		key = models.UnitKey(&q.Season, &q.Episode)
	}
	return f.releases[key], nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Start(ctx context.Context, handler queue.Handler) error { return nil }

func (q *recordingQueue) Stop() {}

func (q *recordingQueue) Jobs() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

func newMockProvider(t *testing.T, name string) *mocks.MockProvider {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return(name).AnyTimes()
	return provider
}

func newRegistry(providers ...debrid.Provider) *debrid.Registry {
	registry := debrid.NewRegistry(debrid.ProviderRealDebrid)
	for _, p := range providers {
		registry.Register(p)
	}
	return registry
}

var matrix = &tmdb.Details{
	ExternalID: 603,
	Kind:       models.MediaKindMovie,
	Title:      "The Matrix",
	Year:       1999,
	IMDbID:     "tt0133093",
	PosterURL:  "https://image.tmdb.org/t/p/w500/matrix.jpg",
}

var matrixRelease = &models.Release{
	Title:    "The.Matrix.1999.1080p.BluRay.x264",
	InfoHash: "aaaa",
	Quality:  models.Quality1080p,
	Magnet:   "magnet:?xt=urn:btih:AAAA",
}

type acquisitionFixture struct {
	store      models.Store
	queue      *recordingQueue
	metadata   *fakeMetadata
	resolver   *fakeResolver
	controller *AcquisitionController
}

func newAcquisitionFixture(t *testing.T, providers ProviderSelector) *acquisitionFixture {
	t.Helper()
	logger := testLogger()
	f := &acquisitionFixture{
		store:    newTestStore(t),
		queue:    &recordingQueue{},
		metadata: &fakeMetadata{details: map[int64]*tmdb.Details{603: matrix}},
		resolver: &fakeResolver{releases: map[string]*models.Release{"movie": matrixRelease}},
	}
	f.controller = NewAcquisitionController(
		f.store,
		f.queue,
		f.metadata,
		NewSearchController(f.resolver, time.Second, logger),
		NewDownloadController(f.store, time.Second, 2, time.Millisecond, logger),
		providers,
		AcquisitionConfig{JobLease: time.Hour, MetadataTimeout: time.Second, MaxEpisodesPerJob: 30},
		logger,
	)
	return f
}

// submitAndRun submits a request and runs the resulting job inline
func (f *acquisitionFixture) submitAndRun(t *testing.T, req Request) (*models.MediaItem, error) {
	t.Helper()
	result, err := f.controller.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, SubmitQueued, result.Status)

	jobs := f.queue.Jobs()
	runErr := f.controller.Run(context.Background(), jobs[len(jobs)-1])

	media, err := f.store.GetMediaByID(result.MediaID)
	require.NoError(t, err)
	return media, runErr
}
