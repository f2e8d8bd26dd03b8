package models

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	for _, driver := range []string{DriverSQLite, DriverBolt} {
		t.Run(driver, func(t *testing.T) {
			store, err := NewDatabase(driver, filepath.Join(t.TempDir(), "bridgarr.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			fn(t, store)
		})
	}
}

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func TestTryAcquireLock_CreatesAndClaims(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "alice", time.Hour)
		require.NoError(t, err)
		assert.True(t, claim.Acquired)
		assert.True(t, claim.Created)
		require.NotNil(t, claim.Media)
		assert.NotZero(t, claim.Media.ID)

		media, err := store.GetMediaByExternalID(603, MediaKindMovie)
		require.NoError(t, err)
		assert.Equal(t, "job-1", media.ActiveJobID)
		assert.Equal(t, JobStatusQueued, media.JobStatus)
		assert.Equal(t, "alice", media.Requester)
		assert.False(t, media.IsAvailable)
	})
}

func TestTryAcquireLock_DuplicateWhileActive(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		first, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)
		require.True(t, first.Acquired)

		second, err := store.TryAcquireLock(603, MediaKindMovie, "job-2", "", time.Hour)
		require.NoError(t, err)
		assert.False(t, second.Acquired)
		assert.False(t, second.Created)
		assert.Equal(t, first.Media.ID, second.Media.ID)
		assert.Equal(t, "job-1", second.Media.ActiveJobID)
	})
}

func TestTryAcquireLock_SameIDDifferentKind(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		movie, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)
		show, err := store.TryAcquireLock(603, MediaKindShow, "job-2", "", time.Hour)
		require.NoError(t, err)

		assert.True(t, show.Acquired)
		assert.NotEqual(t, movie.Media.ID, show.Media.ID)
	})
}

func TestTryAcquireLock_AfterRelease(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		first, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.ReleaseLock(first.Media.ID, "job-1"))

		second, err := store.TryAcquireLock(603, MediaKindMovie, "job-2", "", time.Hour)
		require.NoError(t, err)
		assert.True(t, second.Acquired)
		assert.False(t, second.Created)
		assert.Equal(t, first.Media.ID, second.Media.ID)
	})
}

func TestTryAcquireLock_StaleClaimTakenOver(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-2", "", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, claim.Acquired)
		assert.Equal(t, "job-2", claim.Media.ActiveJobID)
	})
}

func TestTryAcquireLock_Concurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		const workers = 16

		var wg sync.WaitGroup
		var mu sync.Mutex
		acquired := 0
		errs := make([]error, 0)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				claim, err := store.TryAcquireLock(603, MediaKindMovie, fmt.Sprintf("job-%d", i), "", time.Hour)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if claim.Acquired {
					acquired++
				}
			}(i)
		}
		wg.Wait()

		require.Empty(t, errs)
		assert.Equal(t, 1, acquired)

		medias, total, err := store.ListMedias(ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, medias, 1)
	})
}

func TestReleaseLock_NotHeld(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)

		err = store.ReleaseLock(claim.Media.ID, "job-2")
		assert.ErrorIs(t, err, ErrLockNotHeld)

		err = store.ReleaseLock(claim.Media.ID+100, "job-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateMediaForJob_RequiresClaim(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)

		media := claim.Media
		media.Title = "The Matrix"
		media.JobStatus = JobStatusResolvingSource
		require.NoError(t, store.UpdateMediaForJob(media, "job-1"))

		stored, err := store.GetMediaByID(media.ID)
		require.NoError(t, err)
		assert.Equal(t, "The Matrix", stored.Title)
		assert.Equal(t, JobStatusResolvingSource, stored.JobStatus)
		assert.Equal(t, "job-1", stored.ActiveJobID)

		media.Title = "Hijacked"
		err = store.UpdateMediaForJob(media, "job-2")
		assert.ErrorIs(t, err, ErrLockNotHeld)
	})
}

func TestUpdateMediaForJob_KeepsAvailability(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(1399, MediaKindShow, "job-1", "", time.Hour)
		require.NoError(t, err)
		media := claim.Media

		// The refresh pass flips the item while the job holds a stale copy.
		require.NoError(t, store.SetAvailability(media.ID, false, "all links dead"))

		media.IsAvailable = true
		media.ErrorMessage = ""
		media.JobStatus = JobStatusCaching
		require.NoError(t, store.UpdateMediaForJob(media, "job-1"))

		stored, err := store.GetMediaByID(media.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsAvailable)
		assert.Equal(t, "all links dead", stored.ErrorMessage)
		assert.Equal(t, JobStatusCaching, stored.JobStatus)
	})
}

func TestRenewLock_ExtendsLease(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)
		mediaID := claim.Media.ID

		time.Sleep(60 * time.Millisecond)
		require.NoError(t, store.RenewLock(mediaID, "job-1"))

		other, err := store.TryAcquireLock(603, MediaKindMovie, "job-2", "", 50*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, other.Acquired)

		time.Sleep(60 * time.Millisecond)
		other, err = store.TryAcquireLock(603, MediaKindMovie, "job-2", "", 50*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, other.Acquired)

		assert.ErrorIs(t, store.RenewLock(mediaID, "job-1"), ErrLockNotHeld)
		assert.ErrorIs(t, store.RenewLock(9999, "job-1"), ErrNotFound)
	})
}

func TestListMedias_TitleQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		titles := map[int64]string{603: "The Matrix", 604: "The Matrix Reloaded", 1399: "Game of Thrones", 42: "100% Wolf"}
		for id, title := range titles {
			jobID := fmt.Sprintf("job-%d", id)
			claim, err := store.TryAcquireLock(id, MediaKindMovie, jobID, "", time.Hour)
			require.NoError(t, err)
			claim.Media.Title = title
			require.NoError(t, store.UpdateMediaForJob(claim.Media, jobID))
		}

		page, total, err := store.ListMedias(ListOptions{Query: "matrix"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 2)
		assert.ElementsMatch(t, []string{"The Matrix", "The Matrix Reloaded"}, []string{page[0].Title, page[1].Title})

		_, total, err = store.ListMedias(ListOptions{Query: "  THRONES "})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		_, total, err = store.ListMedias(ListOptions{Query: "%"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		_, total, err = store.ListMedias(ListOptions{Query: "nothing"})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestListMedias_Pagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		for i := 1; i <= 5; i++ {
			claim, err := store.TryAcquireLock(int64(i), MediaKindMovie, fmt.Sprintf("job-%d", i), "", time.Hour)
			require.NoError(t, err)
			if i%2 == 0 {
				require.NoError(t, store.SetAvailability(claim.Media.ID, true, ""))
			}
		}
		_, err := store.TryAcquireLock(6, MediaKindShow, "job-6", "", time.Hour)
		require.NoError(t, err)

		page, total, err := store.ListMedias(ListOptions{Offset: 0, Limit: 4})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		require.Len(t, page, 4)
		assert.Equal(t, int64(6), page[0].ExternalID)

		page, _, err = store.ListMedias(ListOptions{Offset: 4, Limit: 4})
		require.NoError(t, err)
		assert.Len(t, page, 2)

		available := true
		page, total, err = store.ListMedias(ListOptions{Available: &available})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, page, 2)

		_, total, err = store.ListMedias(ListOptions{Kind: MediaKindShow})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		counts, err := store.CountMediasByJobStatus()
		require.NoError(t, err)
		assert.Equal(t, 6, counts[JobStatusQueued])
	})
}

func TestReplaceLink_ReplacesSameUnit(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(1399, MediaKindShow, "job-1", "", time.Hour)
		require.NoError(t, err)
		mediaID := claim.Media.ID

		ep1 := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(1), Provider: "real-debrid", CacheRef: "a", URL: "https://cdn/1"}
		ep2 := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(2), Provider: "real-debrid", CacheRef: "b", URL: "https://cdn/2"}
		require.NoError(t, store.ReplaceLink(ep1))
		require.NoError(t, store.ReplaceLink(ep2))

		again := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(1), Provider: "real-debrid", CacheRef: "c", URL: "https://cdn/1b"}
		require.NoError(t, store.ReplaceLink(again))

		links, err := store.GetLinksByMediaID(mediaID)
		require.NoError(t, err)
		require.Len(t, links, 2)

		urls := []string{links[0].URL, links[1].URL}
		assert.ElementsMatch(t, []string{"https://cdn/2", "https://cdn/1b"}, urls)

		count, err := store.CountLiveLinks(mediaID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestUpdateLink_AfterReplace(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(1399, MediaKindShow, "job-1", "", time.Hour)
		require.NoError(t, err)
		mediaID := claim.Media.ID

		old := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(1), Provider: "real-debrid", CacheRef: "a", URL: "https://cdn/old"}
		require.NoError(t, store.ReplaceLink(old))
		stale, err := store.GetLinkByID(old.ID)
		require.NoError(t, err)

		fresh := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(1), Provider: "real-debrid", CacheRef: "b", URL: "https://cdn/new"}
		require.NoError(t, store.ReplaceLink(fresh))

		stale.URL = "https://cdn/refreshed"
		assert.ErrorIs(t, store.UpdateLink(stale), ErrNotFound)

		links, err := store.GetLinksByMediaID(mediaID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "https://cdn/new", links[0].URL)

		links[0].FailureCount = 2
		require.NoError(t, store.UpdateLink(links[0]))
		stored, err := store.GetLinkByID(links[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.FailureCount)
	})
}

func TestGetExpiringLinks_SkipsPermanentAndDead(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)
		mediaID := claim.Media.ID
		now := time.Now()

		soon := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(1), Provider: "real-debrid", URL: "soon", ExpiresAt: timePtr(now.Add(30 * time.Minute))}
		later := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(2), Provider: "real-debrid", URL: "later", ExpiresAt: timePtr(now.Add(10 * time.Hour))}
		permanent := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(3), Provider: "premiumize", URL: "permanent"}
		dead := &CachedLink{MediaItemID: mediaID, Season: intPtr(1), Episode: intPtr(4), Provider: "real-debrid", URL: "dead", ExpiresAt: timePtr(now.Add(time.Minute)), Dead: true}
		for _, link := range []*CachedLink{soon, later, permanent, dead} {
			require.NoError(t, store.ReplaceLink(link))
		}

		links, err := store.GetExpiringLinks(now.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "soon", links[0].URL)

		stats, err := store.GetLinkStats(now, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Total)
		assert.Equal(t, 3, stats.Live)
		assert.Equal(t, 1, stats.Dead)
		assert.Equal(t, 1, stats.Permanent)
		assert.Equal(t, 1, stats.ExpiringSoon)
	})
}

func TestDeleteDeadLinksBefore(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(603, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)
		now := time.Now()

		old := &CachedLink{MediaItemID: claim.Media.ID, Season: intPtr(1), Episode: intPtr(1), Provider: "real-debrid", URL: "old", Dead: true, LastRefreshAttempt: timePtr(now.Add(-10 * 24 * time.Hour))}
		recent := &CachedLink{MediaItemID: claim.Media.ID, Season: intPtr(1), Episode: intPtr(2), Provider: "real-debrid", URL: "recent", Dead: true, LastRefreshAttempt: timePtr(now.Add(-time.Hour))}
		live := &CachedLink{MediaItemID: claim.Media.ID, Season: intPtr(1), Episode: intPtr(3), Provider: "real-debrid", URL: "live", LastRefreshAttempt: timePtr(now.Add(-10 * 24 * time.Hour))}
		for _, link := range []*CachedLink{old, recent, live} {
			require.NoError(t, store.ReplaceLink(link))
		}

		deleted, err := store.DeleteDeadLinksBefore(now.Add(-7 * 24 * time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		links, err := store.GetLinksByMediaID(claim.Media.ID)
		require.NoError(t, err)
		assert.Len(t, links, 2)
	})
}

func TestLinkAndMediaNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		_, err := store.GetMediaByID(42)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.GetLinkByID(42)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.GetMediaByExternalID(42, MediaKindMovie)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCachedLink_ExpiresWithin(t *testing.T) {
	now := time.Now()
	link := &CachedLink{ExpiresAt: timePtr(now.Add(20 * time.Minute))}
	assert.True(t, link.ExpiresWithin(now, 30*time.Minute))
	assert.False(t, link.ExpiresWithin(now, 10*time.Minute))

	permanent := &CachedLink{}
	assert.True(t, permanent.IsPermanent())
	assert.False(t, permanent.ExpiresWithin(now, 24*time.Hour))
	assert.Equal(t, "movie", permanent.UnitKey())
	assert.Equal(t, "S01E02", UnitKey(intPtr(1), intPtr(2)))
}

func TestSetAvailability_KeepsClaim(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		claim, err := store.TryAcquireLock(42, MediaKindMovie, "job-1", "", time.Hour)
		require.NoError(t, err)

		require.NoError(t, store.SetAvailability(claim.Media.ID, false, "all links dead"))

		media, err := store.GetMediaByID(claim.Media.ID)
		require.NoError(t, err)
		assert.False(t, media.IsAvailable)
		assert.Equal(t, "all links dead", media.ErrorMessage)
		assert.Equal(t, "job-1", media.ActiveJobID)

		assert.ErrorIs(t, store.SetAvailability(9999, true, ""), ErrNotFound)
	})
}
