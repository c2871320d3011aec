package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/bingwall/internal/domain"
	"github.com/timmy/bingwall/internal/logger"
	"github.com/timmy/bingwall/internal/repository"
)

type fakeArchive struct {
	entries  []domain.Wallpaper
	images   map[string][]byte
	listErr  error
	fetchErr error

	mu      sync.Mutex
	listedN int
	fetched []string
}

func (f *fakeArchive) GetSourceID() string { return "fake" }

func (f *fakeArchive) List(_ context.Context, n int) ([]domain.Wallpaper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedN = n
	if f.listErr != nil {
		return nil, f.listErr
	}
	if n < len(f.entries) {
		return f.entries[:n], nil
	}
	return f.entries, nil
}

func (f *fakeArchive) FetchImage(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.images[url], nil
}

type fakeMirror struct {
	objects   map[string][]byte
	uploads   int
	uploadErr error
}

func (m *fakeMirror) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.uploads++
	return nil
}

func (m *fakeMirror) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *fakeMirror) GetURL(key string) string { return "https://mirror.example.com/" + key }

type fakeHistory struct {
	fetched []string
	purged  []string
	err     error
	onPurge func()
}

func (h *fakeHistory) RecordFetch(_ context.Context, w *domain.Wallpaper, _ int64) error {
	h.fetched = append(h.fetched, w.StartDate)
	return h.err
}

func (h *fakeHistory) MarkPurged(_ context.Context, date string, _ time.Time) error {
	h.purged = append(h.purged, date)
	if h.onPurge != nil {
		h.onPurge()
	}
	return h.err
}

// newArchive returns an archive listing the given dates newest first.
func newArchive(dates ...string) *fakeArchive {
	a := &fakeArchive{images: map[string][]byte{}}
	for i := len(dates) - 1; i >= 0; i-- {
		url := "https://www.bing.com/th?id=" + dates[i] + ".jpg"
		a.entries = append(a.entries, domain.Wallpaper{
			StartDate:   dates[i],
			URL:         url,
			Description: "Photo " + dates[i],
		})
		a.images[url] = []byte("jpeg-" + dates[i])
	}
	return a
}

func newService(t *testing.T, archive *fakeArchive, cfg *ArchiveConfig) (*ArchiveService, *repository.CacheRepository) {
	t.Helper()
	cache := repository.NewCacheRepository(filepath.Join(t.TempDir(), ".bing-background"))
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	if cfg == nil {
		cfg = &ArchiveConfig{Backlog: 3}
	}
	return NewArchiveService(archive, cache, log, cfg), cache
}

func seedEntries(t *testing.T, cache *repository.CacheRepository, dates ...string) {
	t.Helper()
	for _, d := range dates {
		_, err := cache.Create(&domain.Wallpaper{StartDate: d, URL: "https://example.com/" + d}, []byte("old-"+d))
		require.NoError(t, err)
	}
}

func TestUpdatePurgeWallpaper_EmptyCache(t *testing.T) {
	archive := newArchive("20240101", "20240102", "20240103")
	svc, cache := newService(t, archive, nil)
	ctx := context.Background()

	stats, err := svc.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, archive.listedN)
	assert.Equal(t, 3, stats.Listed)
	assert.Equal(t, 3, stats.Fetched)

	names, err := cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101", "20240102", "20240103"}, names)
	for _, d := range names {
		complete, err := cache.IsComplete(d)
		require.NoError(t, err)
		assert.True(t, complete, d)
	}

	m, err := cache.ReadManifest("20240103")
	require.NoError(t, err)
	assert.Equal(t, "Photo 20240103", m.Description)
	assert.Equal(t, "https://www.bing.com/th?id=20240103.jpg", m.URL)

	removed, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	names, err = cache.List()
	require.NoError(t, err)
	assert.Len(t, names, 3)

	path, err := svc.Wallpaper(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache.Dir(), "20240103", domain.ImageFileName), path)

	image, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-20240103", string(image))
}

func TestUpdate_Idempotent(t *testing.T) {
	archive := newArchive("20240101", "20240102", "20240103")
	svc, _ := newService(t, archive, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx)
	require.NoError(t, err)
	require.Len(t, archive.fetched, 3)

	stats, err := svc.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Zero(t, stats.Fetched)
	assert.Len(t, archive.fetched, 3, "no image should be downloaded twice")
}

func TestUpdate_KeepsExistingEntries(t *testing.T) {
	archive := newArchive("20240102", "20240103")
	svc, cache := newService(t, archive, nil)
	seedEntries(t, cache, "20240102")

	stats, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Fetched)

	image, err := os.ReadFile(cache.ImagePath("20240102"))
	require.NoError(t, err)
	assert.Equal(t, "old-20240102", string(image))
}

func TestUpdate_RefetchesIncompleteEntry(t *testing.T) {
	archive := newArchive("20240103")
	svc, cache := newService(t, archive, nil)
	require.NoError(t, os.MkdirAll(cache.EntryPath("20240103"), 0o755))

	stats, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Refetched)
	assert.Equal(t, 1, stats.Fetched)

	complete, err := cache.IsComplete("20240103")
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestUpdate_RemovesStaleStaging(t *testing.T) {
	archive := newArchive("20240103")
	svc, cache := newService(t, archive, nil)
	stale := filepath.Join(cache.Dir(), ".staging-20240103-999")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	_, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.NoDirExists(t, stale)
}

func TestUpdate_SkipsInvalidEntries(t *testing.T) {
	archive := newArchive("20240103")
	archive.entries = append(archive.entries,
		domain.Wallpaper{StartDate: "", URL: "https://example.com/a.jpg"},
		domain.Wallpaper{StartDate: "../escape", URL: "https://example.com/b.jpg"},
		domain.Wallpaper{StartDate: "20240102", URL: ""},
	)
	svc, cache := newService(t, archive, &ArchiveConfig{Backlog: 10})

	stats, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Invalid)
	assert.Equal(t, 1, stats.Fetched)

	names, err := cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20240103"}, names)
}

func TestUpdate_ListErrorAborts(t *testing.T) {
	archive := newArchive()
	archive.listErr = errors.New("connection refused")
	svc, cache := newService(t, archive, nil)

	_, err := svc.Update(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.listErr)

	names, err := cache.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUpdate_FetchErrorLeavesNoEntry(t *testing.T) {
	archive := newArchive("20240103")
	archive.fetchErr = errors.New("reset by peer")
	svc, cache := newService(t, archive, nil)

	_, err := svc.Update(context.Background())
	require.Error(t, err)

	exists, err := cache.Exists("20240103")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPurge_RemovesOldest(t *testing.T) {
	svc, cache := newService(t, newArchive(), nil)
	seedEntries(t, cache, "20240105", "20240101", "20240103", "20240102", "20240104")

	removed, err := svc.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	names, err := cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20240103", "20240104", "20240105"}, names)
}

func TestPurge_NothingToDo(t *testing.T) {
	svc, cache := newService(t, newArchive(), nil)
	seedEntries(t, cache, "20240101", "20240102")

	removed, err := svc.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	names, err := cache.List()
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestPurge_MissingCache(t *testing.T) {
	svc, _ := newService(t, newArchive(), nil)

	removed, err := svc.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestWallpaper_EmptyCache(t *testing.T) {
	svc, _ := newService(t, newArchive(), nil)

	path, err := svc.Wallpaper(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestUpdate_MirrorsOnce(t *testing.T) {
	archive := newArchive("20240102", "20240103")
	mirror := &fakeMirror{objects: map[string][]byte{}}
	svc, _ := newService(t, archive, &ArchiveConfig{Backlog: 3, Mirror: mirror, MirrorPrefix: "bing/"})
	ctx := context.Background()

	_, err := svc.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, mirror.uploads)
	assert.Equal(t, "jpeg-20240103", string(mirror.objects["bing/20240103/image"]))
	assert.Equal(t,
		"description=Photo 20240103\nurl=https://www.bing.com/th?id=20240103.jpg\n",
		string(mirror.objects["bing/20240103/manifest"]))

	_, err = svc.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, mirror.uploads)
}

func TestUpdateAndPurge_Journal(t *testing.T) {
	archive := newArchive("20240101", "20240102", "20240103", "20240104")
	history := &fakeHistory{}
	svc, _ := newService(t, archive, &ArchiveConfig{Backlog: 4, History: history})
	ctx := context.Background()

	_, err := svc.Update(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"20240101", "20240102", "20240103", "20240104"}, history.fetched)

	svc.backlog = 2
	_, err = svc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101", "20240102"}, history.purged)
}

func TestUpdate_JournalErrorIsNotFatal(t *testing.T) {
	archive := newArchive("20240103")
	history := &fakeHistory{err: errors.New("database is locked")}
	svc, cache := newService(t, archive, &ArchiveConfig{Backlog: 3, History: history})

	stats, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)

	complete, err := cache.IsComplete("20240103")
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestUpdate_RetriesFailedMirrorUpload(t *testing.T) {
	archive := newArchive("20240103")
	mirror := &fakeMirror{objects: map[string][]byte{}, uploadErr: errors.New("service unavailable")}
	svc, cache := newService(t, archive, &ArchiveConfig{Backlog: 3, Mirror: mirror})
	ctx := context.Background()

	_, err := svc.Update(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, mirror.uploadErr)

	complete, err := cache.IsComplete("20240103")
	require.NoError(t, err)
	require.True(t, complete)

	mirror.uploadErr = nil
	stats, err := svc.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Fetched)
	assert.Equal(t, 2, stats.Mirrored)
	assert.Equal(t, "jpeg-20240103", string(mirror.objects["20240103/image"]))
	assert.Contains(t, mirror.objects, "20240103/manifest")
	assert.Len(t, archive.fetched, 1)
}

func TestUpdate_BackfillsMirrorForCachedEntries(t *testing.T) {
	archive := newArchive("20240102", "20240103")
	mirror := &fakeMirror{objects: map[string][]byte{}}
	svc, cache := newService(t, archive, &ArchiveConfig{Backlog: 3, Mirror: mirror, MirrorPrefix: "bing/"})
	seedEntries(t, cache, "20240102", "20240103")

	stats, err := svc.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 4, stats.Mirrored)
	assert.Equal(t, "old-20240102", string(mirror.objects["bing/20240102/image"]))
	assert.Equal(t,
		"description=\nurl=https://example.com/20240103\n",
		string(mirror.objects["bing/20240103/manifest"]))
	assert.Empty(t, archive.fetched)
}

func TestPurge_ReportsEntriesRemovedBeforeError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	history := &fakeHistory{onPurge: cancel}
	svc, cache := newService(t, newArchive(), &ArchiveConfig{Backlog: 1, History: history})
	seedEntries(t, cache, "20240101", "20240102", "20240103")

	removed, err := svc.Purge(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"20240101"}, history.purged)

	names, err := cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20240102", "20240103"}, names)
}
