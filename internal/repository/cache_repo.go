package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timmy/bingwall/internal/domain"
)

// stagingPrefix marks directories that are still being written. Names
// starting with "." are never listed as cache entries.
const stagingPrefix = ".staging-"

// ErrEntryExists is returned by Create when the dated directory is already present.
var ErrEntryExists = errors.New("cache entry already exists")

// CacheRepository manages the dated wallpaper cache on local disk:
//
//	<dir>/<startdate>/manifest
//	<dir>/<startdate>/image
type CacheRepository struct {
	dir string
}

// NewCacheRepository creates a new CacheRepository rooted at dir.
func NewCacheRepository(dir string) *CacheRepository {
	return &CacheRepository{dir: dir}
}

// Dir returns the cache base directory.
func (r *CacheRepository) Dir() string {
	return r.dir
}

// EnsureDir creates the cache base directory if it does not exist.
func (r *CacheRepository) EnsureDir() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

// ValidName reports whether a start date can be used as a cache directory name.
func ValidName(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Base(name) == name
}

// List returns the names of all cache entries in ascending order. Because
// start dates are fixed-width and zero-padded, that is oldest first.
// A missing cache directory yields an empty list.
func (r *CacheRepository) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// EntryPath returns the directory of the entry for date.
func (r *CacheRepository) EntryPath(date string) string {
	return filepath.Join(r.dir, date)
}

// ImagePath returns the image file path of the entry for date.
func (r *CacheRepository) ImagePath(date string) string {
	return filepath.Join(r.dir, date, domain.ImageFileName)
}

// Exists reports whether a directory for date is present, complete or not.
func (r *CacheRepository) Exists(date string) (bool, error) {
	info, err := os.Stat(r.EntryPath(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// IsComplete reports whether the entry for date holds both a manifest and an image.
func (r *CacheRepository) IsComplete(date string) (bool, error) {
	for _, name := range []string{domain.ManifestFileName, domain.ImageFileName} {
		ok, err := isRegularFile(filepath.Join(r.dir, date, name))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Create writes a new entry. Both files land in a staging directory first,
// which is then renamed into place, so a dated directory never exists half written.
// Returns the image path.
func (r *CacheRepository) Create(w *domain.Wallpaper, image []byte) (string, error) {
	if !ValidName(w.StartDate) {
		return "", fmt.Errorf("invalid cache entry name %q", w.StartDate)
	}
	if exists, err := r.Exists(w.StartDate); err != nil {
		return "", err
	} else if exists {
		return "", fmt.Errorf("%w: %s", ErrEntryExists, w.StartDate)
	}
	if err := r.EnsureDir(); err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp(r.dir, stagingPrefix+w.StartDate+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	// MkdirTemp creates 0700
	if err := os.Chmod(staging, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare staging directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, domain.ManifestFileName), w.Manifest().Encode(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, domain.ImageFileName), image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(staging, r.EntryPath(w.StartDate)); err != nil {
		return "", fmt.Errorf("failed to commit cache entry: %w", err)
	}
	committed = true

	return r.ImagePath(w.StartDate), nil
}

// ReadFile reads one file of the entry for date.
func (r *CacheRepository) ReadFile(date, name string) ([]byte, error) {
	if !ValidName(date) {
		return nil, fmt.Errorf("invalid cache entry name %q", date)
	}
	data, err := os.ReadFile(filepath.Join(r.dir, date, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", name, date, err)
	}
	return data, nil
}

// ReadManifest reads the manifest of the entry for date.
func (r *CacheRepository) ReadManifest(date string) (domain.Manifest, error) {
	data, err := r.ReadFile(date, domain.ManifestFileName)
	if err != nil {
		return domain.Manifest{}, err
	}
	return domain.ParseManifest(data), nil
}

// Remove deletes the entry for date recursively.
func (r *CacheRepository) Remove(date string) error {
	if !ValidName(date) {
		return fmt.Errorf("invalid cache entry name %q", date)
	}
	if err := os.RemoveAll(r.EntryPath(date)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", date, err)
	}
	return nil
}

// Newest returns the image path of the most recent entry that has an image,
// or "" when there is none.
func (r *CacheRepository) Newest() (string, error) {
	names, err := r.List()
	if err != nil {
		return "", err
	}
	for i := len(names) - 1; i >= 0; i-- {
		path := r.ImagePath(names[i])
		ok, err := isRegularFile(path)
		if err != nil {
			return "", err
		}
		if ok {
			return path, nil
		}
	}
	return "", nil
}

// CleanStaging removes staging directories left behind by an interrupted run.
// Returns the number removed.
func (r *CacheRepository) CleanStaging() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list cache: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove staging directory: %w", err)
		}
		removed++
	}
	return removed, nil
}

func isRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
