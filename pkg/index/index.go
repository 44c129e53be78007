// pkg/index/index.go - builds per-repository indexes and caches them on disk.

package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
	"github.com/windowsadmins/get/pkg/manifest"
	"github.com/windowsadmins/get/pkg/mirror"
	"github.com/windowsadmins/get/pkg/status"
)

// File is the cached index of one repository.
type File struct {
	RepositoryName string           `yaml:"repository_name"`
	Entries        []manifest.Entry `yaml:"entries"`
	BuiltAt        time.Time        `yaml:"built_at"`
}

// LastSyncer reports when a mirror was last synced.
type LastSyncer interface {
	LastSync(localPath string) (time.Time, error)
}

// LastSyncFunc adapts a function to LastSyncer.
type LastSyncFunc func(localPath string) (time.Time, error)

func (f LastSyncFunc) LastSync(localPath string) (time.Time, error) { return f(localPath) }

// Cache builds, stores and reloads index files under Dir.
type Cache struct {
	Dir     string
	Workers int        // parallel parses; NumCPU when zero
	Sync    LastSyncer // mirror.LastSync when nil
	Now     func() time.Time
}

// NewCache returns a cache storing files under dir.
func NewCache(dir string, workers int) *Cache {
	return &Cache{Dir: dir, Workers: workers, Sync: LastSyncFunc(mirror.LastSync), Now: time.Now}
}

// Path is the cache file of the named repository.
func (c *Cache) Path(repo string) string {
	return filepath.Join(c.Dir, repo+"_index.msgpack.zst")
}

func (c *Cache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Cache) lastSync(localPath string) (time.Time, error) {
	if c.Sync == nil {
		return mirror.LastSync(localPath)
	}
	return c.Sync.LastSync(localPath)
}

// Build walks the mirror of repo, parses every matching file in parallel and
// returns the entries of the files that parsed, ordered by path. Files that
// fail to parse are skipped. Once ctx is cancelled no new file is started and
// the build reports Cancelled.
func (c *Cache) Build(ctx context.Context, repo mirror.Repository, parser manifest.Parser) (*File, error) {
	if err := errs.Cancelled(ctx, repo.Name); err != nil {
		return nil, err
	}
	start := c.now()
	pattern := repo.Pattern
	if pattern == "" {
		pattern = parser.Pattern()
	}

	files, err := manifestFiles(repo.LocalPath, pattern)
	if err != nil {
		return nil, errs.Cache(repo.Name, fmt.Errorf("walking mirror %s: %w", repo.LocalPath, err))
	}
	logging.LogCacheEvent("build", "started", "Building index",
		logging.WithContext("repository", repo.Name), logging.WithContext("files", len(files)))

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]*manifest.Entry, len(files))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, rel := range files {
		if ctx.Err() != nil {
			break
		}
		i, rel := i, rel
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			data, err := os.ReadFile(filepath.Join(repo.LocalPath, filepath.FromSlash(rel)))
			if err != nil {
				logging.Debug("Skipping unreadable manifest", "error", errs.Parse(rel, err))
				return nil
			}
			entry, err := manifest.Decode(parser, rel, data)
			if err != nil {
				logging.Debug("Skipping invalid manifest", "error", errs.Parse(rel, err))
				return nil
			}
			entry.SourceRepository = repo.Name
			results[i] = &entry
			return nil
		})
	}
	_ = g.Wait()
	if err := errs.Cancelled(ctx, repo.Name); err != nil {
		return nil, err
	}

	entries := latest(results)
	logging.LogCacheEvent("build", "completed", "Built index",
		logging.WithContext("repository", repo.Name),
		logging.WithContext("entries", len(entries)),
		logging.WithContext("files", len(files)),
		logging.WithDuration(c.now().Sub(start)))
	return &File{RepositoryName: repo.Name, Entries: entries, BuiltAt: c.now()}, nil
}

// latest keeps one entry per identifier (ignoring case): the one with the
// highest version, at the position of the identifier's first manifest.
func latest(results []*manifest.Entry) []manifest.Entry {
	entries := make([]manifest.Entry, 0, len(results))
	seen := make(map[string]int)
	for _, e := range results {
		if e == nil {
			continue
		}
		key := strings.ToLower(e.Identifier)
		if i, ok := seen[key]; ok {
			if status.IsOlderVersion(entries[i].Version, e.Version) {
				entries[i] = *e
			}
			continue
		}
		seen[key] = len(entries)
		entries = append(entries, *e)
	}
	return entries
}

// manifestFiles lists the slash-separated paths under root whose base name
// matches pattern, in lexical order. .git directories are skipped.
func manifestFiles(root, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// Encode writes f as zstd-compressed msgpack.
func Encode(w io.Writer, f *File) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	enc := msgpack.NewEncoder(zw)
	enc.SetCustomStructTag("yaml")
	if err := enc.Encode(f); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Decode reads a file written by Encode.
func Decode(r io.Reader) (*File, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)
	dec.SetCustomStructTag("yaml")
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save writes f to its cache file. The file is written to a temporary name
// in Dir, synced and renamed over the old one.
func (c *Cache) Save(f *File) error {
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return errs.Cache(f.RepositoryName, fmt.Errorf("encoding index: %w", err))
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return errs.Cache(f.RepositoryName, err)
	}
	tmp, err := os.CreateTemp(c.Dir, "."+f.RepositoryName+"_index-*.tmp")
	if err != nil {
		return errs.Cache(f.RepositoryName, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errs.Cache(f.RepositoryName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Cache(f.RepositoryName, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Cache(f.RepositoryName, err)
	}
	if err := os.Rename(tmpName, c.Path(f.RepositoryName)); err != nil {
		return errs.Cache(f.RepositoryName, err)
	}
	return nil
}

// Load reads the cache file of repo. Any failure is a CacheError.
func (c *Cache) Load(repo string) (*File, error) {
	fh, err := os.Open(c.Path(repo))
	if err != nil {
		return nil, errs.Cache(repo, err)
	}
	defer fh.Close()

	f, err := Decode(fh)
	if err != nil {
		return nil, errs.Cache(repo, fmt.Errorf("corrupt index: %w", err))
	}
	if f.RepositoryName != repo {
		return nil, errs.Cache(repo, fmt.Errorf("index belongs to %q", f.RepositoryName))
	}
	return f, nil
}

// fresh reports whether f was built no earlier than the last sync of the mirror.
func (c *Cache) fresh(f *File, repo mirror.Repository) bool {
	last, err := c.lastSync(repo.LocalPath)
	if err != nil {
		return false
	}
	return !f.BuiltAt.Before(last)
}

// LoadOrBuild returns the cached entries of repo when the cache is valid,
// and otherwise builds, saves and returns a fresh index. A cache that cannot
// be written is logged; the built entries are still returned.
func (c *Cache) LoadOrBuild(ctx context.Context, repo mirror.Repository, parser manifest.Parser) ([]manifest.Entry, error) {
	f, err := c.Load(repo.Name)
	switch {
	case err == nil && c.fresh(f, repo):
		logging.LogCacheEvent("load", "completed", "Loaded index from cache",
			logging.WithContext("repository", repo.Name), logging.WithContext("entries", len(f.Entries)))
		return f.Entries, nil
	case err == nil:
		logging.LogCacheEvent("load", "skipped", "Index cache is older than the mirror",
			logging.WithContext("repository", repo.Name))
	case !errors.Is(err, fs.ErrNotExist):
		logging.Warn("Index cache unusable, rebuilding", "repository", repo.Name, "error", err)
	}

	f, err = c.Build(ctx, repo, parser)
	if err != nil {
		return nil, err
	}
	if err := c.Save(f); err != nil {
		logging.Warn("Failed to write index cache", "repository", repo.Name, "error", err)
	}
	return f.Entries, nil
}

// Invalidate removes the cache file of repo. A missing file is not an error.
func (c *Cache) Invalidate(repo string) error {
	if err := os.Remove(c.Path(repo)); err != nil && !os.IsNotExist(err) {
		return errs.Cache(repo, err)
	}
	return nil
}
