// pkg/installer/installer.go - the install, uninstall, search and update entry points.

package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/windowsadmins/get/pkg/config"
	"github.com/windowsadmins/get/pkg/download"
	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/index"
	"github.com/windowsadmins/get/pkg/logging"
	"github.com/windowsadmins/get/pkg/manifest"
	"github.com/windowsadmins/get/pkg/mirror"
	"github.com/windowsadmins/get/pkg/progress"
	"github.com/windowsadmins/get/pkg/search"
	"github.com/windowsadmins/get/pkg/status"
	"github.com/windowsadmins/get/pkg/steps"
)

// Syncer keeps a repository mirror fresh.
type Syncer interface {
	Sync(ctx context.Context, repo mirror.Repository) error
}

// Manager ties the mirrors, index caches, step interpreter and installed
// records together. Repositories are consulted in slice order.
type Manager struct {
	Repos       []mirror.Repository
	Mirror      Syncer
	Cloner      Cloner
	Cache       *index.Cache
	Store       *status.Store
	Downloader  *download.Downloader
	DownloadDir string
	AppsDir     string // parent of extracted archive installs
	Arch        string // host architecture, normalized
	Shell       string
	Passthrough string // package manager binary used when nothing matches
	Effects     steps.Effects
	Now         func() time.Time
}

// Report describes a finished install or uninstall.
type Report struct {
	Identifier  string
	Version     string
	Repository  string
	Executed    int
	Passthrough bool
}

// NewManager builds a Manager from the loaded configuration.
func NewManager(cfg *config.Configuration, fn progress.Func) *Manager {
	arch := cfg.Architecture
	if arch == "" {
		arch = status.GetSystemArchitecture()
	}
	mir := mirror.New()
	return &Manager{
		Repos:       mirror.FromConfig(cfg),
		Mirror:      mir,
		Cloner:      mir,
		Cache:       index.NewCache(cfg.CacheDir, cfg.IndexWorkers),
		Store:       status.NewStore(cfg.StatePath),
		Downloader:  download.New(fn),
		DownloadDir: cfg.DownloadDir,
		AppsDir:     cfg.AppsDir,
		Arch:        manifest.NormalizeArch(arch),
		Shell:       cfg.Shell,
		Passthrough: cfg.PreferredManager,
	}
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Manager) effects() steps.Effects {
	if m.Effects == nil {
		m.Effects = steps.NewHost(m.Downloader, m.DownloadDir, m.Shell)
	}
	return m.Effects
}

// Repository returns the configured repository called name.
func (m *Manager) Repository(name string) (mirror.Repository, bool) {
	for _, r := range m.Repos {
		if r.Name == name {
			return r, true
		}
	}
	return mirror.Repository{}, false
}

// RefreshIndex makes the mirror of repo fresh and returns its index. With
// force the cached index is discarded and rebuilt.
func (m *Manager) RefreshIndex(ctx context.Context, repo mirror.Repository, force bool) ([]manifest.Entry, error) {
	parser, err := manifest.ForFormat(repo.Format)
	if err != nil {
		return nil, err
	}
	if err := m.Mirror.Sync(ctx, repo); err != nil {
		return nil, err
	}
	if force {
		if err := m.Cache.Invalidate(repo.Name); err != nil {
			logging.Warn("Failed to remove index cache", "repository", repo.Name, "error", err)
		}
	}
	return m.Cache.LoadOrBuild(ctx, repo, parser)
}

// Refresh rebuilds the index of every repository and returns how many were refreshed.
func (m *Manager) Refresh(ctx context.Context) (int, error) {
	var refreshed int
	for _, repo := range m.Repos {
		entries, err := m.RefreshIndex(ctx, repo, true)
		if errs.Is(err, errs.KindCancelled) {
			return refreshed, err
		}
		if err != nil {
			logging.Warn("Skipping repository", "repository", repo.Name, "error", err)
			continue
		}
		logging.Info("Refreshed index", "repository", repo.Name, "entries", len(entries))
		refreshed++
	}
	if refreshed == 0 && len(m.Repos) > 0 {
		return 0, fmt.Errorf("no repository could be refreshed")
	}
	return refreshed, nil
}

// Indices returns the index of every usable repository in priority order.
// A repository that cannot be mirrored or indexed is skipped.
func (m *Manager) Indices(ctx context.Context) ([]search.Index, error) {
	indices := make([]search.Index, 0, len(m.Repos))
	for _, repo := range m.Repos {
		entries, err := m.RefreshIndex(ctx, repo, false)
		if errs.Is(err, errs.KindCancelled) {
			return nil, err
		}
		if err != nil {
			logging.Warn("Skipping repository", "repository", repo.Name, "error", err)
			continue
		}
		indices = append(indices, search.Index{Repository: repo.Name, Entries: entries})
	}
	return indices, nil
}

// Search returns the entries matching query across all repositories.
func (m *Manager) Search(ctx context.Context, query string) ([]manifest.Entry, error) {
	indices, err := m.Indices(ctx)
	if err != nil {
		return nil, err
	}
	return search.Search(query, indices), nil
}

// ResolveAndInstall resolves name to one manifest, runs its install steps and
// records the installation. When no repository carries name and a
// passthrough package manager is configured, the request is handed to it.
func (m *Manager) ResolveAndInstall(ctx context.Context, name string) (*Report, error) {
	indices, err := m.Indices(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := search.Resolve(name, indices)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) && m.Passthrough != "" {
			if perr := m.passthrough(ctx, name); perr != nil {
				return nil, perr
			}
			return &Report{Identifier: name, Passthrough: true}, nil
		}
		return nil, err
	}

	start := time.Now()
	logging.LogInstallStart(entry.Identifier, entry.Version)

	plan, inst, err := m.InstallPlan(entry)
	if err != nil {
		logging.LogInstallFailed(entry.Identifier, entry.Version, err)
		return nil, err
	}

	report := &Report{Identifier: entry.Identifier, Version: entry.Version, Repository: entry.SourceRepository}
	res := steps.New(m.scope(entry, inst), m.effects(), m.DownloadDir).Run(ctx, "install", plan)
	report.Executed = res.Executed
	if res.State != steps.Completed {
		logging.LogInstallFailed(entry.Identifier, entry.Version, res.Err)
		return report, res.Err
	}

	err = m.Store.Put(status.Record{
		Identifier:    entry.Identifier,
		Version:       entry.Version,
		Repository:    entry.SourceRepository,
		StepsExecuted: res.Executed,
		InstalledAt:   m.now(),
	})
	if err != nil {
		return report, err
	}
	logging.LogInstallComplete(entry.Identifier, entry.Version, time.Since(start))
	return report, nil
}

// ResolveAndUninstall finds the manifest whose identifier is exactly name,
// runs its uninstall steps and removes the installed record.
func (m *Manager) ResolveAndUninstall(ctx context.Context, name string) (*Report, error) {
	indices, err := m.Indices(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := search.ResolveExact(name, indices)
	if err != nil {
		return nil, err
	}
	rec, ok, err := m.Store.Get(entry.Identifier)
	if err != nil {
		return nil, err
	}
	if ok {
		// prefer the repository the application was installed from
		if e, found := search.Find(rec.Repository, rec.Identifier, indices); found {
			entry = e
		}
	}

	start := time.Now()
	logging.LogUninstallStart(entry.Identifier, entry.Version)

	plan, inst, err := m.UninstallPlan(entry)
	if err != nil {
		logging.LogUninstallFailed(entry.Identifier, entry.Version, err)
		return nil, err
	}

	report := &Report{Identifier: entry.Identifier, Version: entry.Version, Repository: entry.SourceRepository}
	res := steps.New(m.scope(entry, inst), m.effects(), m.DownloadDir).Run(ctx, "uninstall", plan)
	report.Executed = res.Executed
	if res.State != steps.Completed {
		logging.LogUninstallFailed(entry.Identifier, entry.Version, res.Err)
		return report, res.Err
	}

	if _, err := m.Store.Remove(entry.Identifier); err != nil {
		return report, err
	}
	logging.LogUninstallComplete(entry.Identifier, entry.Version, time.Since(start))
	return report, nil
}

// Update is an installed application with a newer version available.
type Update struct {
	status.Record
	Available string
}

// Outdated lists installed applications whose repository now carries a newer version.
func (m *Manager) Outdated(ctx context.Context) ([]Update, error) {
	records, err := m.Store.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	indices, err := m.Indices(ctx)
	if err != nil {
		return nil, err
	}

	var updates []Update
	for _, rec := range records {
		entry, ok := search.Find(rec.Repository, rec.Identifier, indices)
		if !ok {
			e, err := search.ResolveExact(rec.Identifier, indices)
			if err != nil {
				logging.Debug("Installed application no longer indexed", "package", rec.Identifier)
				continue
			}
			entry = e
		}
		if status.IsOlderVersion(rec.Version, entry.Version) {
			updates = append(updates, Update{Record: rec, Available: entry.Version})
		}
	}
	return updates, nil
}

// List returns the installed applications.
func (m *Manager) List() ([]status.Record, error) {
	return m.Store.List()
}
