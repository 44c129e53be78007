// pkg/mirror/mirror.go - keeps local working copies of remote manifest repositories fresh.

package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/windowsadmins/get/pkg/config"
	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
)

const (
	// MarkerFile holds the unix time of the last successful clone or pull,
	// to the nanosecond.
	MarkerFile = "last_pull.txt"
	// DefaultTTL is how long a mirror is considered fresh.
	DefaultTTL = 24 * time.Hour
)

// Repository is one configured manifest source and its local working copy.
type Repository struct {
	Name      string
	RemoteURL string
	LocalPath string
	Format    string
	Pattern   string // base-name glob; empty means the format default
}

// FromConfig lists the configured repositories in priority order.
func FromConfig(cfg *config.Configuration) []Repository {
	repos := make([]Repository, 0, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		repos = append(repos, Repository{
			Name:      r.Name,
			RemoteURL: r.URL,
			LocalPath: cfg.RepoPath(r.Name),
			Format:    strings.ToLower(r.Format),
			Pattern:   r.Pattern,
		})
	}
	return repos
}

// Runner executes git with the given arguments and returns its combined output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// GitRunner runs the git binary found on PATH.
type GitRunner struct {
	Binary string
}

// execCommand is abstracted for testing
var execCommand = exec.Command

// Run implements Runner. The process is not tied to ctx: once started it is
// allowed to finish.
func (g GitRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("missing dependency %s: %w", bin, err)
	}

	cmd := execCommand(bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("git %s failed: %w | output: %s",
			strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// Mirror clones or pulls repositories on demand.
type Mirror struct {
	Git Runner
	TTL time.Duration
	Now func() time.Time
}

// New returns a Mirror using the system git and the default TTL.
func New() *Mirror {
	return &Mirror{Git: GitRunner{}, TTL: DefaultTTL, Now: time.Now}
}

func (m *Mirror) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Mirror) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

// EnsureFresh makes sure localPath holds a working copy of remoteURL that was
// synced within the TTL. A missing copy is cloned; a stale one is pulled.
// The cancellation check happens before any git process is started.
func (m *Mirror) EnsureFresh(ctx context.Context, remoteURL, localPath string) error {
	if err := errs.Cancelled(ctx, localPath); err != nil {
		return err
	}

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		return m.clone(ctx, remoteURL, localPath)
	} else if err != nil {
		return errs.Mirror(localPath, err)
	}

	last, err := LastSync(localPath)
	if err == nil && m.now().Sub(last) <= m.ttl() {
		logging.Debug("Repository is up-to-date, no pull needed", "path", localPath, "last_sync", last)
		return nil
	}
	return m.pull(ctx, localPath)
}

// Sync is EnsureFresh for a configured repository.
func (m *Mirror) Sync(ctx context.Context, repo Repository) error {
	return m.EnsureFresh(ctx, repo.RemoteURL, repo.LocalPath)
}

// LastSync reads the marker of the mirror at localPath.
func (m *Mirror) LastSync(localPath string) (time.Time, error) {
	return LastSync(localPath)
}

// Clone makes a full working copy of remoteURL at dest, or in a directory
// named after the repository under the current one when dest is empty. The
// copy is not a managed mirror and gets no sync marker.
func (m *Mirror) Clone(ctx context.Context, remoteURL, dest string) error {
	if err := errs.Cancelled(ctx, remoteURL); err != nil {
		return err
	}
	args := []string{"clone", remoteURL}
	if dest != "" {
		args = append(args, dest)
	}
	logging.LogMirrorEvent("clone", "started", "Cloning repository",
		logging.WithContext("url", remoteURL), logging.WithContext("path", dest))
	if _, err := m.Git.Run(ctx, args...); err != nil {
		logging.LogMirrorEvent("clone", "failed", "Failed to clone repository",
			logging.WithContext("url", remoteURL), logging.WithError(err))
		return errs.Mirror(remoteURL, err)
	}
	logging.LogMirrorEvent("clone", "completed", "Cloned repository", logging.WithContext("url", remoteURL))
	return nil
}

func (m *Mirror) clone(ctx context.Context, remoteURL, localPath string) error {
	logging.LogMirrorEvent("clone", "started", "Cloning repository",
		logging.WithContext("url", remoteURL), logging.WithContext("path", localPath))

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errs.Mirror(localPath, err)
	}
	if _, err := m.Git.Run(ctx, "clone", "--depth", "1", remoteURL, localPath); err != nil {
		logging.LogMirrorEvent("clone", "failed", "Failed to clone repository",
			logging.WithContext("url", remoteURL), logging.WithError(err))
		return errs.Mirror(remoteURL, err)
	}
	if err := m.stamp(localPath); err != nil {
		return errs.Mirror(localPath, err)
	}
	logging.LogMirrorEvent("clone", "completed", "Cloned repository", logging.WithContext("path", localPath))
	return nil
}

func (m *Mirror) pull(ctx context.Context, localPath string) error {
	logging.LogMirrorEvent("pull", "started", "Pulling latest changes", logging.WithContext("path", localPath))

	if _, err := m.Git.Run(ctx, "-C", localPath, "pull"); err != nil {
		logging.LogMirrorEvent("pull", "failed", "Failed to pull repository",
			logging.WithContext("path", localPath), logging.WithError(err))
		return errs.Mirror(localPath, err)
	}
	if err := m.stamp(localPath); err != nil {
		return errs.Mirror(localPath, err)
	}
	logging.LogMirrorEvent("pull", "completed", "Updated repository", logging.WithContext("path", localPath))
	return nil
}

// stamp records the current time as the last successful sync.
func (m *Mirror) stamp(localPath string) error {
	now := m.now()
	ts := fmt.Sprintf("%d.%09d", now.Unix(), now.Nanosecond())
	return os.WriteFile(filepath.Join(localPath, MarkerFile), []byte(ts), 0644)
}

// LastSync reads the last-sync marker of a mirror: unix seconds with an
// optional fraction of up to nine digits.
func LastSync(localPath string) (time.Time, error) {
	data, err := os.ReadFile(filepath.Join(localPath, MarkerFile))
	if err != nil {
		return time.Time{}, err
	}
	whole, frac, dotted := strings.Cut(strings.TrimSpace(string(data)), ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid sync marker in %s: %w", localPath, err)
	}
	var nanos int64
	if dotted {
		if frac == "" || len(frac) > 9 || strings.Trim(frac, "0123456789") != "" {
			return time.Time{}, fmt.Errorf("invalid sync marker in %s: fraction %q", localPath, frac)
		}
		nanos, _ = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
	}
	return time.Unix(secs, nanos), nil
}
