// pkg/installer/direct.go - plain downloads and clones that bypass the indexes.

package installer

import (
	"context"
	"errors"
	"os"

	"github.com/windowsadmins/get/pkg/download"
	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
)

// Cloner makes git working copies outside the managed mirrors.
type Cloner interface {
	Clone(ctx context.Context, remoteURL, dest string) error
}

// Download fetches rawURL into the download directory and returns the file
// path. A non-empty sha256 must match or the file is removed.
func (m *Manager) Download(ctx context.Context, rawURL, sha256 string) (string, error) {
	d := m.Downloader
	if d == nil {
		d = download.New(nil)
	}
	path, err := d.Download(ctx, rawURL, m.DownloadDir)
	if err != nil {
		return "", err
	}
	if sha256 == "" {
		return path, nil
	}
	if err := download.Verify(path, sha256); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			logging.Warn("Failed to remove rejected download", "path", path, "error", rmErr)
		}
		return "", err
	}
	return path, nil
}

// Clone copies the git repository at remoteURL to dest.
func (m *Manager) Clone(ctx context.Context, remoteURL, dest string) error {
	if m.Cloner == nil {
		return errs.Mirror(remoteURL, errors.New("no git runner configured"))
	}
	return m.Cloner.Clone(ctx, remoteURL, dest)
}
