// pkg/download/download.go - streaming downloads with progress and SHA-256 verification.

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
	"github.com/windowsadmins/get/pkg/progress"
)

const (
	// UserAgent identifies the client to download servers.
	UserAgent = "get-package-manager/1.0"
	// DefaultChunkSize is the size of each read from the response body.
	DefaultChunkSize = 8 * 1024
	// VerifyBlockSize is the size of each block fed to the hash.
	VerifyBlockSize = 1 << 20
	// Timeout bounds the wait for response headers.
	Timeout = 30 * time.Second
)

// Downloader streams URLs to disk. The zero value is usable.
type Downloader struct {
	Client    *http.Client
	ChunkSize int
	Progress  progress.Func
	UserAgent string
}

// New returns a Downloader with the default client and chunk size.
func New(fn progress.Func) *Downloader {
	return &Downloader{
		Client: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: Timeout,
			// transparent gzip drops the content length
			DisableCompression: true,
		}},
		ChunkSize: DefaultChunkSize,
		Progress:  fn,
		UserAgent: UserAgent,
	}
}

// FileName returns the last path segment of rawURL, ignoring any query string.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url has no file name")
	}
	return name, nil
}

// Download streams rawURL into destDir/<last path segment> and returns the
// file path. The context is checked before every chunk; a cancelled or failed
// transfer leaves the partial file in place for the caller to handle.
func (d *Downloader) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	if err := errs.Cancelled(ctx, rawURL); err != nil {
		return "", err
	}
	name, err := FileName(rawURL)
	if err != nil {
		return "", errs.Download(rawURL, err)
	}
	dest := filepath.Join(destDir, name)
	logging.LogDownloadStart(rawURL, dest)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errs.Download(rawURL, fmt.Errorf("failed to prepare HTTP request: %w", err))
	}
	ua := d.UserAgent
	if ua == "" {
		ua = UserAgent
	}
	req.Header.Set("User-Agent", ua)
	// bytes on disk must be the bytes the digest was computed over
	req.Header.Set("Accept-Encoding", "identity")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Cancel(rawURL)
		}
		logging.LogDownloadFailed(rawURL, err)
		return "", errs.Download(rawURL, fmt.Errorf("failed to perform HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected HTTP status code: %d", resp.StatusCode)
		logging.LogDownloadFailed(rawURL, err)
		return "", errs.Download(rawURL, err)
	}
	total := resp.ContentLength
	if total < 0 {
		err := fmt.Errorf("server did not send a content length")
		logging.LogDownloadFailed(rawURL, err)
		return "", errs.Download(rawURL, err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", errs.Download(rawURL, fmt.Errorf("failed to create download directory: %w", err))
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", errs.Download(rawURL, fmt.Errorf("failed to open destination file: %w", err))
	}
	defer out.Close()

	written, err := d.copyChunks(ctx, rawURL, out, resp.Body, total)
	if err != nil {
		if !errs.Is(err, errs.KindCancelled) {
			logging.LogDownloadFailed(rawURL, err)
		}
		return dest, err
	}
	if err := out.Close(); err != nil {
		return dest, errs.Download(rawURL, fmt.Errorf("failed to close destination file: %w", err))
	}

	logging.LogDownloadComplete(rawURL, dest, written, time.Since(start))
	return dest, nil
}

func (d *Downloader) copyChunks(ctx context.Context, rawURL string, out io.Writer, body io.Reader, total int64) (int64, error) {
	size := d.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	var written int64
	for {
		if err := errs.Cancelled(ctx, rawURL); err != nil {
			return written, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return written, errs.Download(rawURL, fmt.Errorf("failed to write downloaded data: %w", werr))
			}
			written += int64(n)
			if d.Progress != nil {
				d.Progress(written, total)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, errs.Cancel(rawURL)
			}
			return written, errs.Download(rawURL, fmt.Errorf("failed to read response body: %w", rerr))
		}
	}
}

// FileSHA256 returns the hex SHA-256 of the file at path, read in fixed-size blocks.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, VerifyBlockSize)
	for {
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that the SHA-256 of path equals expectedHex, ignoring case.
// The file is only read.
func Verify(path, expectedHex string) error {
	actual, err := FileSHA256(path)
	if err != nil {
		return errs.Verify(path, err)
	}
	expected := strings.TrimSpace(expectedHex)
	if !strings.EqualFold(actual, expected) {
		return errs.Verify(path, fmt.Errorf("sha256 mismatch: expected %s, got %s", expected, actual))
	}
	logging.Debug("Hash verified", "file", path, "sha256", actual)
	return nil
}
