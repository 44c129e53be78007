// pkg/steps/effects.go - the side effects performed by leaf steps.

package steps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/windowsadmins/get/pkg/download"
	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/extract"
	"github.com/windowsadmins/get/pkg/logging"
)

// Effects performs the single external effect of each leaf step. Arguments
// arrive already substituted.
type Effects interface {
	Download(ctx context.Context, url, destDir string) (string, error)
	Verify(path, sha256 string) error
	Extract(ctx context.Context, archive, dest string) error
	Run(ctx context.Context, dir, command string, args []string) error
	Shell(ctx context.Context, dir, shell, script string) error
	Copy(from, to string) error
	Move(from, to string) error
	Delete(path string) error
	CreateDir(path string) error
	RemoveDir(path string) error
	SetEnv(name, value string) error
	UnsetEnv(name string) error
	SetRegistry(key, name, value, typ string) error
	RemoveRegistry(key, name string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// execCommand is a seam for tests.
var execCommand = exec.Command

// Host applies effects to the local machine.
type Host struct {
	Downloader   *download.Downloader
	DownloadDir  string // used when a download step names no dest
	DefaultShell string // shell for steps naming none; empty picks the platform shell
}

// NewHost returns host effects downloading into downloadDir.
func NewHost(d *download.Downloader, downloadDir, shell string) *Host {
	if d == nil {
		d = download.New(nil)
	}
	return &Host{Downloader: d, DownloadDir: downloadDir, DefaultShell: shell}
}

func (h *Host) Download(ctx context.Context, url, destDir string) (string, error) {
	if destDir == "" {
		destDir = h.DownloadDir
	}
	return h.Downloader.Download(ctx, url, destDir)
}

func (h *Host) Verify(path, sha256 string) error {
	return download.Verify(path, sha256)
}

func (h *Host) Extract(ctx context.Context, archive, dest string) error {
	return extract.Archive(ctx, archive, dest)
}

// Run starts one external command and waits for it. A started process is
// never killed on cancellation.
func (h *Host) Run(_ context.Context, dir, command string, args []string) error {
	cmd := execCommand(command, args...)
	cmd.Dir = dir
	hideConsoleWindow(cmd)
	return runCMD(cmd, filepath.Base(command))
}

// Shell runs script through shell, or the platform shell when shell is empty.
func (h *Host) Shell(_ context.Context, dir, shell, script string) error {
	if shell == "" {
		shell = h.DefaultShell
	}
	name, args := shellCommand(shell, script)
	cmd := execCommand(name, args...)
	cmd.Dir = dir
	hideConsoleWindow(cmd)
	return runCMD(cmd, name)
}

// shellCommand maps a shell name to its binary and the arguments that run script.
func shellCommand(shell, script string) (string, []string) {
	if shell == "" {
		if runtime.GOOS == "windows" {
			shell = "powershell"
		} else {
			shell = "sh"
		}
	}
	switch strings.TrimSuffix(strings.ToLower(filepath.Base(shell)), ".exe") {
	case "powershell", "pwsh":
		return shell, []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script}
	case "cmd":
		return shell, []string{"/C", script}
	default:
		return shell, []string{"-c", script}
	}
}

// runCMD runs cmd, logging each output line, and folds stderr into the error.
func runCMD(cmd *exec.Cmd, label string) error {
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	err := cmd.Run()
	logOutput(label, out.String())
	if err != nil {
		return fmt.Errorf("command execution failed: %w | stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func logOutput(label, output string) {
	for _, line := range strings.Split(output, "\n") {
		txt := strings.TrimSpace(line)
		if txt == "" {
			continue
		}
		txt = strings.TrimPrefix(txt, "\ufeff")
		txt = strings.ReplaceAll(txt, "\u001b[0m", "")
		logging.Debug(txt, "command", label)
	}
}

// Copy copies a file, or a directory tree, from from to to.
func (h *Host) Copy(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(from, to, info.Mode().Perm())
	}
	return filepath.WalkDir(from, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(from, to string, perm os.FileMode) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Move renames from to to, copying across volumes when a rename is impossible.
func (h *Host) Move(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	if err := h.Copy(from, to); err != nil {
		return err
	}
	return os.RemoveAll(from)
}

// Delete removes a file or directory tree. A missing path is an error.
func (h *Host) Delete(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return err
	}
	return os.RemoveAll(path)
}

func (h *Host) CreateDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// RemoveDir removes a directory and its contents.
func (h *Host) RemoveDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return os.RemoveAll(path)
}

func (h *Host) SetEnv(name, value string) error {
	return os.Setenv(name, value)
}

func (h *Host) UnsetEnv(name string) error {
	return os.Unsetenv(name)
}

func (h *Host) SetRegistry(key, name, value, typ string) error {
	return setRegistry(key, name, value, typ)
}

func (h *Host) RemoveRegistry(key, name string) error {
	return removeRegistry(key, name)
}

// Sleep waits for d or until ctx is cancelled.
func (h *Host) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errs.Cancel("sleep")
	}
}
