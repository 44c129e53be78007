package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/index"
	"github.com/windowsadmins/get/pkg/manifest"
	"github.com/windowsadmins/get/pkg/mirror"
	"github.com/windowsadmins/get/pkg/status"
)

const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

const gitWinget = `PackageIdentifier: Git.Git
PackageVersion: 2.44.0
PackageName: Git
ShortDescription: Distributed version control
Installers:
- Architecture: x86
  InstallerType: nullsoft
  InstallerUrl: https://example.com/Git-32-bit.exe
- Architecture: x64
  InstallerType: wix
  InstallerUrl: https://example.com/Git-64-bit.msi
  InstallerSha256: ` + abcSHA256 + `
`

const gitScoop = `{
  "version": "2.45.0",
  "description": "Git from scoop",
  "url": "https://example.com/git-portable.zip"
}`

const toolScoop = `{
  "version": "1.2.0",
  "description": "A tool with its own steps",
  "url": "https://example.com/tool.exe",
  "install_steps": [
    {"download": {"url": "https://example.com/tool-${version}.exe", "var": "setup"}},
    {"run": {"command": "${setup}", "args": ["--id", "${id}"]}}
  ]
}`

// recorder captures effects instead of touching the machine.
type recorder struct {
	calls  []string
	failOn string
}

func (r *recorder) record(format string, args ...interface{}) error {
	call := fmt.Sprintf(format, args...)
	r.calls = append(r.calls, call)
	if r.failOn != "" && call == r.failOn {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) Download(_ context.Context, url, destDir string) (string, error) {
	if err := r.record("download %s", url); err != nil {
		return "", err
	}
	return filepath.Base(url), nil
}
func (r *recorder) Verify(path, sha string) error { return r.record("verify %s %s", path, sha) }
func (r *recorder) Extract(_ context.Context, a, d string) error {
	return r.record("extract %s %s", a, d)
}
func (r *recorder) Run(_ context.Context, _, cmd string, args []string) error {
	return r.record("run %s %v", cmd, args)
}
func (r *recorder) Shell(_ context.Context, _, shell, script string) error {
	return r.record("shell %s %s", shell, script)
}
func (r *recorder) Copy(from, to string) error          { return r.record("copy %s %s", from, to) }
func (r *recorder) Move(from, to string) error          { return r.record("move %s %s", from, to) }
func (r *recorder) Delete(path string) error            { return r.record("delete %s", path) }
func (r *recorder) CreateDir(path string) error         { return r.record("create_dir %s", path) }
func (r *recorder) RemoveDir(path string) error         { return r.record("remove_dir %s", path) }
func (r *recorder) SetEnv(n, v string) error            { return r.record("set_env %s=%s", n, v) }
func (r *recorder) UnsetEnv(n string) error             { return r.record("unset_env %s", n) }
func (r *recorder) SetRegistry(k, n, v, t string) error { return r.record("set_registry %s", k) }
func (r *recorder) RemoveRegistry(k, n string) error    { return r.record("remove_registry %s", k) }
func (r *recorder) Sleep(context.Context, time.Duration) error {
	return r.record("sleep")
}

// fakeSyncer stamps the mirror marker instead of running git.
type fakeSyncer struct {
	fail  map[string]bool
	calls []string
}

func (f *fakeSyncer) Sync(ctx context.Context, repo mirror.Repository) error {
	if err := errs.Cancelled(ctx, repo.Name); err != nil {
		return err
	}
	f.calls = append(f.calls, repo.Name)
	if f.fail[repo.Name] {
		return errs.Mirror(repo.Name, errors.New("network unreachable"))
	}
	marker := filepath.Join(repo.LocalPath, mirror.MarkerFile)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	return os.WriteFile(marker, []byte(strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10)), 0644)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

type harness struct {
	m      *Manager
	rec    *recorder
	syncer *fakeSyncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	wingetRoot := filepath.Join(t.TempDir(), "winget")
	scoopRoot := filepath.Join(t.TempDir(), "scoop")
	writeFile(t, wingetRoot, "manifests/g/Git/Git/2.44.0/Git.Git.installer.yaml", gitWinget)
	writeFile(t, scoopRoot, "bucket/git.json", gitScoop)
	writeFile(t, scoopRoot, "bucket/tool.json", toolScoop)

	rec := &recorder{}
	syncer := &fakeSyncer{fail: map[string]bool{}}
	state := t.TempDir()
	m := &Manager{
		Repos: []mirror.Repository{
			{Name: "winget", LocalPath: wingetRoot, Format: "winget"},
			{Name: "scoop", LocalPath: scoopRoot, Format: "scoop"},
		},
		Mirror:      syncer,
		Cache:       index.NewCache(filepath.Join(state, "cache"), 2),
		Store:       status.NewStore(filepath.Join(state, "installed.yaml")),
		DownloadDir: filepath.Join(state, "downloads"),
		AppsDir:     filepath.Join(state, "apps"),
		Arch:        "x64",
		Effects:     rec,
		Now:         func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) },
	}
	return &harness{m: m, rec: rec, syncer: syncer}
}

func TestResolveAndInstallSynthesizesMSIPlan(t *testing.T) {
	h := newHarness(t)

	report, err := h.m.ResolveAndInstall(context.Background(), "git")
	require.NoError(t, err)

	assert.Equal(t, "Git.Git", report.Identifier)
	assert.Equal(t, "winget", report.Repository)
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, []string{
		"download https://example.com/Git-64-bit.msi",
		"verify Git-64-bit.msi " + abcSHA256,
		"run msiexec [/i Git-64-bit.msi /quiet /norestart]",
	}, h.rec.calls)

	rec, ok, err := h.m.Store.Get("Git.Git")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.44.0", rec.Version)
	assert.Equal(t, "winget", rec.Repository)
	assert.Equal(t, 2, rec.StepsExecuted)
	assert.True(t, rec.InstalledAt.Equal(h.m.Now()))
}

func TestInstallPicksInstallerForArchitecture(t *testing.T) {
	h := newHarness(t)
	h.m.Arch = "x86"

	_, err := h.m.ResolveAndInstall(context.Background(), "Git.Git")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"download https://example.com/Git-32-bit.exe",
		"run Git-32-bit.exe [/S]",
	}, h.rec.calls)
}

func TestInstallRunsExplicitSteps(t *testing.T) {
	h := newHarness(t)

	report, err := h.m.ResolveAndInstall(context.Background(), "tool")
	require.NoError(t, err)
	assert.Equal(t, "scoop", report.Repository)
	assert.Equal(t, []string{
		"download https://example.com/tool-1.2.0.exe",
		"run tool-1.2.0.exe [--id tool]",
	}, h.rec.calls)
}

func TestInstallExtractsArchives(t *testing.T) {
	h := newHarness(t)
	h.syncer.fail["winget"] = true

	report, err := h.m.ResolveAndInstall(context.Background(), "git")
	require.NoError(t, err)
	assert.Equal(t, "scoop", report.Repository)

	dest := filepath.Join(h.m.AppsDir, "git")
	assert.Equal(t, []string{
		"download https://example.com/git-portable.zip",
		"create_dir " + dest,
		"extract git-portable.zip " + dest,
	}, h.rec.calls)
}

func TestInstallFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	h.rec.failOn = "run msiexec [/i Git-64-bit.msi /quiet /norestart]"

	report, err := h.m.ResolveAndInstall(context.Background(), "git")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindStep))
	assert.Equal(t, 1, report.Executed)

	recs, err := h.m.List()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInstallCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.m.ResolveAndInstall(ctx, "git")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.Empty(t, h.rec.calls)
	assert.Empty(t, h.syncer.calls)
}

func TestInstallNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.m.ResolveAndInstall(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func fakeExecCommand(command string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", command}, args...)
	cmd := exec.Command(os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]
	if len(args) != 4 || args[1] != "install" || args[3] != "-y" {
		fmt.Fprintf(os.Stderr, "unexpected arguments %v\n", args)
		os.Exit(2)
	}
	if args[2] == "broken" {
		fmt.Fprintln(os.Stderr, "package broken not found")
		os.Exit(1)
	}
	fmt.Printf("%s installed %s\n", args[0], args[2])
	os.Exit(0)
}

func TestInstallPassthrough(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.Command }()

	h := newHarness(t)
	h.m.Passthrough = "choco"

	report, err := h.m.ResolveAndInstall(context.Background(), "notepadplusplus")
	require.NoError(t, err)
	assert.True(t, report.Passthrough)
	assert.Empty(t, h.rec.calls)

	recs, err := h.m.List()
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = h.m.ResolveAndInstall(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package broken not found")
}

func TestResolveAndUninstallMSI(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.ResolveAndInstall(context.Background(), "git")
	require.NoError(t, err)
	h.rec.calls = nil

	_, err = h.m.ResolveAndUninstall(context.Background(), "Git.G")
	assert.True(t, errs.Is(err, errs.KindNotFound), "uninstall needs the exact identifier")

	report, err := h.m.ResolveAndUninstall(context.Background(), "git.git")
	require.NoError(t, err)
	assert.Equal(t, "Git.Git", report.Identifier)
	assert.Equal(t, []string{
		"download https://example.com/Git-64-bit.msi",
		"verify Git-64-bit.msi " + abcSHA256,
		"run msiexec [/x Git-64-bit.msi /qn /norestart]",
	}, h.rec.calls)

	_, ok, err := h.m.Store.Get("Git.Git")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUninstallReusesDownloadedInstaller(t *testing.T) {
	h := newHarness(t)
	cached := filepath.Join(h.m.DownloadDir, "Git-64-bit.msi")
	writeFile(t, h.m.DownloadDir, "Git-64-bit.msi", "abc")

	_, err := h.m.ResolveAndUninstall(context.Background(), "Git.Git")
	require.NoError(t, err)
	assert.Equal(t, []string{"run msiexec [/x " + cached + " /qn /norestart]"}, h.rec.calls)
}

func TestUninstallFallsBackToPackageProvider(t *testing.T) {
	h := newHarness(t)
	h.m.Arch = "x86"

	report, err := h.m.ResolveAndUninstall(context.Background(), "Git.Git")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, []string{
		"shell powershell Get-Package -Name 'Git.Git' | Uninstall-Package -Force -Confirm:$false",
	}, h.rec.calls)
}

func TestUninstallPlanQuotesIdentifier(t *testing.T) {
	h := newHarness(t)
	e := manifest.Entry{Identifier: "O'Brien.Tool", Version: "1.0", Installers: []manifest.Installer{
		{Architecture: "x64", Kind: manifest.KindExe, URL: "https://example.com/setup.exe"},
	}}

	plan, inst, err := h.m.UninstallPlan(e)
	require.NoError(t, err)
	require.NotNil(t, inst)
	require.Len(t, plan, 1)
	require.NotNil(t, plan[0].Shell)
	assert.Equal(t, "powershell", plan[0].Shell.Shell)
	assert.Equal(t, "Get-Package -Name 'O''Brien.Tool' | Uninstall-Package -Force -Confirm:$false", plan[0].Shell.Script)

	plan, inst, err = h.m.UninstallPlan(manifest.Entry{Identifier: "bare"})
	require.NoError(t, err)
	assert.Nil(t, inst)
	require.Len(t, plan, 1)
	assert.Contains(t, plan[0].Shell.Script, "-Name 'bare'")
}

func TestUninstallReportsUnreadableStore(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Dir(h.m.Store.Path()), filepath.Base(h.m.Store.Path()), "installed: [unterminated")

	_, err := h.m.ResolveAndUninstall(context.Background(), "Git.Git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing installed records")
	assert.Empty(t, h.rec.calls)
}

func TestInstallRejectsUnsupportedArchive(t *testing.T) {
	h := newHarness(t)
	writeFile(t, h.m.Repos[1].LocalPath, "bucket/archiver.json", `{"version": "1.0", "url": "https://example.com/archiver-1.0.7z"}`)

	_, err := h.m.ResolveAndInstall(context.Background(), "archiver")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindStep))
	assert.Contains(t, err.Error(), "unsupported archive format .7z")
	assert.Empty(t, h.rec.calls)

	recs, err := h.m.List()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestOutdated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Store.Put(status.Record{Identifier: "Git.Git", Version: "2.9.0", Repository: "winget"}))
	require.NoError(t, h.m.Store.Put(status.Record{Identifier: "tool", Version: "1.2.0", Repository: "scoop"}))
	require.NoError(t, h.m.Store.Put(status.Record{Identifier: "gone", Version: "1.0", Repository: "scoop"}))

	updates, err := h.m.Outdated(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "Git.Git", updates[0].Identifier)
	assert.Equal(t, "2.44.0", updates[0].Available)
}

func TestSearchAcrossRepositories(t *testing.T) {
	h := newHarness(t)

	found, err := h.m.Search(context.Background(), "git")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "winget", found[0].SourceRepository)
	assert.Equal(t, "scoop", found[1].SourceRepository)
}

func TestRefreshRebuildsEveryRepository(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Indices(context.Background())
	require.NoError(t, err)

	// a manifest added after the first build only shows up once the cache is discarded
	writeFile(t, h.m.Repos[1].LocalPath, "bucket/late.json", `{"version": "0.1"}`)
	found, err := h.m.Search(context.Background(), "late")
	require.NoError(t, err)
	assert.Empty(t, found)

	n, err := h.m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err = h.m.Search(context.Background(), "late")
	require.NoError(t, err)
	require.Len(t, found, 1)

	h.syncer.fail["winget"] = true
	h.syncer.fail["scoop"] = true
	_, err = h.m.Refresh(context.Background())
	assert.Error(t, err)
}

func TestSelectInstaller(t *testing.T) {
	installers := []manifest.Installer{
		{Architecture: "x86", URL: "a"},
		{Architecture: "neutral", URL: "b"},
	}

	inst, ok := SelectInstaller(installers, "x86")
	require.True(t, ok)
	assert.Equal(t, "a", inst.URL)

	inst, ok = SelectInstaller(installers, "amd64")
	require.True(t, ok)
	assert.Equal(t, "b", inst.URL)

	inst, ok = SelectInstaller(installers[:1], "arm64")
	require.True(t, ok)
	assert.Equal(t, "a", inst.URL)

	_, ok = SelectInstaller(installers[:1], "riscv64")
	assert.False(t, ok)
	_, ok = SelectInstaller(nil, "x64")
	assert.False(t, ok)
}
