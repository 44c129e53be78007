package steps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/get/pkg/errs"
)

// fakeExecCommand re-invokes the test binary so Run and Shell never start real programs.
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
	wd, _ := os.Getwd()
	fmt.Printf("cmd=%s dir=%s\n", args[0], wd)
	if args[0] == "fail" {
		fmt.Fprintln(os.Stderr, "installer exploded")
		os.Exit(3)
	}
	os.Exit(0)
}

func TestHostRunUsesWorkingDirectory(t *testing.T) {
	execCommand = fakeExecCommand
	defer func() { execCommand = exec.Command }()

	h := NewHost(nil, t.TempDir(), "")
	require.NoError(t, h.Run(context.Background(), t.TempDir(), "setup.exe", []string{"/S"}))

	err := h.Run(context.Background(), "", "fail", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "installer exploded")
}

func TestShellCommand(t *testing.T) {
	name, args := shellCommand("pwsh.exe", "Get-Item .")
	assert.Equal(t, "pwsh.exe", name)
	assert.Equal(t, "Get-Item .", args[len(args)-1])
	assert.Contains(t, args, "-NoProfile")

	name, args = shellCommand("cmd", "dir")
	assert.Equal(t, "cmd", name)
	assert.Equal(t, []string{"/C", "dir"}, args)

	name, args = shellCommand("bash", "ls")
	assert.Equal(t, "bash", name)
	assert.Equal(t, []string{"-c", "ls"}, args)

	name, _ = shellCommand("", "ls")
	if runtime.GOOS == "windows" {
		assert.Equal(t, "powershell", name)
	} else {
		assert.Equal(t, "sh", name)
	}
}

func TestHostShellFallsBackToDefaultShell(t *testing.T) {
	var started []string
	execCommand = func(name string, args ...string) *exec.Cmd {
		started = append(started, name+" "+args[len(args)-1])
		return fakeExecCommand(name, args...)
	}
	defer func() { execCommand = exec.Command }()

	h := NewHost(nil, "", "bash")
	require.NoError(t, h.Shell(context.Background(), t.TempDir(), "", "echo one"))
	require.NoError(t, h.Shell(context.Background(), t.TempDir(), "cmd", "echo two"))
	assert.Equal(t, []string{"bash echo one", "cmd echo two"}, started)
}

func TestHostFileEffects(t *testing.T) {
	root := t.TempDir()
	h := NewHost(nil, root, "")

	src := filepath.Join(root, "src")
	require.NoError(t, h.CreateDir(filepath.Join(src, "sub")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("A"), 0644))

	require.NoError(t, h.Copy(src, filepath.Join(root, "copy")))
	data, err := os.ReadFile(filepath.Join(root, "copy", "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))

	require.NoError(t, h.Move(filepath.Join(root, "copy"), filepath.Join(root, "moved", "here")))
	assert.NoDirExists(t, filepath.Join(root, "copy"))
	assert.FileExists(t, filepath.Join(root, "moved", "here", "sub", "a.txt"))

	require.NoError(t, h.Delete(filepath.Join(root, "moved", "here", "sub", "a.txt")))
	assert.NoFileExists(t, filepath.Join(root, "moved", "here", "sub", "a.txt"))
	assert.Error(t, h.Delete(filepath.Join(root, "nothing")))

	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0644))
	assert.Error(t, h.RemoveDir(filepath.Join(root, "file")))
	require.NoError(t, h.RemoveDir(filepath.Join(root, "moved")))
	assert.NoDirExists(t, filepath.Join(root, "moved"))
}

func TestHostEnvironment(t *testing.T) {
	t.Setenv("GET_STEP_TEST", "")
	h := NewHost(nil, "", "")
	require.NoError(t, h.SetEnv("GET_STEP_TEST", "on"))
	assert.Equal(t, "on", os.Getenv("GET_STEP_TEST"))
	require.NoError(t, h.UnsetEnv("GET_STEP_TEST"))
	_, ok := os.LookupEnv("GET_STEP_TEST")
	assert.False(t, ok)
}

func TestHostSleepHonoursCancellation(t *testing.T) {
	h := NewHost(nil, "", "")
	require.NoError(t, h.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Sleep(ctx, time.Hour)
	assert.True(t, errs.Is(err, errs.KindCancelled))
}

func TestHostRegistryUnavailableOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("registry is available")
	}
	h := NewHost(nil, "", "")
	assert.Error(t, h.SetRegistry(`HKCU\Software\Get`, "x", "y", ""))
	assert.Error(t, h.RemoveRegistry(`HKCU\Software\Get`, "x"))
}
