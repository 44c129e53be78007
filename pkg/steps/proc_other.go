//go:build !windows

package steps

import "os/exec"

func hideConsoleWindow(*exec.Cmd) {}
