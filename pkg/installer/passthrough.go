// pkg/installer/passthrough.go - hands unknown packages to another package manager.

package installer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
)

// execCommand is abstracted for testing
var execCommand = exec.Command

// passthrough runs "<pm> install <name> -y". Nothing is recorded: the other
// package manager owns what it installs.
func (m *Manager) passthrough(ctx context.Context, name string) error {
	if err := errs.Cancelled(ctx, name); err != nil {
		return err
	}
	logging.Info("Package not found in any repository, delegating", "package", name, "manager", m.Passthrough)

	cmd := execCommand(m.Passthrough, "install", name, "-y")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	err := cmd.Run()
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			logging.Debug(m.Passthrough+" output", "line", line)
		}
	}
	if err != nil {
		return fmt.Errorf("%s install %s failed: %w | stderr: %s", m.Passthrough, name, err, strings.TrimSpace(stderr.String()))
	}
	logging.Info("Package installed by "+m.Passthrough, "package", name)
	return nil
}
