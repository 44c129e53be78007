// pkg/installer/plan.go - turns an index entry into a step sequence.

package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/get/pkg/download"
	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/extract"
	"github.com/windowsadmins/get/pkg/manifest"
	"github.com/windowsadmins/get/pkg/steps"
)

// InstallerVar holds the downloaded installer path in synthesized plans.
const InstallerVar = "installer"

// compatible lists the installer architectures a host can run besides its own.
var compatible = map[string][]string{
	"x64":   {"x86"},
	"arm64": {"x64", "x86"},
}

// SelectInstaller picks the installer for arch: an exact match first, then an
// architecture-neutral one, then one the host can emulate.
func SelectInstaller(installers []manifest.Installer, arch string) (*manifest.Installer, bool) {
	arch = manifest.NormalizeArch(arch)
	candidates := append([]string{arch, "neutral"}, compatible[arch]...)
	for _, want := range candidates {
		for i := range installers {
			if manifest.NormalizeArch(installers[i].Architecture) == want {
				return &installers[i], true
			}
		}
	}
	return nil, false
}

func noPlan(action string, e manifest.Entry, reason string) error {
	return &errs.StepError{Step: "plan", Path: action, Reason: fmt.Errorf("%s %s: %s", e.Identifier, e.Version, reason)}
}

// InstallPlan returns the install steps of e together with the installer
// chosen for this host (nil when e carries explicit steps and no usable
// installer). Explicit steps win over synthesized ones.
func (m *Manager) InstallPlan(e manifest.Entry) ([]steps.Step, *manifest.Installer, error) {
	inst, ok := SelectInstaller(e.Installers, m.Arch)
	if len(e.InstallSteps) > 0 {
		return e.InstallSteps, inst, nil
	}
	if !ok {
		return nil, nil, noPlan("install", e, fmt.Sprintf("no installer for architecture %s", m.Arch))
	}

	plan := []steps.Step{fetch(inst)}
	switch inst.Kind {
	case manifest.KindMSI:
		args := append([]string{"/i", "${" + InstallerVar + "}"}, strings.Fields(inst.SilentArgs)...)
		plan = append(plan, steps.Step{Run: &steps.Run{Command: "msiexec", Args: args}})
	case manifest.KindExe:
		plan = append(plan, steps.Step{Run: &steps.Run{Command: "${" + InstallerVar + "}", Args: strings.Fields(inst.SilentArgs)}})
	case manifest.KindMSIX:
		plan = append(plan, steps.Step{Shell: &steps.Shell{
			Script: "Add-AppxPackage -Path '${" + InstallerVar + "}'",
			Shell:  "powershell",
		}})
	case manifest.KindArchive:
		if name := manifest.FileName(inst.URL); manifest.KindFromURL(name) == manifest.KindArchive && !extract.Supported(name) {
			return nil, nil, noPlan("install", e, "unsupported archive format "+filepath.Ext(name))
		}
		plan = append(plan,
			steps.Step{CreateDir: &steps.PathArg{Path: "${install_dir}"}},
			steps.Step{Extract: &steps.Extract{Archive: "${" + InstallerVar + "}", Dest: "${install_dir}"}},
		)
	default:
		plan = append(plan, scriptStep(inst.URL))
	}
	return plan, inst, nil
}

// UninstallPlan returns the uninstall steps of e. Without explicit steps an
// msi installer is removed through msiexec, reusing the downloaded package
// when it is still present, and anything else through the PowerShell
// package provider.
func (m *Manager) UninstallPlan(e manifest.Entry) ([]steps.Step, *manifest.Installer, error) {
	inst, ok := SelectInstaller(e.Installers, m.Arch)
	if len(e.UninstallSteps) > 0 {
		return e.UninstallSteps, inst, nil
	}
	if !ok || inst.Kind != manifest.KindMSI {
		return []steps.Step{packageUninstall(e.Identifier)}, inst, nil
	}

	var plan []steps.Step
	if cached := m.cachedInstaller(inst); cached != "" {
		plan = append(plan, steps.Step{Set: &steps.Set{Name: InstallerVar, Value: cached}})
	} else {
		plan = append(plan, fetch(inst))
	}
	plan = append(plan, steps.Step{Run: &steps.Run{
		Command: "msiexec",
		Args:    []string{"/x", "${" + InstallerVar + "}", "/qn", "/norestart"},
	}})
	return plan, inst, nil
}

func packageUninstall(identifier string) steps.Step {
	name := strings.ReplaceAll(identifier, "'", "''")
	return steps.Step{Shell: &steps.Shell{
		Script: "Get-Package -Name '" + name + "' | Uninstall-Package -Force -Confirm:$false",
		Shell:  "powershell",
	}}
}

func fetch(inst *manifest.Installer) steps.Step {
	return steps.Step{Download: &steps.Download{
		URL:    manifest.DownloadURL(inst.URL),
		SHA256: inst.SHA256,
		Var:    InstallerVar,
	}}
}

func scriptStep(rawURL string) steps.Step {
	name, _ := download.FileName(manifest.DownloadURL(rawURL))
	ref := "${" + InstallerVar + "}"
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ps1":
		return steps.Step{Run: &steps.Run{
			Command: "powershell",
			Args:    []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", ref},
		}}
	case ".bat", ".cmd":
		return steps.Step{Run: &steps.Run{Command: "cmd", Args: []string{"/C", ref}}}
	}
	return steps.Step{Run: &steps.Run{Command: ref}}
}

// cachedInstaller returns the path of a previously downloaded copy of inst.
func (m *Manager) cachedInstaller(inst *manifest.Installer) string {
	name, err := download.FileName(manifest.DownloadURL(inst.URL))
	if err != nil || m.DownloadDir == "" {
		return ""
	}
	path := filepath.Join(m.DownloadDir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	if inst.SHA256 != "" && download.Verify(path, inst.SHA256) != nil {
		return ""
	}
	return path
}

// scope seeds the interpreter variables for e.
func (m *Manager) scope(e manifest.Entry, inst *manifest.Installer) *steps.Scope {
	vars := map[string]string{
		"id":           e.Identifier,
		"name":         e.DisplayName,
		"version":      e.Version,
		"download_dir": m.DownloadDir,
		"arch":         m.Arch,
		"install_dir":  filepath.Join(m.AppsDir, e.Identifier),
	}
	if inst != nil {
		vars["installer_url"] = manifest.DownloadURL(inst.URL)
		vars["installer_sha256"] = inst.SHA256
		vars["installer_kind"] = inst.Kind
		vars["silent_args"] = inst.SilentArgs
	}
	return steps.NewScope(vars)
}
