// pkg/manifest/winget.go - winget-pkgs YAML manifests.

package manifest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/get/pkg/steps"
)

// Winget parses winget-pkgs installer and singleton manifests.
type Winget struct{}

type wingetSwitches struct {
	Silent             string `yaml:"Silent"`
	SilentWithProgress string `yaml:"SilentWithProgress"`
	Custom             string `yaml:"Custom"`
}

type wingetInstaller struct {
	Architecture      string          `yaml:"Architecture"`
	InstallerType     string          `yaml:"InstallerType"`
	InstallerUrl      string          `yaml:"InstallerUrl"`
	InstallerSha256   string          `yaml:"InstallerSha256"`
	InstallerSwitches *wingetSwitches `yaml:"InstallerSwitches"`
	Scope             string          `yaml:"Scope"`
}

type wingetManifest struct {
	PackageIdentifier string            `yaml:"PackageIdentifier"`
	PackageVersion    string            `yaml:"PackageVersion"`
	PackageName       string            `yaml:"PackageName"`
	Publisher         string            `yaml:"Publisher"`
	ShortDescription  string            `yaml:"ShortDescription"`
	Description       string            `yaml:"Description"`
	PackageUrl        string            `yaml:"PackageUrl"`
	License           string            `yaml:"License"`
	InstallerType     string            `yaml:"InstallerType"`
	InstallerSwitches *wingetSwitches   `yaml:"InstallerSwitches"`
	Scope             string            `yaml:"Scope"`
	Installers        []wingetInstaller `yaml:"Installers"`
	InstallSteps      []steps.Step      `yaml:"InstallSteps"`
	UninstallSteps    []steps.Step      `yaml:"UninstallSteps"`
}

func (Winget) Format() string  { return "winget" }
func (Winget) Pattern() string { return "*.installer.yaml" }

func (w Winget) Parse(name string, data []byte) (Entry, bool) {
	e, err := w.Decode(name, data)
	return e, err == nil
}

// Decode parses a winget manifest. PackageIdentifier and PackageVersion are required.
func (Winget) Decode(name string, data []byte) (Entry, error) {
	var m wingetManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Entry{}, fmt.Errorf("decoding yaml: %w", err)
	}
	// PackageVersion may be written unquoted, e.g. 1.10, and still arrives as a string here.
	m.PackageIdentifier = strings.TrimSpace(m.PackageIdentifier)
	m.PackageVersion = strings.TrimSpace(m.PackageVersion)
	if m.PackageIdentifier == "" {
		return Entry{}, fmt.Errorf("missing PackageIdentifier")
	}
	if m.PackageVersion == "" {
		return Entry{}, fmt.Errorf("missing PackageVersion")
	}
	for i, s := range m.InstallSteps {
		if err := s.Validate(); err != nil {
			return Entry{}, fmt.Errorf("InstallSteps[%d]: %w", i, err)
		}
	}
	for i, s := range m.UninstallSteps {
		if err := s.Validate(); err != nil {
			return Entry{}, fmt.Errorf("UninstallSteps[%d]: %w", i, err)
		}
	}

	e := Entry{
		Identifier:     m.PackageIdentifier,
		DisplayName:    m.PackageName,
		Version:        m.PackageVersion,
		Publisher:      m.Publisher,
		Description:    m.ShortDescription,
		Homepage:       m.PackageUrl,
		License:        m.License,
		Installers:     []Installer{},
		InstallSteps:   m.InstallSteps,
		UninstallSteps: m.UninstallSteps,
	}
	if e.DisplayName == "" {
		e.DisplayName = e.Identifier
	}
	if e.Description == "" {
		e.Description = m.Description
	}

	for _, in := range m.Installers {
		if strings.TrimSpace(in.InstallerUrl) == "" {
			continue
		}
		rawType := strings.ToLower(in.InstallerType)
		if rawType == "" {
			rawType = strings.ToLower(m.InstallerType)
		}
		switches := in.InstallerSwitches
		if switches == nil {
			switches = m.InstallerSwitches
		}
		scope := in.Scope
		if scope == "" {
			scope = m.Scope
		}
		kind := wingetKind(rawType)
		if rawType == "" {
			kind = KindFromURL(in.InstallerUrl)
		}
		e.Installers = append(e.Installers, Installer{
			Architecture: NormalizeArch(in.Architecture),
			Kind:         kind,
			URL:          in.InstallerUrl,
			SHA256:       strings.ToLower(in.InstallerSha256),
			SilentArgs:   silentArgs(switches, rawType),
			Scope:        strings.ToLower(scope),
		})
	}
	return e, nil
}

// wingetKind folds winget installer types into the normalized kinds.
func wingetKind(t string) string {
	switch t {
	case "msi", "wix":
		return KindMSI
	case "msix", "appx":
		return KindMSIX
	case "zip":
		return KindArchive
	case "exe", "nullsoft", "inno", "burn", "portable", "pwa":
		return KindExe
	}
	return KindExe
}

// silentArgs prefers the manifest's switches, then the defaults for the installer type.
func silentArgs(s *wingetSwitches, rawType string) string {
	if s != nil {
		switch {
		case s.Silent != "":
			return s.Silent
		case s.SilentWithProgress != "":
			return s.SilentWithProgress
		}
	}
	switch rawType {
	case "msi", "wix", "burn":
		return SilentMSI
	case "nullsoft", "exe":
		return SilentExe
	case "inno":
		return SilentInno
	}
	return ""
}
