// pkg/manifest/scoop.go - scoop bucket JSON manifests.

package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/windowsadmins/get/pkg/steps"
)

// Scoop parses scoop bucket manifests. The identifier is the file name
// without its .json extension.
type Scoop struct{}

// stringList decodes a JSON string or array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = stringList{one}
	return nil
}

// license is either an SPDX string or {"identifier": ..., "url": ...}.
type license string

func (s *license) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = license(str)
		return nil
	}
	var obj struct {
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = license(obj.Identifier)
	return nil
}

type scoopScript struct {
	Script stringList `json:"script"`
	File   string     `json:"file"`
	Args   stringList `json:"args"`
}

type scoopArch struct {
	URL       stringList   `json:"url"`
	Hash      stringList   `json:"hash"`
	Installer *scoopScript `json:"installer"`
}

type scoopManifest struct {
	Version        string               `json:"version"`
	Description    stringList           `json:"description"`
	Homepage       string               `json:"homepage"`
	License        license              `json:"license"`
	URL            stringList           `json:"url"`
	Hash           stringList           `json:"hash"`
	Architecture   map[string]scoopArch `json:"architecture"`
	Installer      *scoopScript         `json:"installer"`
	Uninstaller    *scoopScript         `json:"uninstaller"`
	InstallSteps   json.RawMessage      `json:"install_steps"`
	UninstallSteps json.RawMessage      `json:"uninstall_steps"`
}

// scoopArchOrder fixes the order installers are emitted in.
var scoopArchOrder = []string{"64bit", "32bit", "arm64"}

func (Scoop) Format() string  { return "scoop" }
func (Scoop) Pattern() string { return "*.json" }

func (s Scoop) Parse(name string, data []byte) (Entry, bool) {
	e, err := s.Decode(name, data)
	return e, err == nil
}

// Decode parses a scoop manifest. version is required.
func (Scoop) Decode(name string, data []byte) (Entry, error) {
	var m scoopManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Entry{}, fmt.Errorf("decoding json: %w", err)
	}
	if strings.TrimSpace(m.Version) == "" {
		return Entry{}, fmt.Errorf("missing version")
	}
	id := strings.TrimSuffix(path.Base(strings.ReplaceAll(name, `\`, "/")), ".json")
	if id == "" || id == "." {
		return Entry{}, fmt.Errorf("cannot derive identifier from %q", name)
	}

	e := Entry{
		Identifier:  id,
		DisplayName: id,
		Version:     m.Version,
		Description: strings.Join(m.Description, " "),
		Homepage:    m.Homepage,
		License:     string(m.License),
		Installers:  []Installer{},
	}

	script := m.Installer
	if len(m.URL) > 0 {
		e.Installers = append(e.Installers, scoopInstaller("neutral", m.URL, m.Hash))
	}
	for _, key := range scoopArchOrder {
		a, ok := m.Architecture[key]
		if !ok || len(a.URL) == 0 {
			continue
		}
		e.Installers = append(e.Installers, scoopInstaller(NormalizeArch(key), a.URL, a.Hash))
		if script == nil && a.Installer != nil {
			script = a.Installer
		}
	}

	var err error
	if e.InstallSteps, err = rawSteps(m.InstallSteps); err != nil {
		return Entry{}, fmt.Errorf("install_steps: %w", err)
	}
	if e.UninstallSteps, err = rawSteps(m.UninstallSteps); err != nil {
		return Entry{}, fmt.Errorf("uninstall_steps: %w", err)
	}
	if e.InstallSteps == nil && script != nil && len(script.Script) > 0 {
		e.InstallSteps = scriptInstall(script.Script)
	}
	if e.UninstallSteps == nil && m.Uninstaller != nil && len(m.Uninstaller.Script) > 0 {
		e.UninstallSteps = []steps.Step{shellStep(m.Uninstaller.Script)}
	}
	return e, nil
}

// scoopInstaller builds an installer from the first url/hash pair.
func scoopInstaller(arch string, urls, hashes stringList) Installer {
	in := Installer{
		Architecture: arch,
		URL:          DownloadURL(urls[0]),
		Kind:         KindFromURL(urls[0]),
	}
	if len(hashes) > 0 {
		in.SHA256 = scoopHash(hashes[0])
	}
	if in.Kind == KindExe {
		in.SilentArgs = SilentExe
	}
	if in.Kind == KindMSI {
		in.SilentArgs = SilentMSI
	}
	return in
}

// scoopHash returns the sha256 hex digest, or "" for other algorithms.
func scoopHash(h string) string {
	h = strings.TrimSpace(h)
	if algo, digest, ok := strings.Cut(h, ":"); ok {
		if !strings.EqualFold(algo, "sha256") {
			return ""
		}
		h = digest
	}
	return strings.ToLower(h)
}

// scriptInstall downloads the selected installer and then runs the manifest's
// installer script. The installer_* variables are bound by the caller.
func scriptInstall(script []string) []steps.Step {
	return []steps.Step{
		{Download: &steps.Download{URL: "${installer_url}", SHA256: "${installer_sha256}", Var: "installer"}},
		shellStep(script),
	}
}

func shellStep(lines []string) steps.Step {
	return steps.Step{Shell: &steps.Shell{Script: strings.Join(lines, "\n"), Shell: "powershell"}}
}

func rawSteps(raw json.RawMessage) ([]steps.Step, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	return steps.Parse(raw)
}
