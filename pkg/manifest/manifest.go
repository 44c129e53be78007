// pkg/manifest/manifest.go - normalized package entries and the parser capability set.

package manifest

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/windowsadmins/get/pkg/steps"
)

// Installer kinds after normalization.
const (
	KindExe     = "exe"
	KindMSI     = "msi"
	KindMSIX    = "msix"
	KindScript  = "script"
	KindArchive = "archive"
)

// Default silent switches by installer type.
const (
	SilentMSI  = "/quiet /norestart"
	SilentExe  = "/S"
	SilentInno = "/VERYSILENT /SUPPRESSMSGBOXES /NORESTART /SP-"
)

// Entry is the schema-agnostic record derived from one manifest file.
// Entries are immutable once built.
type Entry struct {
	Identifier       string       `yaml:"identifier"`
	DisplayName      string       `yaml:"display_name"`
	Version          string       `yaml:"version"`
	Publisher        string       `yaml:"publisher,omitempty"`
	Description      string       `yaml:"description,omitempty"`
	Homepage         string       `yaml:"homepage,omitempty"`
	License          string       `yaml:"license,omitempty"`
	SourceRepository string       `yaml:"source_repository"`
	Installers       []Installer  `yaml:"installers"`
	InstallSteps     []steps.Step `yaml:"install_steps,omitempty"`
	UninstallSteps   []steps.Step `yaml:"uninstall_steps,omitempty"`
}

// Installer is one downloadable installer of an entry.
type Installer struct {
	Architecture string `yaml:"architecture"`
	Kind         string `yaml:"kind"`
	URL          string `yaml:"url"`
	SHA256       string `yaml:"sha256,omitempty"`
	SilentArgs   string `yaml:"silent_args,omitempty"`
	Scope        string `yaml:"scope,omitempty"`
}

// Parser decodes one manifest schema. Parse never fails loudly: a document
// it cannot use yields ok == false.
type Parser interface {
	Format() string
	// Pattern is the base-name glob of the files this parser reads.
	Pattern() string
	// Parse decodes data read from name, the file path relative to the mirror root.
	Parse(name string, data []byte) (entry Entry, ok bool)
}

// Decoder is implemented by parsers that can explain why a document was rejected.
type Decoder interface {
	Decode(name string, data []byte) (Entry, error)
}

// Decode parses data with p, returning the rejection reason when p provides one.
func Decode(p Parser, name string, data []byte) (Entry, error) {
	if d, ok := p.(Decoder); ok {
		return d.Decode(name, data)
	}
	e, ok := p.Parse(name, data)
	if !ok {
		return Entry{}, fmt.Errorf("not a valid %s manifest", p.Format())
	}
	return e, nil
}

// ForFormat returns the parser for a configured repository format.
func ForFormat(format string) (Parser, error) {
	switch strings.ToLower(format) {
	case "winget":
		return Winget{}, nil
	case "scoop":
		return Scoop{}, nil
	}
	return nil, fmt.Errorf("unsupported manifest format %q", format)
}

// DefaultPattern returns the file glob for format, or "" when the format is unknown.
func DefaultPattern(format string) string {
	p, err := ForFormat(format)
	if err != nil {
		return ""
	}
	return p.Pattern()
}

// NormalizeArch maps architecture synonyms to x64, x86, arm64, arm or neutral.
func NormalizeArch(arch string) string {
	switch a := strings.ToLower(strings.TrimSpace(arch)); a {
	case "amd64", "x86_64", "x64", "64bit":
		return "x64"
	case "386", "i386", "i686", "x86", "32bit":
		return "x86"
	case "aarch64", "arm64":
		return "arm64"
	case "":
		return "neutral"
	default:
		return a
	}
}

// KindFromURL guesses the installer kind from the file extension of rawURL.
// Scoop style "#/rename.ext" fragments win over the path.
func KindFromURL(rawURL string) string {
	name := FileName(rawURL)
	switch {
	case strings.HasSuffix(name, ".msi"):
		return KindMSI
	case strings.HasSuffix(name, ".msix"), strings.HasSuffix(name, ".msixbundle"),
		strings.HasSuffix(name, ".appx"), strings.HasSuffix(name, ".appxbundle"):
		return KindMSIX
	case strings.HasSuffix(name, ".exe"):
		return KindExe
	case strings.HasSuffix(name, ".zip"), strings.HasSuffix(name, ".7z"),
		strings.Contains(name, ".tar."), strings.HasSuffix(name, ".tar"),
		strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".nupkg"):
		return KindArchive
	}
	return KindScript
}

// FileName returns the lower-cased file name rawURL points at, preferring a
// scoop "#/rename.ext" fragment.
func FileName(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
		if strings.HasPrefix(u.Fragment, "/") {
			name = u.Fragment
		}
	}
	return strings.ToLower(path.Base(name))
}

// DownloadURL strips a scoop "#/rename" fragment so the URL can be fetched.
func DownloadURL(rawURL string) string {
	if i := strings.Index(rawURL, "#/"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
