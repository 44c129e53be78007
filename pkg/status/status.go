// pkg/status/status.go - installed application records, version and architecture checks.

package status

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	version "github.com/hashicorp/go-version"
	"github.com/shirou/gopsutil/v3/host"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/get/pkg/logging"
	"github.com/windowsadmins/get/pkg/manifest"
)

// Record is one installed application.
type Record struct {
	Identifier    string    `yaml:"identifier"`
	Version       string    `yaml:"version"`
	Repository    string    `yaml:"repository"`
	StepsExecuted int       `yaml:"steps_executed"`
	InstalledAt   time.Time `yaml:"installed_at"`
}

type storeFile struct {
	Installed []Record `yaml:"installed"`
}

// Store keeps installed records in a YAML file. Every mutation rewrites the
// whole file through a temporary file and a rename. An identifier appears at
// most once.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by path. The file is created on the first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading installed records: %w", err)
	}
	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing installed records %s: %w", s.path, err)
	}
	return f.Installed, nil
}

func (s *Store) write(records []Record) error {
	sort.Slice(records, func(i, j int) bool {
		return strings.ToLower(records[i].Identifier) < strings.ToLower(records[j].Identifier)
	})
	data, err := yaml.Marshal(storeFile{Installed: records})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func indexOf(records []Record, identifier string) int {
	for i, r := range records {
		if strings.EqualFold(r.Identifier, identifier) {
			return i
		}
	}
	return -1
}

// Get returns the record for identifier (case-insensitive).
func (s *Store) Get(identifier string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return Record{}, false, err
	}
	if i := indexOf(records, identifier); i >= 0 {
		return records[i], true, nil
	}
	return Record{}, false, nil
}

// List returns all records sorted by identifier.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Put inserts r, replacing any record with the same identifier.
func (s *Store) Put(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return err
	}
	if i := indexOf(records, r.Identifier); i >= 0 {
		records[i] = r
	} else {
		records = append(records, r)
	}
	if err := s.write(records); err != nil {
		return fmt.Errorf("writing installed records: %w", err)
	}
	logging.Debug("Recorded installed application", "package", r.Identifier, "version", r.Version)
	return nil
}

// Remove deletes the record for identifier. It reports whether one existed.
func (s *Store) Remove(identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return false, err
	}
	i := indexOf(records, identifier)
	if i < 0 {
		return false, nil
	}
	records = append(records[:i], records[i+1:]...)
	if err := s.write(records); err != nil {
		return false, fmt.Errorf("writing installed records: %w", err)
	}
	return true, nil
}

// IsOlderVersion reports whether local is strictly older than remote.
// Versions that do not parse are never considered older.
func IsOlderVersion(local, remote string) bool {
	vLocal, errLocal := version.NewVersion(local)
	vRemote, errRemote := version.NewVersion(remote)

	if errLocal != nil || errRemote != nil {
		logging.Debug("Parse error => skipping version comparison",
			"local", local,
			"remote", remote,
			"errLocal", errLocal,
			"errRemote", errRemote,
		)
		return false
	}
	return vLocal.LessThan(vRemote)
}

// kernelArch is abstracted for testing
var kernelArch = host.KernelArch

// GetSystemArchitecture returns the normalized architecture of the running
// kernel (x64, x86, arm64), falling back to the build architecture.
func GetSystemArchitecture() string {
	arch, err := kernelArch()
	if err != nil || arch == "" {
		arch = runtime.GOARCH
	}
	return manifest.NormalizeArch(arch)
}
