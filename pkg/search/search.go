// pkg/search/search.go - query and resolve across repository indexes in priority order.

package search

import (
	"strings"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/manifest"
)

// Index is the entry set of one repository. A slice of indexes is ordered
// by repository priority, highest first.
type Index struct {
	Repository string
	Entries    []manifest.Entry
}

// Search returns the entries whose identifier or description contains query,
// ignoring case. Matches are grouped by repository in priority order and keep
// their index order within a repository. An empty query matches everything.
func Search(query string, indices []Index) []manifest.Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []manifest.Entry
	for _, idx := range indices {
		for _, e := range idx.Entries {
			if strings.Contains(strings.ToLower(e.Identifier), q) ||
				strings.Contains(strings.ToLower(e.Description), q) {
				out = append(out, e)
			}
		}
	}
	return out
}

// Resolve picks the single entry to act on for name. Repositories are tried
// in priority order; within one, an exact identifier match (ignoring case)
// is preferred over the first identifier containing name. The first
// repository with any candidate wins.
func Resolve(name string, indices []Index) (manifest.Entry, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return manifest.Entry{}, errs.NotFound(name)
	}
	for _, idx := range indices {
		if e, ok := exact(n, idx); ok {
			return e, nil
		}
		for _, e := range idx.Entries {
			if strings.Contains(strings.ToLower(e.Identifier), n) {
				return e, nil
			}
		}
	}
	return manifest.Entry{}, errs.NotFound(name)
}

// ResolveExact is Resolve without substring matching.
func ResolveExact(name string, indices []Index) (manifest.Entry, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, idx := range indices {
		if e, ok := exact(n, idx); ok {
			return e, nil
		}
	}
	return manifest.Entry{}, errs.NotFound(name)
}

func exact(lowerName string, idx Index) (manifest.Entry, bool) {
	for _, e := range idx.Entries {
		if strings.ToLower(e.Identifier) == lowerName {
			return e, true
		}
	}
	return manifest.Entry{}, false
}

// Find returns the entry with exactly the given identifier in the named
// repository, used to look up the index version of an installed record.
func Find(repository, identifier string, indices []Index) (manifest.Entry, bool) {
	for _, idx := range indices {
		if idx.Repository != repository {
			continue
		}
		return exact(strings.ToLower(identifier), idx)
	}
	return manifest.Entry{}, false
}
