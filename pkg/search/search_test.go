package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/manifest"
)

func entry(repo, id, desc string) manifest.Entry {
	return manifest.Entry{Identifier: id, Description: desc, Version: "1.0", SourceRepository: repo}
}

func fixture() []Index {
	return []Index{
		{Repository: "winget", Entries: []manifest.Entry{
			entry("winget", "Mozilla.Firefox", "Web browser"),
			entry("winget", "Git.Git", "Distributed version control"),
			entry("winget", "7zip.7zip", "File archiver"),
		}},
		{Repository: "scoop", Entries: []manifest.Entry{
			entry("scoop", "git", "Distributed version control system"),
			entry("scoop", "ripgrep", "Recursively search directories"),
			entry("scoop", "7zip", "A file archiver with a high compression ratio"),
		}},
	}
}

func TestSearchGroupsByPriority(t *testing.T) {
	got := Search("ARCHIVER", fixture())
	require.Len(t, got, 2)
	assert.Equal(t, "7zip.7zip", got[0].Identifier)
	assert.Equal(t, "7zip", got[1].Identifier)

	got = Search("git", fixture())
	require.Len(t, got, 2)
	assert.Equal(t, "winget", got[0].SourceRepository)
	assert.Equal(t, "scoop", got[1].SourceRepository)

	assert.Len(t, Search("", fixture()), 6)
	assert.Empty(t, Search("nothing-like-this", fixture()))
}

func TestResolvePriorityTieBreak(t *testing.T) {
	// present in both: priority 1 wins
	e, err := Resolve("7zip", fixture())
	require.NoError(t, err)
	assert.Equal(t, "winget", e.SourceRepository)
	assert.Equal(t, "7zip.7zip", e.Identifier)

	// present only in priority 2
	e, err = Resolve("ripgrep", fixture())
	require.NoError(t, err)
	assert.Equal(t, "scoop", e.SourceRepository)
}

func TestResolvePrefersExactWithinRepository(t *testing.T) {
	indices := []Index{{Repository: "scoop", Entries: []manifest.Entry{
		entry("scoop", "git-lfs", ""),
		entry("scoop", "git", ""),
	}}}
	e, err := Resolve("GIT", indices)
	require.NoError(t, err)
	assert.Equal(t, "git", e.Identifier)
}

func TestResolveNotFound(t *testing.T) {
	_, err := Resolve("emacs", fixture())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = Resolve("  ", fixture())
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestResolveExact(t *testing.T) {
	_, err := ResolveExact("firefox", fixture())
	assert.True(t, errs.Is(err, errs.KindNotFound))

	e, err := ResolveExact("git", fixture())
	require.NoError(t, err)
	assert.Equal(t, "scoop", e.SourceRepository)
}

func TestFind(t *testing.T) {
	e, ok := Find("scoop", "RIPGREP", fixture())
	require.True(t, ok)
	assert.Equal(t, "ripgrep", e.Identifier)

	_, ok = Find("winget", "ripgrep", fixture())
	assert.False(t, ok)
}
