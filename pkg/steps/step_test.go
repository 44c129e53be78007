package steps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAliasesAndShorthands(t *testing.T) {
	seq, err := Parse([]byte(`
- variable: {name: a, value: "1"}
- script: "Write-Host hi"
- mkdir: /opt/x
- rmdir: {path: /opt/y}
- include: other.yaml
- comment: hello
`))
	require.NoError(t, err)
	require.Len(t, seq, 6)

	kinds := make([]string, len(seq))
	for i, s := range seq {
		kinds[i] = s.Kind()
	}
	assert.Equal(t, []string{"set", "shell", "create_dir", "remove_dir", "include", "comment"}, kinds)
	assert.Equal(t, "Write-Host hi", seq[1].Shell.Script)
	assert.Equal(t, "other.yaml", seq[4].Include.File)
}

func TestParseAcceptsJSON(t *testing.T) {
	seq, err := Parse([]byte(`[{"download": {"url": "https://example.com/a.zip", "var": "zip"}}, {"extract": {"archive": "${zip}", "dest": "out"}}]`))
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.Equal(t, "zip", seq[0].Download.Var)
	assert.Equal(t, "${zip}", seq[1].Extract.Archive)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"two keys":        "- {delete: a, create_dir: b}",
		"unknown kind":    "- teleport: {to: mars}",
		"missing url":     "- download: {sha256: abc}",
		"nested invalid":  "- if: {condition: 'true', then: [{run: {args: [x]}}]}",
		"not a list":      "download: {url: x}",
		"scalar step":     "- delete",
		"for without var": "- for: {values: [a], steps: []}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestValidateCountsVariants(t *testing.T) {
	assert.Error(t, Step{}.Validate())
	assert.Equal(t, "", Step{}.Kind())

	two := Step{Delete: &PathArg{Path: "a"}, CreateDir: &PathArg{Path: "b"}}
	assert.Error(t, two.Validate())
	assert.Equal(t, "", two.Kind())

	one := Step{CreateDir: &PathArg{Path: "b"}}
	assert.NoError(t, one.Validate())
	assert.Equal(t, "create_dir", one.Kind())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- sleep: {seconds: '1'}\n"), 0644))
	seq, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", seq[0].Sleep.Seconds)

	_, err = LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestScopeExpand(t *testing.T) {
	s := NewScope(map[string]string{"a": "1", "nested": "${a}"})
	assert.Equal(t, "1-", s.Expand("${a}-${b}"))
	assert.Equal(t, "${a}", s.Expand("${nested}"))
	assert.Equal(t, "$a ${}", s.Expand("$a ${}"))
	assert.True(t, s.Truth("${t}true"))
	assert.False(t, s.Truth(" true"))

	s.Unset("a")
	_, ok := s.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"nested"}, s.Names())
}
