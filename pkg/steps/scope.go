package steps

import (
	"regexp"
	"sort"
)

var tokenPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// Scope maps variable names to string values. One Scope lives for a whole
// interpreter run; branches and loop bodies share it.
type Scope struct {
	vars map[string]string
}

// NewScope returns a scope seeded with initial bindings.
func NewScope(initial map[string]string) *Scope {
	s := &Scope{vars: make(map[string]string, len(initial))}
	for k, v := range initial {
		s.vars[k] = v
	}
	return s
}

// Get returns the value bound to name, or "" when unbound.
func (s *Scope) Get(name string) string {
	return s.vars[name]
}

// Lookup returns the value bound to name and whether it is bound.
func (s *Scope) Lookup(name string) (string, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Set binds name to value.
func (s *Scope) Set(name, value string) {
	s.vars[name] = value
}

// Unset removes the binding for name.
func (s *Scope) Unset(name string) {
	delete(s.vars, name)
}

// Names returns the bound names in sorted order.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Expand replaces every ${name} token in text with its binding. Unbound
// names expand to the empty string. Expansion is a single pass; values
// containing tokens are not expanded again.
func (s *Scope) Expand(text string) string {
	if len(text) < 3 {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		return s.vars[tok[2:len(tok)-1]]
	})
}

// Truth substitutes cond and reports whether the result is exactly "true".
func (s *Scope) Truth(cond string) bool {
	return s.Expand(cond) == "true"
}

func (s *Scope) expandAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = s.Expand(v)
	}
	return out
}
