// pkg/steps/step.go - the declarative step vocabulary used by install and uninstall scripts.

package steps

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one instruction. Exactly one field is set; If, Condition and For
// own ordered child sequences. In a step file every step is a single-key
// mapping, for example:
//
//   - download: {url: "https://example.com/app.zip", sha256: "...", var: archive}
//   - extract: {archive: "${archive}", dest: "${install_dir}"}
//   - if:
//     condition: "${portable}"
//     then: [{comment: "nothing to register"}]
//     else: [{run: {command: "${install_dir}/setup.exe", args: ["/S"]}}]
type Step struct {
	Download       *Download       `yaml:"download,omitempty"`
	Extract        *Extract        `yaml:"extract,omitempty"`
	Run            *Run            `yaml:"run,omitempty"`
	Copy           *Transfer       `yaml:"copy,omitempty"`
	Move           *Transfer       `yaml:"move,omitempty"`
	Delete         *PathArg        `yaml:"delete,omitempty"`
	CreateDir      *PathArg        `yaml:"create_dir,omitempty"`
	RemoveDir      *PathArg        `yaml:"remove_dir,omitempty"`
	Condition      *Condition      `yaml:"condition,omitempty"`
	If             *If             `yaml:"if,omitempty"`
	For            *For            `yaml:"for,omitempty"`
	Set            *Set            `yaml:"set,omitempty"`
	Unset          *Unset          `yaml:"unset,omitempty"`
	Include        *Include        `yaml:"include,omitempty"`
	Comment        *string         `yaml:"comment,omitempty"`
	Sleep          *Sleep          `yaml:"sleep,omitempty"`
	SetEnv         *Set            `yaml:"set_env,omitempty"`
	UnsetEnv       *Unset          `yaml:"unset_env,omitempty"`
	SetRegistry    *SetRegistry    `yaml:"set_registry,omitempty"`
	RemoveRegistry *RemoveRegistry `yaml:"remove_registry,omitempty"`
	Shell          *Shell          `yaml:"shell,omitempty"`
}

// Download fetches URL into Dest (the download directory when empty),
// verifies SHA256 when given and binds the file path to Var.
type Download struct {
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256,omitempty"`
	Dest   string `yaml:"dest,omitempty"`
	Var    string `yaml:"var,omitempty"`
}

// Extract unpacks Archive into Dest.
type Extract struct {
	Archive string `yaml:"archive"`
	Dest    string `yaml:"dest"`
}

// Run starts Command with Args in Dir and waits for it.
type Run struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
}

// Transfer is the argument of Copy and Move.
type Transfer struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// PathArg is the argument of Delete, CreateDir and RemoveDir.
type PathArg struct {
	Path string `yaml:"path"`
}

// Condition runs Steps only when the condition evaluates to true.
type Condition struct {
	Condition string `yaml:"condition"`
	Steps     []Step `yaml:"steps"`
}

// If runs exactly one of Then or Else.
type If struct {
	Condition string `yaml:"condition"`
	Then      []Step `yaml:"then,omitempty"`
	Else      []Step `yaml:"else,omitempty"`
}

// For binds Variable to each of Values in turn and runs Steps once per value.
type For struct {
	Variable string   `yaml:"variable"`
	Values   []string `yaml:"values"`
	Steps    []Step   `yaml:"steps"`
}

// Set binds a scope variable (set) or an environment variable (set_env).
type Set struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Unset removes a scope variable (unset) or an environment variable (unset_env).
type Unset struct {
	Name string `yaml:"name"`
}

// Include splices the steps of another step file in place.
type Include struct {
	File string `yaml:"file"`
}

// Sleep pauses for Seconds, which may be fractional.
type Sleep struct {
	Seconds string `yaml:"seconds"`
}

// SetRegistry writes one registry value. Key starts with a hive such as HKLM or HKCU.
type SetRegistry struct {
	Key   string `yaml:"key"`
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
	Type  string `yaml:"type,omitempty"` // string (default), expand_string, dword, qword, multi_string
}

// RemoveRegistry deletes one registry value, or the key itself when Name is empty.
type RemoveRegistry struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name,omitempty"`
}

// Shell runs a script snippet through Shell (the platform shell when empty).
type Shell struct {
	Script string `yaml:"script"`
	Shell  string `yaml:"shell,omitempty"`
}

// aliases maps alternative step names to their canonical key.
var aliases = map[string]string{
	"variable": "set",
	"script":   "shell",
	"mkdir":    "create_dir",
	"rmdir":    "remove_dir",
}

// UnmarshalYAML accepts a single-key mapping naming the step kind.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: a step must be a mapping with exactly one key", node.Line)
	}
	key := strings.ToLower(node.Content[0].Value)
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	value := node.Content[1]

	var err error
	switch key {
	case "download":
		s.Download = &Download{}
		err = value.Decode(s.Download)
	case "extract":
		s.Extract = &Extract{}
		err = value.Decode(s.Extract)
	case "run":
		s.Run = &Run{}
		err = value.Decode(s.Run)
	case "copy":
		s.Copy = &Transfer{}
		err = value.Decode(s.Copy)
	case "move":
		s.Move = &Transfer{}
		err = value.Decode(s.Move)
	case "delete":
		s.Delete, err = decodePath(value)
	case "create_dir":
		s.CreateDir, err = decodePath(value)
	case "remove_dir":
		s.RemoveDir, err = decodePath(value)
	case "condition":
		s.Condition = &Condition{}
		err = value.Decode(s.Condition)
	case "if":
		s.If = &If{}
		err = value.Decode(s.If)
	case "for":
		s.For = &For{}
		err = value.Decode(s.For)
	case "set":
		s.Set = &Set{}
		err = value.Decode(s.Set)
	case "unset":
		s.Unset, err = decodeName(value)
	case "include":
		s.Include = &Include{}
		if value.Kind == yaml.ScalarNode {
			s.Include.File = value.Value
		} else {
			err = value.Decode(s.Include)
		}
	case "comment":
		text := value.Value
		s.Comment = &text
	case "sleep":
		s.Sleep = &Sleep{}
		if value.Kind == yaml.ScalarNode {
			s.Sleep.Seconds = value.Value
		} else {
			err = value.Decode(s.Sleep)
		}
	case "set_env":
		s.SetEnv = &Set{}
		err = value.Decode(s.SetEnv)
	case "unset_env":
		s.UnsetEnv, err = decodeName(value)
	case "set_registry":
		s.SetRegistry = &SetRegistry{}
		err = value.Decode(s.SetRegistry)
	case "remove_registry":
		s.RemoveRegistry = &RemoveRegistry{}
		err = value.Decode(s.RemoveRegistry)
	case "shell":
		s.Shell = &Shell{}
		if value.Kind == yaml.ScalarNode {
			s.Shell.Script = value.Value
		} else {
			err = value.Decode(s.Shell)
		}
	default:
		return fmt.Errorf("line %d: unknown step %q", node.Line, node.Content[0].Value)
	}
	if err != nil {
		return fmt.Errorf("line %d: %s: %w", node.Line, key, err)
	}
	return nil
}

// decodePath accepts either "delete: some/path" or "delete: {path: some/path}".
func decodePath(value *yaml.Node) (*PathArg, error) {
	p := &PathArg{}
	if value.Kind == yaml.ScalarNode {
		p.Path = value.Value
		return p, nil
	}
	return p, value.Decode(p)
}

// decodeName accepts either "unset: name" or "unset: {name: name}".
func decodeName(value *yaml.Node) (*Unset, error) {
	u := &Unset{}
	if value.Kind == yaml.ScalarNode {
		u.Name = value.Value
		return u, nil
	}
	return u, value.Decode(u)
}

// Kind returns the canonical name of the variant that is set, or "" when none is.
func (s Step) Kind() string {
	kinds := s.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (s Step) kinds() []string {
	var k []string
	add := func(set bool, name string) {
		if set {
			k = append(k, name)
		}
	}
	add(s.Download != nil, "download")
	add(s.Extract != nil, "extract")
	add(s.Run != nil, "run")
	add(s.Copy != nil, "copy")
	add(s.Move != nil, "move")
	add(s.Delete != nil, "delete")
	add(s.CreateDir != nil, "create_dir")
	add(s.RemoveDir != nil, "remove_dir")
	add(s.Condition != nil, "condition")
	add(s.If != nil, "if")
	add(s.For != nil, "for")
	add(s.Set != nil, "set")
	add(s.Unset != nil, "unset")
	add(s.Include != nil, "include")
	add(s.Comment != nil, "comment")
	add(s.Sleep != nil, "sleep")
	add(s.SetEnv != nil, "set_env")
	add(s.UnsetEnv != nil, "unset_env")
	add(s.SetRegistry != nil, "set_registry")
	add(s.RemoveRegistry != nil, "remove_registry")
	add(s.Shell != nil, "shell")
	return k
}

// Validate checks that exactly one variant is set and that its required
// arguments are present, recursing into container children.
func (s Step) Validate() error {
	kinds := s.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("empty step")
	case 1:
	default:
		return fmt.Errorf("step sets more than one kind: %s", strings.Join(kinds, ", "))
	}

	required := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: %s is required", kinds[0], field)
		}
		return nil
	}

	switch {
	case s.Download != nil:
		return required("url", s.Download.URL)
	case s.Extract != nil:
		if err := required("archive", s.Extract.Archive); err != nil {
			return err
		}
		return required("dest", s.Extract.Dest)
	case s.Run != nil:
		return required("command", s.Run.Command)
	case s.Copy != nil, s.Move != nil:
		t := s.Copy
		if t == nil {
			t = s.Move
		}
		if err := required("from", t.From); err != nil {
			return err
		}
		return required("to", t.To)
	case s.Delete != nil:
		return required("path", s.Delete.Path)
	case s.CreateDir != nil:
		return required("path", s.CreateDir.Path)
	case s.RemoveDir != nil:
		return required("path", s.RemoveDir.Path)
	case s.Set != nil:
		return required("name", s.Set.Name)
	case s.Unset != nil:
		return required("name", s.Unset.Name)
	case s.SetEnv != nil:
		return required("name", s.SetEnv.Name)
	case s.UnsetEnv != nil:
		return required("name", s.UnsetEnv.Name)
	case s.Include != nil:
		return required("file", s.Include.File)
	case s.Sleep != nil:
		return required("seconds", s.Sleep.Seconds)
	case s.SetRegistry != nil:
		return required("key", s.SetRegistry.Key)
	case s.RemoveRegistry != nil:
		return required("key", s.RemoveRegistry.Key)
	case s.Shell != nil:
		return required("script", s.Shell.Script)
	case s.If != nil:
		if err := validateAll(s.If.Then); err != nil {
			return fmt.Errorf("if.then: %w", err)
		}
		if err := validateAll(s.If.Else); err != nil {
			return fmt.Errorf("if.else: %w", err)
		}
	case s.Condition != nil:
		if err := validateAll(s.Condition.Steps); err != nil {
			return fmt.Errorf("condition.steps: %w", err)
		}
	case s.For != nil:
		if err := required("variable", s.For.Variable); err != nil {
			return err
		}
		if err := validateAll(s.For.Steps); err != nil {
			return fmt.Errorf("for.steps: %w", err)
		}
	}
	return nil
}

func validateAll(seq []Step) error {
	for i, s := range seq {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}
