// pkg/steps/interpreter.go - depth-first executor for step trees.

package steps

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/windowsadmins/get/pkg/errs"
	"github.com/windowsadmins/get/pkg/logging"
)

// State is the terminal state of a run.
type State int

const (
	Completed State = iota
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Result reports how a run ended. Executed counts the leaf steps that
// finished successfully.
type Result struct {
	State    State
	Err      error
	Executed int
}

// DefaultDownloadVar is bound to the downloaded path when a download step names no var.
const DefaultDownloadVar = "downloaded_file"

// maxIncludeDepth stops include cycles.
const maxIncludeDepth = 16

// Interpreter walks a step tree against one Scope.
type Interpreter struct {
	Scope   *Scope
	Effects Effects
	// Dir resolves relative include files at the top level and is the
	// default working directory of run and shell steps.
	Dir string
}

// New returns an interpreter using scope and effects.
func New(scope *Scope, effects Effects, dir string) *Interpreter {
	if scope == nil {
		scope = NewScope(nil)
	}
	return &Interpreter{Scope: scope, Effects: effects, Dir: dir}
}

type frame struct {
	dir   string
	depth int
}

// Run executes seq depth-first, left to right, stopping at the first
// failure. label prefixes step paths in errors, e.g. "install".
func (in *Interpreter) Run(ctx context.Context, label string, seq []Step) Result {
	var executed int
	logging.Debug("Step run started", "label", label, "steps", len(seq), "variables", in.Scope.Names())
	err := in.runSeq(ctx, seq, label, frame{dir: in.Dir}, &executed)
	res := Result{Err: err, Executed: executed}
	switch {
	case err == nil:
		res.State = Completed
	case errs.Is(err, errs.KindCancelled):
		res.State = Cancelled
	default:
		res.State = Failed
	}
	logging.Debug("Step run finished", "label", label, "state", res.State.String(), "executed", executed)
	return res
}

func (in *Interpreter) runSeq(ctx context.Context, seq []Step, path string, f frame, executed *int) error {
	for i, s := range seq {
		if err := in.runStep(ctx, s, fmt.Sprintf("%s[%d]", path, i), f, executed); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) runStep(ctx context.Context, s Step, path string, f frame, executed *int) error {
	if err := errs.Cancelled(ctx, path); err != nil {
		return err
	}
	kind := s.Kind()
	if err := s.Validate(); err != nil {
		return &errs.StepError{Step: kind, Path: path, Reason: err}
	}

	switch {
	case s.If != nil:
		if in.Scope.Truth(s.If.Condition) {
			return in.runSeq(ctx, s.If.Then, path+".then", f, executed)
		}
		return in.runSeq(ctx, s.If.Else, path+".else", f, executed)

	case s.Condition != nil:
		if !in.Scope.Truth(s.Condition.Condition) {
			return nil
		}
		return in.runSeq(ctx, s.Condition.Steps, path+".steps", f, executed)

	case s.For != nil:
		variable := in.Scope.Expand(s.For.Variable)
		for i, v := range in.Scope.expandAll(s.For.Values) {
			in.Scope.Set(variable, v)
			if err := in.runSeq(ctx, s.For.Steps, fmt.Sprintf("%s.steps#%d", path, i), f, executed); err != nil {
				return err
			}
		}
		return nil

	case s.Include != nil:
		return in.include(ctx, s.Include, path, f, executed)
	}

	if err := in.leaf(ctx, s, f); err != nil {
		if errs.Is(err, errs.KindCancelled) {
			return err
		}
		return &errs.StepError{Step: kind, Path: path, Reason: err}
	}
	*executed++
	return nil
}

func (in *Interpreter) include(ctx context.Context, inc *Include, path string, f frame, executed *int) error {
	if f.depth >= maxIncludeDepth {
		return &errs.StepError{Step: "include", Path: path, Reason: fmt.Errorf("includes nested deeper than %d", maxIncludeDepth)}
	}
	file := in.Scope.Expand(inc.File)
	if !filepath.IsAbs(file) && f.dir != "" {
		file = filepath.Join(f.dir, file)
	}
	seq, err := LoadFile(file)
	if err != nil {
		return &errs.StepError{Step: "include", Path: path, Reason: err}
	}
	logging.Debug("Including steps", "file", file, "count", len(seq))
	return in.runSeq(ctx, seq, path+">"+filepath.Base(file), frame{dir: filepath.Dir(file), depth: f.depth + 1}, executed)
}

func (in *Interpreter) workDir(dir string, f frame) string {
	if dir = in.Scope.Expand(dir); dir != "" {
		return dir
	}
	if in.Dir != "" {
		return in.Dir
	}
	return f.dir
}

// leaf performs the single effect of a non-container step after substitution.
func (in *Interpreter) leaf(ctx context.Context, s Step, f frame) error {
	x := in.Scope.Expand
	e := in.Effects

	switch {
	case s.Comment != nil:
		logging.Debug("Step comment", "text", x(*s.Comment))
		return nil

	case s.Set != nil:
		in.Scope.Set(x(s.Set.Name), x(s.Set.Value))
		return nil

	case s.Unset != nil:
		in.Scope.Unset(x(s.Unset.Name))
		return nil

	case s.Download != nil:
		d := s.Download
		path, err := e.Download(ctx, x(d.URL), x(d.Dest))
		if err != nil {
			return err
		}
		if digest := x(d.SHA256); digest != "" {
			if err := e.Verify(path, digest); err != nil {
				return err
			}
		}
		name := x(d.Var)
		if name == "" {
			name = DefaultDownloadVar
		}
		in.Scope.Set(name, path)
		return nil

	case s.Extract != nil:
		return e.Extract(ctx, x(s.Extract.Archive), x(s.Extract.Dest))

	case s.Run != nil:
		return e.Run(ctx, in.workDir(s.Run.Dir, f), x(s.Run.Command), in.Scope.expandAll(s.Run.Args))

	case s.Shell != nil:
		return e.Shell(ctx, in.workDir("", f), x(s.Shell.Shell), x(s.Shell.Script))

	case s.Copy != nil:
		return e.Copy(x(s.Copy.From), x(s.Copy.To))

	case s.Move != nil:
		return e.Move(x(s.Move.From), x(s.Move.To))

	case s.Delete != nil:
		return e.Delete(x(s.Delete.Path))

	case s.CreateDir != nil:
		return e.CreateDir(x(s.CreateDir.Path))

	case s.RemoveDir != nil:
		return e.RemoveDir(x(s.RemoveDir.Path))

	case s.SetEnv != nil:
		return e.SetEnv(x(s.SetEnv.Name), x(s.SetEnv.Value))

	case s.UnsetEnv != nil:
		return e.UnsetEnv(x(s.UnsetEnv.Name))

	case s.SetRegistry != nil:
		r := s.SetRegistry
		return e.SetRegistry(x(r.Key), x(r.Name), x(r.Value), x(r.Type))

	case s.RemoveRegistry != nil:
		return e.RemoveRegistry(x(s.RemoveRegistry.Key), x(s.RemoveRegistry.Name))

	case s.Sleep != nil:
		secs, err := strconv.ParseFloat(x(s.Sleep.Seconds), 64)
		// NaN fails every comparison and +Inf is caught by the upper bound
		if err != nil || math.IsNaN(secs) || secs < 0 || secs*float64(time.Second) >= math.MaxInt64 {
			return fmt.Errorf("invalid sleep duration %q", s.Sleep.Seconds)
		}
		return e.Sleep(ctx, time.Duration(secs*float64(time.Second)))
	}
	return fmt.Errorf("unhandled step kind %q", s.Kind())
}
