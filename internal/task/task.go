// Package task implements sitepipe's composition model: leaf tasks that do
// one unit of work, and sequence/parallel composites built bottom-up from
// them.
package task

import (
	"context"
	"log/slog"
	"sort"

	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
)

type Kind int

const (
	KindLeaf Kind = iota
	KindSequence
	KindParallel
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequence:
		return "sequence"
	case KindParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Env is passed to every leaf invocation. It replaces ambient globals: the
// build mode, logger and live-reload channel all travel with the call.
type Env struct {
	Mode   model.Mode
	Logger *slog.Logger
	Bus    *events.Bus
	RunID  string
}

// Func is the body of a leaf task.
type Func func(ctx context.Context, env Env) error

// Task is a node of a workflow tree.
type Task struct {
	Name     string
	Kind     Kind
	Children []*Task

	writes []string
	fn     Func
}

// Leaf creates an indivisible task. writes is its declared write-set:
// project-relative, slash separated paths it may create, modify or delete.
func Leaf(name string, writes []string, fn Func) *Task {
	return &Task{
		Name:   name,
		Kind:   KindLeaf,
		writes: append([]string(nil), writes...),
		fn:     fn,
	}
}

// Sequence runs children strictly in order and stops at the first failure.
func Sequence(name string, children ...*Task) *Task {
	return &Task{Name: name, Kind: KindSequence, Children: children}
}

// Parallel starts all children at once and completes when every child has
// finished.
func Parallel(name string, children ...*Task) *Task {
	return &Task{Name: name, Kind: KindParallel, Children: children}
}

// Writes returns the task's write-set. For composites it is the sorted union
// of the children's write-sets.
func (t *Task) Writes() []string {
	if t.Kind == KindLeaf {
		return append([]string(nil), t.writes...)
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range t.Children {
		if c == nil {
			continue
		}
		for _, w := range c.Writes() {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	sort.Strings(out)
	return out
}

// WritesOverlap reports whether any path of a overlaps any path of b.
func WritesOverlap(a, b []string) (string, string, bool) {
	for _, x := range a {
		for _, y := range b {
			if fsutil.Overlaps(x, y) {
				return x, y, true
			}
		}
	}
	return "", "", false
}
