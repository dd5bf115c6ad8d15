package task

import (
	"fmt"
)

// Validate checks a workflow tree before it runs:
//   - every task name is unique and no node is reachable twice
//   - composites have at least one child and leaves have a body
//   - siblings of a parallel node declare disjoint write-sets
//
// All problems are reported together. It returns nil or *ValidationErrors.
func Validate(root *Task) error {
	errs := &ValidationErrors{}
	if root == nil {
		errs.Add("(root)", "workflow is nil")
		return errs
	}

	names := make(map[string]string)
	visited := make(map[*Task]bool)
	reused := false

	type parallelNode struct {
		task *Task
		path string
	}
	var parallels []parallelNode

	var walk func(t *Task, path string)
	walk = func(t *Task, path string) {
		if visited[t] {
			errs.Add(path, "task node appears more than once (shared subtree or cycle)")
			reused = true
			return
		}
		visited[t] = true

		if t.Name == "" {
			errs.Add(path, "task name must not be empty")
		} else if prev, dup := names[t.Name]; dup {
			errs.Add(path, fmt.Sprintf("duplicate task name %q (also at %s)", t.Name, prev))
		} else {
			names[t.Name] = path
		}

		switch t.Kind {
		case KindLeaf:
			if t.fn == nil {
				errs.Add(path, "leaf task has no action")
			}
			if len(t.Children) > 0 {
				errs.Add(path, "leaf task must not have children")
			}
			return
		case KindSequence, KindParallel:
			if len(t.Children) == 0 {
				errs.Add(path, fmt.Sprintf("%s has no children", t.Kind))
			}
		default:
			errs.Add(path, fmt.Sprintf("unknown task kind %d", t.Kind))
			return
		}

		for i, c := range t.Children {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if c == nil {
				errs.Add(childPath, "nil task")
				continue
			}
			walk(c, childPath+"."+c.Name)
		}

		if t.Kind == KindParallel {
			parallels = append(parallels, parallelNode{task: t, path: path})
		}
	}

	walk(root, root.Name)

	// write-set unions recurse, so only compute them on a proper tree
	if !reused {
		for _, p := range parallels {
			checkDisjointWrites(p.task, p.path, errs)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func checkDisjointWrites(t *Task, path string, errs *ValidationErrors) {
	sets := make([][]string, len(t.Children))
	for i, c := range t.Children {
		if c != nil {
			sets[i] = c.Writes()
		}
	}
	for i := 0; i < len(t.Children); i++ {
		for j := i + 1; j < len(t.Children); j++ {
			if t.Children[i] == nil || t.Children[j] == nil {
				continue
			}
			if a, b, ok := WritesOverlap(sets[i], sets[j]); ok {
				errs.Add(path, fmt.Sprintf("parallel tasks %q and %q write overlapping paths %q and %q",
					t.Children[i].Name, t.Children[j].Name, a, b))
			}
		}
	}
}
