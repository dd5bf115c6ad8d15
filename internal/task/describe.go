package task

import (
	"fmt"
	"io"
	"strings"
)

// Describe writes an indented outline of the workflow tree, one task per
// line, leaves followed by their write-sets.
func Describe(w io.Writer, root *Task) error {
	var walk func(t *Task, depth int) error
	walk = func(t *Task, depth int) error {
		indent := strings.Repeat("  ", depth)
		var err error
		switch t.Kind {
		case KindLeaf:
			if writes := t.Writes(); len(writes) > 0 {
				_, err = fmt.Fprintf(w, "%s%s  -> %s\n", indent, t.Name, strings.Join(writes, ", "))
			} else {
				_, err = fmt.Fprintf(w, "%s%s\n", indent, t.Name)
			}
		default:
			_, err = fmt.Fprintf(w, "%s%s (%s)\n", indent, t.Name, t.Kind)
		}
		if err != nil {
			return err
		}
		for _, c := range t.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root, 0)
}
