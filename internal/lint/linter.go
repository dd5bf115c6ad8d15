// Package lint checks stylesheet sources against a fixed set of style rules
// and reports every violation it finds.
package lint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/msageha/sitepipe/internal/fsutil"
	"github.com/msageha/sitepipe/internal/model"
	"github.com/msageha/sitepipe/internal/task"
)

// NameLintStyles is the task name used in logs and metrics.
const NameLintStyles = "lintStyles"

// Violation is a single rule hit.
type Violation struct {
	File    string
	Line    int
	Column  int
	Rule    string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d:%d  %s  (%s)", v.File, v.Line, v.Column, v.Message, v.Rule)
}

// Report is the outcome of a lint run. A report with violations is also the
// error returned by the task.
type Report struct {
	Files      int
	Violations []Violation
}

func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) Error() string {
	return fmt.Sprintf("%d style violation(s) in %d file(s):\n%s", len(r.Violations), r.filesWithViolations(), r.Format())
}

// Format renders one violation per line, grouped by file in path order.
func (r *Report) Format() string {
	var sb strings.Builder
	for _, v := range r.Violations {
		sb.WriteString(v.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (r *Report) filesWithViolations() int {
	files := make(map[string]bool)
	for _, v := range r.Violations {
		files[v.File] = true
	}
	return len(files)
}

// Linter applies a set of rules.
type Linter struct {
	rules []Rule
}

// New builds a linter for the given rule IDs. An empty list enables every
// built-in rule.
func New(enabled []string) (*Linter, error) {
	builtin := BuiltinRules()
	ids := append([]string(nil), enabled...)
	if len(ids) == 0 {
		for id := range builtin {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	l := &Linter{}
	for _, id := range ids {
		r, ok := builtin[id]
		if !ok {
			return nil, fmt.Errorf("unknown lint rule %q", id)
		}
		l.rules = append(l.rules, r)
	}
	return l, nil
}

// Lint checks one file's contents. name is used verbatim in violations.
func (l *Linter) Lint(name string, content []byte) []Violation {
	raw := string(content)
	cleaned := blankNonCode(raw)
	lines := lineStarts(raw)

	var out []Violation
	for _, r := range l.rules {
		src := cleaned
		if r.Raw {
			src = raw
		}
		for _, f := range r.Check(src) {
			line, col := position(lines, f.Offset)
			out = append(out, Violation{File: name, Line: line, Column: col, Rule: r.ID, Message: f.Message})
		}
	}
	sortViolations(out)
	return out
}

// LintFiles checks every file matching patterns under root.
func (l *Linter) LintFiles(root string, displayPrefix string, patterns ...string) (*Report, error) {
	files, err := fsutil.Expand(root, patterns...)
	if err != nil {
		return nil, err
	}
	report := &Report{Files: len(files)}
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		name := rel
		if displayPrefix != "" {
			name = displayPrefix + "/" + rel
		}
		report.Violations = append(report.Violations, l.Lint(name, content)...)
	}
	sortViolations(report.Violations)
	return report, nil
}

// LintStyles checks every stylesheet under paths.styles_glob. It fails with
// the *Report when any rule is violated.
func LintStyles(cfg model.Config) (*task.Task, error) {
	linter, err := New(cfg.Lint.Rules)
	if err != nil {
		return nil, err
	}
	root := cfg.SrcPath("")
	prefix := cfg.RelSrc("")

	return task.Leaf(NameLintStyles, nil, func(_ context.Context, env task.Env) error {
		report, err := linter.LintFiles(root, prefix, cfg.Paths.StylesGlob)
		if err != nil {
			return err
		}
		if !report.OK() {
			return report
		}
		env.Logger.Info("styles clean", "files", report.Files)
		return nil
	}), nil
}

func lineStarts(src string) []int {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// position converts a byte offset to 1-based line and column.
func position(starts []int, offset int) (int, int) {
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	return i + 1, offset - starts[i] + 1
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Rule < b.Rule
	})
}
