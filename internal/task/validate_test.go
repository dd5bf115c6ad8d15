package task

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Env) error { return nil }

func validationMessages(t *testing.T, err error) []string {
	t.Helper()
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	var msgs []string
	for _, e := range verrs.Errors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

func TestValidate_AcceptsDisjointParallelWrites(t *testing.T) {
	wf := Sequence("build",
		Leaf("clean", []string{"dist"}, noop),
		Parallel("assets",
			Leaf("compileStyles", []string{"dist/css/main.min.css", "dist/css/main.min.css.map"}, noop),
			Leaf("compileHtml", []string{"dist/index.html"}, noop),
			Leaf("copyAssets", []string{"dist/img/logo.svg", "dist/fonts/a.woff2"}, noop),
			Leaf("optimizeImages", []string{"src/img/logo.svg"}, noop),
		),
		Leaf("buildSprite", []string{"dist/img/sprite.svg"}, noop),
	)
	assert.NoError(t, Validate(wf))
}

func TestValidate_RejectsOverlappingParallelWrites(t *testing.T) {
	wf := Parallel("dev-assets",
		Leaf("buildSprite", []string{"dist/img/sprite.svg"}, noop),
		Leaf("copyAssets", []string{"dist/img/sprite.svg", "dist/img/logo.svg"}, noop),
		Leaf("compileHtml", []string{"dist/index.html"}, noop),
	)

	msgs := validationMessages(t, Validate(wf))
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `"buildSprite" and "copyAssets"`)
	assert.Contains(t, msgs[0], "dist/img/sprite.svg")
}

func TestValidate_RejectsAncestorOverlapThroughComposites(t *testing.T) {
	wf := Parallel("outer",
		Sequence("left", Leaf("clean", []string{"dist"}, noop)),
		Sequence("right", Leaf("compileStyles", []string{"dist/css/main.min.css"}, noop)),
	)

	msgs := validationMessages(t, Validate(wf))
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `"left" and "right"`)
}

func TestValidate_SequenceMayOverlap(t *testing.T) {
	wf := Sequence("dev",
		Leaf("clean", []string{"dist"}, noop),
		Leaf("compileStyles", []string{"dist/css/main.min.css"}, noop),
	)
	assert.NoError(t, Validate(wf))
}

func TestValidate_DuplicateNames(t *testing.T) {
	wf := Sequence("wf", Leaf("clean", nil, noop), Leaf("clean", nil, noop))
	msgs := validationMessages(t, Validate(wf))
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `duplicate task name "clean"`)
}

func TestValidate_SharedNode(t *testing.T) {
	shared := Leaf("clean", nil, noop)
	wf := Sequence("wf", shared, shared)
	msgs := validationMessages(t, Validate(wf))
	assert.Contains(t, strings.Join(msgs, "\n"), "more than once")
}

func TestValidate_Cycle(t *testing.T) {
	inner := Sequence("inner", Leaf("a", nil, noop))
	outer := Sequence("outer", inner)
	inner.Children = append(inner.Children, outer)

	msgs := validationMessages(t, Validate(outer))
	assert.Contains(t, strings.Join(msgs, "\n"), "shared subtree or cycle")
}

func TestValidate_StructuralErrorsCollected(t *testing.T) {
	wf := Sequence("wf",
		Parallel("empty"),
		Leaf("", nil, noop),
		Leaf("nobody", nil, nil),
		nil,
	)

	msgs := validationMessages(t, Validate(wf))
	joined := strings.Join(msgs, "\n")
	assert.Len(t, msgs, 4)
	assert.Contains(t, joined, "parallel has no children")
	assert.Contains(t, joined, "task name must not be empty")
	assert.Contains(t, joined, "leaf task has no action")
	assert.Contains(t, joined, "nil task")
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, Validate(nil))
}

func TestValidationErrors_FormatStderr(t *testing.T) {
	errs := &ValidationErrors{}
	errs.Add("build[1].assets", "overlap")
	assert.Equal(t, "error: build[1].assets: overlap\n", errs.FormatStderr())
	assert.Equal(t, "invalid workflow: build[1].assets: overlap", errs.Error())
}

func TestWrites_UnionOfChildren(t *testing.T) {
	wf := Sequence("wf",
		Leaf("a", []string{"dist/b", "dist/a"}, noop),
		Parallel("p", Leaf("c", []string{"dist/a", "dist/c"}, noop)),
	)
	assert.Equal(t, []string{"dist/a", "dist/b", "dist/c"}, wf.Writes())
}

func TestDescribe(t *testing.T) {
	wf := Sequence("deploy",
		Sequence("build",
			Leaf("clean", []string{"dist"}, noop),
			Parallel("assets", Leaf("compileHtml", []string{"dist/index.html"}, noop)),
		),
		Leaf("publish", nil, noop),
	)

	var buf bytes.Buffer
	require.NoError(t, Describe(&buf, wf))
	want := strings.Join([]string{
		"deploy (sequence)",
		"  build (sequence)",
		"    clean  -> dist",
		"    assets (parallel)",
		"      compileHtml  -> dist/index.html",
		"  publish",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}
