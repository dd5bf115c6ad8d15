// Package assets provides the leaf tasks that turn the source tree into the
// publishable output directory: clean, copyAssets, compileHtml,
// compileStyles, optimizeImages and buildSprite.
//
// Every constructor takes the project configuration and returns a
// *task.Task whose write-set lists the project-relative paths it may touch.
// Write-sets of file-set tasks are expanded from the source tree when the
// task is constructed.
package assets

// Task names as they appear in logs, metrics and the workflow outline.
const (
	NameClean          = "clean"
	NameCopyAssets     = "copyAssets"
	NameCompileHTML    = "compileHtml"
	NameCompileStyles  = "compileStyles"
	NameOptimizeImages = "optimizeImages"
	NameBuildSprite    = "buildSprite"
)
