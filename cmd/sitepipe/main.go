// sitepipe builds, checks, previews and publishes a small static website.
//
// Usage:
//
//	sitepipe [--dir DIR] [--config FILE] [--log-level LEVEL] [command]
//
// Commands:
//
//	serve    build for development, serve with live reload, rebuild on change (default)
//	build    produce the production output directory
//	test     lint the style sources
//	deploy   build and publish the output to the hosting branch
//	graph    print a workflow's task tree
//	init     write a default sitepipe.yaml and starter sources
//	version  print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/msageha/sitepipe/internal/task"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// printError writes err in the form "error: task <name>: <message>". A
// rejected workflow definition lists every problem on its own line.
func printError(w io.Writer, err error) {
	var ve *task.ValidationErrors
	if errors.As(err, &ve) {
		fmt.Fprint(w, ve.FormatStderr())
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
