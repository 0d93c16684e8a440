// Command layer-check verifies package layering and fixed-point volume code
// across the chemcore module.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chemcore/internal/validation"
)

const modulePath = "chemcore"

var fixedPointDirs = []string{"pkg/domain", "internal/core"}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", ".", "module root")
	skipFloat := fs.Bool("skip-fixed-point", false, "skip the floating point check")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	patterns := fs.Args()

	viols, err := validation.CheckLayering(*root, patterns, validation.DefaultLayerRules(modulePath))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "layer-check: %v\n", err)
		return 2
	}
	if !*skipFloat {
		for _, dir := range fixedPointDirs {
			viols = append(viols, validation.ValidateFixedPointDirectory(filepath.Join(*root, dir), "observability*.go")...)
		}
	}
	for _, v := range viols {
		_, _ = fmt.Fprintln(stdout, v.String())
	}
	if len(viols) > 0 {
		_, _ = fmt.Fprintf(stderr, "layer-check: %d violation(s)\n", len(viols))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "layer-check: ok")
	return 0
}
