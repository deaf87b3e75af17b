package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prequery/pqexec/executor"
	"github.com/prequery/pqexec/hostfunc"
	"github.com/prequery/pqexec/language/javascript"
	"github.com/prequery/pqexec/language/python"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pqexec [file]",
	Short: "Batch code execution fixture on a WASM sandbox",
	Long: `pqexec - Run batches of code snippets in a shared interpreter scope.

By default it reads a JSON array of snippets from stdin, executes them in
order inside one sandboxed interpreter session (later snippets see earlier
bindings), and writes a JSON array of each snippet's stdout to stdout. The
first failing snippet aborts the batch with a non-zero exit and no output.

Sandboxed code has no access to filesystem, network, or other system
resources unless capabilities are enabled explicitly with flags.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runBatch, // Default to batch command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("lang", "l", "", "Language: python, js (default: python for batch)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")

	// The root command doubles as the batch command.
	addSessionFlags(rootCmd)
	rootCmd.Flags().String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
}

func parseMount(spec string) (hostfunc.Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return hostfunc.Mount{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}

	var mode hostfunc.MountMode
	switch parts[2] {
	case "ro":
		mode = hostfunc.MountReadOnly
	case "rw":
		mode = hostfunc.MountReadWrite
	case "rwc":
		mode = hostfunc.MountReadWriteCreate
	default:
		return hostfunc.Mount{}, fmt.Errorf("invalid mount mode %q (expected ro, rw, or rwc)", parts[2])
	}

	return hostfunc.Mount{
		VirtualPath: parts[0],
		HostPath:    parts[1],
		Mode:        mode,
	}, nil
}

func getLanguage(langFlag string, filename string) (executor.Language, error) {
	lang := langFlag

	if lang == "" && filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".py":
			lang = "python"
		case ".js", ".mjs":
			lang = "js"
		}
	}

	if lang == "" {
		return nil, fmt.Errorf("language required: use --lang python or --lang js")
	}

	switch lang {
	case "js", "javascript":
		return javascript.New(), nil
	case "python", "py":
		return python.New(), nil
	default:
		return nil, fmt.Errorf("unknown language %q: use python or js", lang)
	}
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return executor.MemoryLimit1MB
	case "16mb":
		return executor.MemoryLimit16MB
	case "64mb":
		return executor.MemoryLimit64MB
	case "256mb":
		return executor.MemoryLimit256MB
	case "1gb":
		return executor.MemoryLimit1GB
	default:
		return 0 // use default
	}
}
