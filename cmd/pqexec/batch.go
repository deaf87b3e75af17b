package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prequery/pqexec/batch"
	"github.com/prequery/pqexec/executor"
	"github.com/prequery/pqexec/hostfunc"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Run a JSON array of snippets in one shared scope",
	Long: `Read a JSON array of code snippets from stdin (or a file argument),
execute them in order inside one interpreter session, and write a JSON array
of each snippet's captured stdout to stdout.

Later snippets see variables and definitions made by earlier ones. The first
failing snippet aborts the batch: nothing is written to stdout and the
process exits non-zero.

Examples:
  echo '["x = 5", "print(x)"]' | pqexec batch
  pqexec batch snippets.json --lang js`,
	Args: cobra.MaximumNArgs(1),
	Run:  runBatch,
}

func init() {
	addSessionFlags(batchCmd)
	batchCmd.Flags().String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) {
	lang, _ := cmd.Flags().GetString("lang")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	memoryLimit, _ := cmd.Flags().GetString("memory")

	if lang == "" {
		lang = "python"
	}
	language, langErr := getLanguage(lang, "")
	if langErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", langErr)
		os.Exit(1)
	}

	var input []byte
	var err error
	if len(args) > 0 {
		input, err = os.ReadFile(args[0])
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var execOpts []executor.ExecutorOption
	if !noCache {
		execOpts = append(execOpts, executor.WithDiskCache())
	}
	if pages := parseMemoryLimit(memoryLimit); pages > 0 {
		execOpts = append(execOpts, executor.WithMemoryLimit(pages))
	}

	exec, err := executor.New(hostfunc.NewRegistry(), execOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer exec.Close()

	session, err := exec.NewSession(language, buildSessionOpts(cmd)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()

	if err := batch.Run(context.Background(), session, bytes.NewReader(input), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		session.Close()
		exec.Close()
		os.Exit(1)
	}
}
