// Package batch runs an ordered sequence of code snippets in one shared
// interpreter scope and collects what each snippet prints.
//
// The contract is stdin-to-stdout JSON: the input is an array of snippet
// strings, the output an array of the same length where element i is exactly
// the text snippet i wrote to stdout. Later snippets see bindings made by
// earlier ones. The first failing snippet aborts the batch: nothing is
// written and the error propagates to the caller.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prequery/pqexec/executor"
)

// Session is the execution surface the pipeline needs: run code in a shared
// scope, get back what it printed. *executor.Session satisfies it.
type Session interface {
	Run(ctx context.Context, code string) executor.Result
}

// Execute runs the snippets in order in sess's shared scope and returns the
// per-snippet stdout captures. The first failing snippet aborts with an
// error naming its position; no partial results are returned.
func Execute(ctx context.Context, sess Session, snippets []string) ([]string, error) {
	outputs := make([]string, 0, len(snippets))

	for i, code := range snippets {
		result := sess.Run(ctx, code)
		if result.Error != nil {
			return nil, fmt.Errorf("snippet %d: %w", i, result.Error)
		}
		outputs = append(outputs, result.Stdout)
	}

	return outputs, nil
}

// Run is the full pipeline: read a JSON array of snippets from r, execute
// them in order in sess, and write the captured outputs as a JSON array to
// w with no trailing newline. On any failure nothing is written to w.
func Run(ctx context.Context, sess Session, r io.Reader, w io.Writer) error {
	input, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var snippets []string
	if err := json.Unmarshal(input, &snippets); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	outputs, err := Execute(ctx, sess, snippets)
	if err != nil {
		return err
	}

	// outputs is never nil, so an empty batch marshals as [].
	data, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}
