// Package sandbox is the convenience surface over the execution engine:
// one-call helpers for running Python with a plain config struct, without
// wiring up an Executor, Language, and Session by hand.
package sandbox

import (
	"context"
	"io"
	"time"

	"github.com/prequery/pqexec/batch"
	"github.com/prequery/pqexec/executor"
	"github.com/prequery/pqexec/hostfunc"
	"github.com/prequery/pqexec/language/python"
)

// Result is the engine's execution result.
type Result = executor.Result

// Config covers the common knobs. The zero value disables HTTP and uses a
// private KV store per call.
type Config struct {
	Timeout      time.Duration
	AllowedHosts []string
	Registry     *hostfunc.Registry
	KVStore      *hostfunc.KV
}

func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

func (cfg Config) runOptions() []executor.Option {
	opts := []executor.Option{executor.WithTimeout(cfg.Timeout)}
	if cfg.KVStore != nil {
		opts = append(opts, executor.WithKVStore(cfg.KVStore))
	} else {
		opts = append(opts, executor.WithKV())
	}
	if len(cfg.AllowedHosts) > 0 {
		opts = append(opts, executor.WithAllowedHosts(cfg.AllowedHosts))
	}
	return opts
}

func (cfg Config) sessionOptions() []executor.SessionOption {
	opts := []executor.SessionOption{executor.WithSessionTimeout(cfg.Timeout)}
	if cfg.KVStore != nil {
		opts = append(opts, executor.WithSessionKVStore(cfg.KVStore))
	} else {
		opts = append(opts, executor.WithSessionKV())
	}
	if len(cfg.AllowedHosts) > 0 {
		opts = append(opts, executor.WithSessionAllowedHosts(cfg.AllowedHosts))
	}
	return opts
}

// Run executes one Python snippet in a fresh interpreter instance.
func Run(code string, cfg Config) Result {
	exec, err := executor.New(cfg.Registry)
	if err != nil {
		return Result{Error: err}
	}
	defer exec.Close()

	return exec.Run(context.Background(), python.New(), code, cfg.runOptions()...)
}

// RunBatch executes the snippets in order in one shared Python scope and
// returns each snippet's stdout capture. The first failure aborts the batch.
func RunBatch(snippets []string, cfg Config) ([]string, error) {
	exec, err := executor.New(cfg.Registry)
	if err != nil {
		return nil, err
	}
	defer exec.Close()

	session, err := exec.NewSession(python.New(), cfg.sessionOptions()...)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return batch.Execute(context.Background(), session, snippets)
}

// RunBatchJSON is the full stdin-to-stdout contract: read a JSON array of
// snippets from r, run them in one shared Python scope, write the JSON
// array of captured outputs to w. On any failure nothing is written.
func RunBatchJSON(r io.Reader, w io.Writer, cfg Config) error {
	exec, err := executor.New(cfg.Registry)
	if err != nil {
		return err
	}
	defer exec.Close()

	session, err := exec.NewSession(python.New(), cfg.sessionOptions()...)
	if err != nil {
		return err
	}
	defer session.Close()

	return batch.Run(context.Background(), session, r, w)
}
