package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prequery/pqexec/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Result holds the outcome of one execution.
type Result struct {
	// Stdout is exactly the text the code wrote to standard output,
	// nothing else. The batch pipeline captures this per snippet.
	Stdout string
	// Output is Stdout followed by any non-protocol stderr text; the
	// human-facing combined view used by the CLI and REPL.
	Output   string
	Duration time.Duration
	Error    error
}

// Executor owns a wazero runtime and a cache of compiled interpreter
// modules, shared by all runs and sessions it creates.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	registry *hostfunc.Registry
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor. The registry seeds the host functions available
// to every run and session; nil means no extra functions.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if registry == nil {
		registry = hostfunc.NewRegistry()
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		registry: registry,
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", lang.Name(), err)
		}
	}

	return e, nil
}

// Run executes code once, statelessly: a fresh interpreter instance is
// created and torn down around this single call.
func (e *Executor) Run(ctx context.Context, lang Language, code string, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	compiled, err := e.getCompiled(ctx, lang)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}

	registry := e.cloneRegistry()
	registerBuiltins(registry, cfg)

	var stdout bytes.Buffer
	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, registry, stdinWriter)

	wrappedCode := lang.WrapCode(code)
	args := lang.Args(wrappedCode)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithArgs(args...).
		WithName("")

	errCh := make(chan error, 1)
	go func() {
		_, err := e.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		stdinWriter.Close()
		errCh <- err
	}()

	err = <-errCh

	result := Result{
		Stdout:   stdout.String(),
		Output:   stdout.String() + protocol.Stderr(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Errorf("timeout after %v", cfg.timeout)
		} else {
			result.Error = fmt.Errorf("execution failed: %w", err)
		}
	}

	return result
}

// cloneRegistry copies the executor's registry so per-run capability
// registrations never leak into other runs.
func (e *Executor) cloneRegistry() *hostfunc.Registry {
	registry := hostfunc.NewRegistry()
	for name, fn := range e.registry.All() {
		registry.Register(name, fn)
	}
	return registry
}

// registerBuiltins wires the capability host functions the run config asks
// for. time_now is always available: WASI modules have no realtime clock.
func registerBuiltins(registry *hostfunc.Registry, cfg runConfig) {
	registry.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	if cfg.kvEnabled || cfg.kvStore != nil {
		kv := cfg.kvStore
		if kv == nil {
			kv = hostfunc.NewKV(cfg.kvConfig)
		}
		registry.Register("kv_get", kv.Get)
		registry.Register("kv_set", kv.Set)
		registry.Register("kv_delete", kv.Delete)
		registry.Register("kv_keys", kv.Keys)
	}

	if len(cfg.httpConfig.AllowedHosts) > 0 {
		h := hostfunc.NewHTTP(cfg.httpConfig)
		registry.Register("http_request", h.Request)
		registry.Register("http_get", hostfunc.NewHTTPGet(cfg.httpConfig))
	}

	if len(cfg.mounts) > 0 {
		fs := hostfunc.NewFS(cfg.mounts, cfg.fsOptions...)
		registry.Register("fs_read", fs.Read)
		registry.Register("fs_write", fs.Write)
		registry.Register("fs_list", fs.List)
		registry.Register("fs_exists", fs.Exists)
		registry.Register("fs_mkdir", fs.Mkdir)
		registry.Register("fs_remove", fs.Remove)
		registry.Register("fs_stat", fs.Stat)
	}
}

// getCompiled returns a cached compiled module, compiling on first use.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	compiled, err := e.runtime.CompileModule(ctx, lang.Module())
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases the runtime and compilation cache.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "pqexec")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "pqexec")
	}
	return filepath.Join(os.TempDir(), "pqexec-cache")
}
