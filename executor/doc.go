// Package executor provides a WebAssembly-based engine for executing code
// snippets in sandboxed interpreter instances.
//
// # Overview
//
// The executor manages WASM module compilation, caching, and execution. It
// supports stateless one-shot runs and stateful sessions whose interpreter
// scope persists across calls — the mechanism behind the snippet batch
// pipeline, where each snippet sees the bindings of those before it.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, python.New(), `print("hello")`)
//	fmt.Print(result.Stdout)
//
// # Sessions
//
// Sessions keep one interpreter alive and feed it snippets one at a time:
//
//	session, err := exec.NewSession(python.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Run(ctx, `x = 5`)
//	session.Run(ctx, `print(x)`) // Stdout: "5\n"
//
// Each Run captures exactly what that snippet wrote to stdout; the capture
// buffer is reset between calls.
//
// # Capabilities
//
// Sandboxed code has no filesystem, network, or other system access unless
// explicitly enabled:
//
//	session, _ := exec.NewSession(python.New(),
//	    executor.WithSessionAllowedHosts([]string{"api.example.com"}),
//	    executor.WithSessionMount("/data", "./input", hostfunc.MountReadOnly),
//	    executor.WithSessionKV(),
//	)
//
// # Language Interface
//
// To add a language, implement the [Language] interface. See
// [github.com/prequery/pqexec/language/python] for an example.
package executor
