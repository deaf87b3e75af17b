// Package pqexec runs batches of code snippets in a shared interpreter
// scope inside a WebAssembly sandbox, capturing each snippet's stdout.
//
// # Overview
//
// The primary contract is a JSON pipeline: a JSON array of snippet strings
// goes in, the snippets execute in order inside one sandboxed interpreter
// session (later snippets see bindings made by earlier ones), and a JSON
// array of each snippet's captured stdout comes out. The first failing
// snippet aborts the batch with no output. Sandboxed code has zero default
// capabilities; filesystem, network, and other system access must be
// explicitly enabled.
//
// # Basic Usage
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	// Batch: shared scope, per-snippet stdout capture
//	session, _ := exec.NewSession(python.New())
//	defer session.Close()
//	outputs, _ := batch.Execute(ctx, session, []string{"x = 5", "print(x)"})
//	// outputs == []string{"", "5\n"}
//
//	// Stateless execution
//	result := exec.Run(ctx, python.New(), `print("hello")`)
//	fmt.Println(result.Stdout)
//
// # Enabling Capabilities
//
//	// HTTP access
//	result := exec.Run(ctx, python.New(), code,
//	    executor.WithAllowedHosts([]string{"api.example.com"}))
//
//	// Filesystem access
//	result := exec.Run(ctx, python.New(), code,
//	    executor.WithMount("/data", "./input", hostfunc.MountReadOnly))
//
//	// Key-value store
//	result := exec.Run(ctx, python.New(), code,
//	    executor.WithKV())
//
// See the [batch], [executor], [hostfunc], [language/python], and
// [language/javascript] packages for detailed API documentation.
package pqexec
