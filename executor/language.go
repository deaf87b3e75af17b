package executor

// Language describes a WASM-based interpreter runtime. Implement it to add
// support for another language.
type Language interface {
	// Name returns a unique identifier such as "python" or "javascript".
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary of the interpreter.
	Module() []byte

	// WrapCode prepends the language's stdlib shim (host function
	// bindings, session loop) to user code.
	WrapCode(code string) string

	// Args returns the command-line arguments for the WASM module.
	// For Python: []string{"python", "-c", code}
	// For QuickJS: []string{"qjs", "--std", "-e", code}
	Args(wrappedCode string) []string

	// SessionInit returns code injected ahead of the stdlib to switch it
	// into session mode, where it loops reading exec commands from stdin
	// instead of running once.
	SessionInit() string
}
