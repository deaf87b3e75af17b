// Package javascript provides the JavaScript language adapter, backed by
// QuickJS compiled to WASI.
package javascript

import (
	_ "embed"

	quickjswasi "github.com/paralin/go-quickjs-wasi"
)

//go:embed stdlib.js
var stdlib string

// JavaScript implements the executor.Language interface for JavaScript
// execution.
type JavaScript struct{}

// New returns a JavaScript language adapter.
func New() *JavaScript {
	return &JavaScript{}
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// Module returns the QuickJS WASM binary.
func (j *JavaScript) Module() []byte {
	return quickjswasi.QuickJSWASM
}

// WrapCode prepends the runtime support library to user code.
func (j *JavaScript) WrapCode(code string) string {
	return stdlib + "\n" + code
}

// Args returns the command-line arguments for the QuickJS interpreter.
func (j *JavaScript) Args(wrappedCode string) []string {
	return []string{"qjs", "--std", "-e", wrappedCode}
}

// SessionInit returns the prelude that switches the support library into
// session mode, where it loops reading exec commands from stdin.
func (j *JavaScript) SessionInit() string {
	return "globalThis._PQX_SESSION_MODE = true;\n"
}
