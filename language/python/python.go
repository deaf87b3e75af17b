// Package python provides the Python language adapter, backed by RustPython
// compiled to WASI.
package python

import (
	_ "embed"
)

//go:generate go run github.com/prequery/pqexec/internal/tools/download python

//go:embed python.wasm
var wasmModule []byte

//go:embed stdlib.py
var stdlib string

// Python implements the executor.Language interface for Python execution.
type Python struct{}

// New returns a Python language adapter.
func New() *Python {
	return &Python{}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Module returns the RustPython WASM binary.
func (p *Python) Module() []byte {
	return wasmModule
}

// WrapCode prepends the runtime support library to user code.
func (p *Python) WrapCode(code string) string {
	return stdlib + "\n" + code
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(wrappedCode string) []string {
	return []string{"python", "-c", wrappedCode}
}

// SessionInit returns the prelude that switches the support library into
// session mode, where it loops reading exec commands from stdin.
func (p *Python) SessionInit() string {
	return "_PQX_SESSION_MODE = True\n"
}
