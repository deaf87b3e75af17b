// Command download fetches the WASM interpreter binaries that get embedded
// into the language packages. Invoked via go:generate; skips files that
// already exist.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

// targets maps a language name to its interpreter binary.
var targets = map[string]struct {
	url    string
	output string
}{
	"python": {
		url:    "https://github.com/RustPython/RustPython/releases/latest/download/rustpython.wasm",
		output: "python.wasm",
	},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: download <target>")
		os.Exit(1)
	}

	target, ok := targets[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown target: %s\n", os.Args[1])
		os.Exit(1)
	}

	if _, err := os.Stat(target.output); err == nil {
		return
	}

	resp, err := http.Get(target.url)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "download failed: %s\n", resp.Status)
		os.Exit(1)
	}

	f, err := os.Create(target.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(target.output)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
