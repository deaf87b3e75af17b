//go:build wasip1

// Mock interpreter for testing executor logic without a real runtime.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm mock.go
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

func main() {
	if os.Getenv("PQX_SESSION") != "1" {
		// One-shot mode: echo the code argument and exit.
		if len(os.Args) > 1 {
			fmt.Print(os.Args[1])
		}
		return
	}

	// Session mode: signal ready, then echo each exec command's code.
	fmt.Fprint(os.Stderr, "\x00PQX_READY\x00")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var cmd struct {
			Type string `json:"type"`
			Code string `json:"code"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}

		if cmd.Type == "exit" {
			break
		}

		if cmd.Type == "exec" {
			fmt.Print(cmd.Code)
			fmt.Fprint(os.Stderr, "\x00PQX_DONE\x00")
		}
	}
}
