package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prequery/pqexec/executor"
)

// fakeSession emulates a shared mutable scope without a WASM runtime: it
// understands two snippet shapes, "x = 5" and "print(x)", plus literal
// "fail" to force an error.
type fakeSession struct {
	vars map[string]string
	runs int
}

func newFakeSession() *fakeSession {
	return &fakeSession{vars: make(map[string]string)}
}

func (s *fakeSession) Run(ctx context.Context, code string) executor.Result {
	s.runs++
	code = strings.TrimSpace(code)

	if code == "fail" {
		return executor.Result{Error: errors.New("forced failure")}
	}

	if name, value, ok := strings.Cut(code, " = "); ok {
		s.vars[name] = value
		return executor.Result{}
	}

	if arg, ok := strings.CutPrefix(code, "print("); ok {
		arg = strings.TrimSuffix(arg, ")")
		if value, bound := s.vars[arg]; bound {
			return executor.Result{Stdout: value + "\n"}
		}
		return executor.Result{Stdout: strings.Trim(arg, "'\"") + "\n"}
	}

	return executor.Result{}
}

func runBatch(t *testing.T, sess Session, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Run(context.Background(), sess, strings.NewReader(input), &out)
	return out.String(), err
}

func TestRunSingleSnippet(t *testing.T) {
	out, err := runBatch(t, newFakeSession(), `["print(1)"]`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != `["1\n"]` {
		t.Errorf("output = %s, want %s", out, `["1\n"]`)
	}
}

func TestRunScopePersists(t *testing.T) {
	out, err := runBatch(t, newFakeSession(), `["x = 5", "print(x)"]`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != `["","5\n"]` {
		t.Errorf("output = %s, want %s", out, `["","5\n"]`)
	}
}

func TestRunEmptyInput(t *testing.T) {
	out, err := runBatch(t, newFakeSession(), `[]`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != `[]` {
		t.Errorf("output = %s, want %s", out, `[]`)
	}
}

func TestRunNoCrossContamination(t *testing.T) {
	out, err := runBatch(t, newFakeSession(), `["print('a')", "print('b')"]`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != `["a\n","b\n"]` {
		t.Errorf("output = %s, want %s", out, `["a\n","b\n"]`)
	}
}

func TestRunFailureAbortsBatch(t *testing.T) {
	sess := newFakeSession()
	out, err := runBatch(t, sess, `["print('a')", "fail", "print('c')"]`)
	if err == nil {
		t.Fatal("expected error, got none")
	}
	if out != "" {
		t.Errorf("nothing may be written on failure, got %s", out)
	}
	if sess.runs != 2 {
		t.Errorf("execution must stop at the failing snippet: ran %d snippets, want 2", sess.runs)
	}
	if !strings.Contains(err.Error(), "snippet 1") {
		t.Errorf("error should name the failing position, got: %v", err)
	}
}

func TestRunMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "not json at all"},
		{"wrong type", `{"a": 1}`},
		{"array of numbers", `[1, 2, 3]`},
		{"empty input", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runBatch(t, newFakeSession(), tt.input)
			if err == nil {
				t.Fatal("expected parse error, got none")
			}
			if out != "" {
				t.Errorf("nothing may be written on parse failure, got %s", out)
			}
		})
	}
}

func TestRunNoTrailingNewline(t *testing.T) {
	out, err := runBatch(t, newFakeSession(), `["print(1)"]`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.HasSuffix(out, "\n") {
		t.Errorf("output must not end with a newline: %q", out)
	}
}

func TestExecuteLengthInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 5, 20} {
		snippets := make([]string, n)
		for i := range snippets {
			snippets[i] = fmt.Sprintf("print(%d)", i)
		}

		outputs, err := Execute(context.Background(), newFakeSession(), snippets)
		if err != nil {
			t.Fatalf("execute failed for n=%d: %v", n, err)
		}
		if len(outputs) != n {
			t.Errorf("len(outputs) = %d, want %d", len(outputs), n)
		}
	}
}

func TestExecuteOrderPreserved(t *testing.T) {
	snippets := []string{"print('first')", "print('second')", "print('third')"}

	outputs, err := Execute(context.Background(), newFakeSession(), snippets)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	want := []string{"first\n", "second\n", "third\n"}
	for i := range want {
		if outputs[i] != want[i] {
			t.Errorf("outputs[%d] = %q, want %q", i, outputs[i], want[i])
		}
	}
}
