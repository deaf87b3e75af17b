package executor

import (
	"sync"

	"github.com/prequery/pqexec/hostfunc"
)

// Shared executor for tests. Creating an executor costs ~1.5s of WASM
// compilation, so test packages reuse one instance.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a process-wide executor for testing, created on
// first use.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		testExecutor, testExecutorErr = New(hostfunc.NewRegistry())
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor. Call from TestMain if
// cleanup matters; usually it does not.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close()
		testExecutor = nil
		testExecutorOnce = sync.Once{}
	}
}
