package executor

import (
	_ "embed"
)

//go:generate env GOOS=wasip1 GOARCH=wasm go build -o testdata/mock.wasm testdata/mock.go

//go:embed testdata/mock.wasm
var mockWasm []byte

// mockLanguage implements Language for testing executor logic without the
// overhead of a real interpreter runtime.
type mockLanguage struct{}

func (m *mockLanguage) Name() string {
	return "mock"
}

func (m *mockLanguage) Module() []byte {
	return mockWasm
}

func (m *mockLanguage) WrapCode(code string) string {
	return code
}

func (m *mockLanguage) Args(wrappedCode string) []string {
	return []string{"mock", wrappedCode}
}

func (m *mockLanguage) SessionInit() string {
	return ""
}

func newMockLanguage() *mockLanguage {
	return &mockLanguage{}
}
