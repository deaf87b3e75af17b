// Package hostfunc provides the host functions callable from sandboxed code.
//
// Host functions are Go functions exposed to the WASM interpreter over the
// control protocol, giving snippets controlled access to resources outside
// the sandbox: HTTP, filesystem mounts, and an in-memory key-value store.
//
// # Registry
//
// The [Registry] holds the functions available to one run or session.
// Register custom functions or use the built-in helpers:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// # Built-in Capabilities
//
// HTTP, restricted to an allow-list of hosts:
//
//	h := hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"api.example.com"},
//	})
//	registry.Register("http_request", h.Request)
//
// Filesystem, restricted to explicit mounts:
//
//	fs := hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	})
//	registry.Register("fs_read", fs.Read)
//
// Key-value store:
//
//	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
//	registry.Register("kv_get", kv.Get)
//	registry.Register("kv_set", kv.Set)
//
// All capabilities are off by default; snippets get nothing unless the
// embedder enables it. Every operation carries a configurable size limit.
//
// See the executor package for the higher-level API that wires these up
// from options.
package hostfunc
