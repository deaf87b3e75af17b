package executor

import (
	"time"

	"github.com/prequery/pqexec/hostfunc"
)

// Option configures a single stateless execution.
type Option func(*runConfig)

type runConfig struct {
	timeout   time.Duration
	kvEnabled bool
	kvStore   *hostfunc.KV
	kvConfig  hostfunc.KVConfig
	mounts    []hostfunc.Mount
	// Security limits
	httpConfig hostfunc.HTTPConfig
	fsOptions  []hostfunc.FSOption
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout:  30 * time.Second,
		kvConfig: hostfunc.DefaultKVConfig(),
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithAllowedHosts enables HTTP for the listed hosts and their subdomains.
func WithAllowedHosts(hosts []string) Option {
	return func(c *runConfig) {
		c.httpConfig.AllowedHosts = hosts
	}
}

// WithKV enables a fresh in-memory key-value store for this run.
func WithKV() Option {
	return func(c *runConfig) {
		c.kvEnabled = true
	}
}

// WithKVStore shares an existing store across runs.
func WithKVStore(kv *hostfunc.KV) Option {
	return func(c *runConfig) {
		c.kvStore = kv
	}
}

// Mount permission modes (re-exported from hostfunc for convenience).
const (
	MountReadOnly        = hostfunc.MountReadOnly
	MountReadWrite       = hostfunc.MountReadWrite
	MountReadWriteCreate = hostfunc.MountReadWriteCreate
)

// WithMount adds a filesystem mount point. The virtual path is what
// sandboxed code sees; the host path is the actual location.
//
// Examples:
//
//	executor.WithMount("/data", "./input", executor.MountReadOnly)
//	executor.WithMount("/output", "./results", executor.MountReadWriteCreate)
func WithMount(virtualPath, hostPath string, mode hostfunc.MountMode) Option {
	return func(c *runConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// Security limit options

// WithKVMaxKeySize sets the maximum key size for KV store operations.
func WithKVMaxKeySize(size int) Option {
	return func(c *runConfig) {
		c.kvConfig.MaxKeySize = size
	}
}

// WithKVMaxValueSize sets the maximum value size for KV store operations.
func WithKVMaxValueSize(size int) Option {
	return func(c *runConfig) {
		c.kvConfig.MaxValueSize = size
	}
}

// WithKVMaxEntries sets the maximum number of entries in the KV store.
func WithKVMaxEntries(n int) Option {
	return func(c *runConfig) {
		c.kvConfig.MaxEntries = n
	}
}

// WithHTTPMaxURLLength sets the maximum URL length for HTTP requests.
func WithHTTPMaxURLLength(size int) Option {
	return func(c *runConfig) {
		c.httpConfig.MaxURLLength = size
	}
}

// WithHTTPMaxBodySize sets the maximum body size for HTTP requests and
// responses.
func WithHTTPMaxBodySize(size int64) Option {
	return func(c *runConfig) {
		c.httpConfig.MaxBodySize = size
	}
}

// WithFSMaxFileSize sets the maximum file size for read operations.
func WithFSMaxFileSize(size int64) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

// WithFSMaxWriteSize sets the maximum content size for write operations.
func WithFSMaxWriteSize(size int64) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxWriteSize(size))
	}
}

// WithFSMaxPathLength sets the maximum path length for filesystem operations.
func WithFSMaxPathLength(length int) Option {
	return func(c *runConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxPathLength(length))
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language
	memoryLimitPages uint32 // 64KB pages; 0 = wazero default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{}
}

// WithDiskCache enables a persistent compilation cache for faster startup.
// Optionally provide a custom directory; the default is ~/.cache/pqexec or
// $XDG_CACHE_HOME/pqexec.
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the given languages when the Executor is created,
// moving the cost to startup rather than first execution.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit caps the memory available to WASM modules, in 64KB pages.
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)
