package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prequery/pqexec/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionBusy   = errors.New("session busy")
)

// Session is a long-lived interpreter instance. Its global scope persists
// across Run calls, so later snippets see bindings made by earlier ones.
// Stdout is captured per call: the buffer is reset before each execution so
// no text from an earlier snippet leaks into a later result.
type Session struct {
	exec     *Executor
	lang     Language
	cfg      sessionConfig
	registry *hostfunc.Registry

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *sessionOutput
	protocol    *sessionProtocol
	module      api.Module

	mu       sync.Mutex
	execMu   sync.Mutex
	closed   bool
	started  bool
	startErr error
}

type sessionConfig struct {
	timeout          time.Duration
	allowedHosts     []string
	mounts           []hostfunc.Mount
	packagesPath     string
	kvEnabled        bool
	kvStore          *hostfunc.KV
	kvConfig         hostfunc.KVConfig
	httpMaxURLLength int
	httpMaxBodySize  int64
	httpTimeout      time.Duration
	fsOptions        []hostfunc.FSOption
	pkgInstall       bool
	allowedPackages  []string
	env              map[string]string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:  30 * time.Second,
		kvConfig: hostfunc.DefaultKVConfig(),
		env:      make(map[string]string),
	}
}

type SessionOption func(*sessionConfig)

// WithSessionTimeout sets the per-Run execution timeout.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithSessionAllowedHosts enables HTTP for the listed hosts.
func WithSessionAllowedHosts(hosts []string) SessionOption {
	return func(c *sessionConfig) {
		c.allowedHosts = hosts
	}
}

// WithSessionMount adds a filesystem mount point.
func WithSessionMount(virtualPath, hostPath string, mode hostfunc.MountMode) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// WithSessionKV enables an in-memory key-value store for the session.
func WithSessionKV() SessionOption {
	return func(c *sessionConfig) {
		c.kvEnabled = true
	}
}

// WithSessionKVStore shares an existing store with the session.
func WithSessionKVStore(kv *hostfunc.KV) SessionOption {
	return func(c *sessionConfig) {
		c.kvStore = kv
	}
}

// WithPackages mounts a directory of installed Python packages read-only at
// /packages and puts it on the interpreter's import path.
func WithPackages(path string) SessionOption {
	return func(c *sessionConfig) {
		c.packagesPath = path
	}
}

// WithPackageInstall enables runtime package installation from sandboxed
// code via the pkg_install host function.
func WithPackageInstall(enabled bool) SessionOption {
	return func(c *sessionConfig) {
		c.pkgInstall = enabled
	}
}

// WithAllowedPackages enables runtime installation restricted to the named
// packages.
func WithAllowedPackages(pkgs []string) SessionOption {
	return func(c *sessionConfig) {
		c.pkgInstall = true
		c.allowedPackages = pkgs
	}
}

// WithSessionHTTPTimeout sets the timeout of outbound HTTP requests.
func WithSessionHTTPTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.httpTimeout = d
	}
}

// WithSessionHTTPMaxURLLength sets the maximum URL length for HTTP requests.
func WithSessionHTTPMaxURLLength(size int) SessionOption {
	return func(c *sessionConfig) {
		c.httpMaxURLLength = size
	}
}

// WithSessionHTTPMaxBodySize sets the maximum HTTP body size.
func WithSessionHTTPMaxBodySize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.httpMaxBodySize = size
	}
}

// WithSessionFSMaxFileSize caps the size of files readable via mounts.
func WithSessionFSMaxFileSize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

// WithSessionEnv sets an environment variable inside the module.
func WithSessionEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}

// NewSession starts a persistent interpreter instance and blocks until its
// session loop signals ready.
func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.env["PQX_SESSION"] = "1"

	if cfg.packagesPath != "" {
		cfg.mounts = append(cfg.mounts, hostfunc.Mount{
			VirtualPath: "/packages",
			HostPath:    cfg.packagesPath,
			Mode:        hostfunc.MountReadOnly,
		})
		cfg.env["PYTHONPATH"] = "/packages"
	}

	s := &Session{
		exec:     e,
		lang:     lang,
		cfg:      cfg,
		registry: e.cloneRegistry(),
	}

	if err := s.start(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	ctx := context.Background()

	compiled, err := s.exec.getCompiled(ctx, s.lang)
	if err != nil {
		s.startErr = err
		return err
	}

	s.registerHostFunctions()

	s.stdinReader, s.stdin = io.Pipe()
	s.stdout = newSessionOutput()
	s.protocol = newSessionProtocol(ctx, s.registry, s.stdin)

	initCode := s.lang.SessionInit() + s.lang.WrapCode("")
	args := s.lang.Args(initCode)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.protocol).
		WithStdin(s.stdinReader).
		WithArgs(args...).
		WithName("")

	for k, v := range s.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	go func() {
		mod, err := s.exec.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if err != nil {
			s.mu.Lock()
			s.startErr = fmt.Errorf("start session: %w", err)
			s.mu.Unlock()
			return
		}
		s.module = mod
	}()

	select {
	case <-s.protocol.Ready():
		s.started = true
		return nil
	case <-time.After(30 * time.Second):
		s.startErr = errors.New("session start timeout")
		return s.startErr
	}
}

func (s *Session) registerHostFunctions() {
	s.registry.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	if s.cfg.kvEnabled || s.cfg.kvStore != nil {
		kv := s.cfg.kvStore
		if kv == nil {
			kv = hostfunc.NewKV(s.cfg.kvConfig)
		}
		s.registry.Register("kv_get", kv.Get)
		s.registry.Register("kv_set", kv.Set)
		s.registry.Register("kv_delete", kv.Delete)
		s.registry.Register("kv_keys", kv.Keys)
	}

	if len(s.cfg.allowedHosts) > 0 {
		h := hostfunc.NewHTTP(hostfunc.HTTPConfig{
			AllowedHosts:   s.cfg.allowedHosts,
			MaxURLLength:   s.cfg.httpMaxURLLength,
			MaxBodySize:    s.cfg.httpMaxBodySize,
			RequestTimeout: s.cfg.httpTimeout,
		})
		s.registry.Register("http_request", h.Request)
	}

	if len(s.cfg.mounts) > 0 {
		fs := hostfunc.NewFS(s.cfg.mounts, s.cfg.fsOptions...)
		s.registry.Register("fs_read", fs.Read)
		s.registry.Register("fs_write", fs.Write)
		s.registry.Register("fs_list", fs.List)
		s.registry.Register("fs_exists", fs.Exists)
		s.registry.Register("fs_mkdir", fs.Mkdir)
		s.registry.Register("fs_remove", fs.Remove)
		s.registry.Register("fs_stat", fs.Stat)
	}

	if s.cfg.pkgInstall {
		pkgDir := s.cfg.packagesPath
		if pkgDir == "" {
			pkgDir = hostfunc.DefaultPkgConfig().PackageDir
		}
		s.registry.Register("pkg_install", hostfunc.NewPkgInstaller(hostfunc.PkgConfig{
			PackageDir:      pkgDir,
			AllowedPackages: s.cfg.allowedPackages,
			Enabled:         true,
		}))
	}
}

type execCommand struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// Run executes code in the session's shared scope and returns the text it
// wrote to stdout during this call. Only one execution may be in flight;
// concurrent callers get ErrSessionBusy.
func (s *Session) Run(ctx context.Context, code string) Result {
	if !s.execMu.TryLock() {
		return Result{Error: ErrSessionBusy}
	}
	defer s.execMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	closed, started, startErr := s.closed, s.started, s.startErr
	s.mu.Unlock()

	if closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}
	if !started {
		return Result{Error: startErr, Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.stdout.Reset()
	s.protocol.ResetExec()

	cmd := execCommand{Type: "exec", Code: code}
	cmdBytes, _ := json.Marshal(cmd)
	cmdBytes = append(cmdBytes, '\n')

	if _, err := s.stdin.Write(cmdBytes); err != nil {
		return Result{Error: fmt.Errorf("write command: %w", err), Duration: time.Since(start)}
	}

	select {
	case <-ctx.Done():
		return Result{
			Stdout:   s.stdout.String(),
			Output:   s.stdout.String() + s.protocol.Stderr(),
			Error:    fmt.Errorf("timeout after %v", s.cfg.timeout),
			Duration: time.Since(start),
		}
	case execErr := <-s.protocol.Done():
		return Result{
			Stdout:   s.stdout.String(),
			Output:   s.stdout.String() + s.protocol.Stderr(),
			Error:    execErr,
			Duration: time.Since(start),
		}
	}
}

// Close tears the session down. Closing the stdin pipe makes the
// interpreter's session loop see EOF and exit, even mid-read.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.stdinReader != nil {
		s.stdinReader.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}

	if s.module != nil {
		s.module.Close(context.Background())
	}

	return nil
}

// sessionOutput is the per-call stdout capture buffer.
type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}

// Session control signals, emitted by the stdlib's session loop on stderr.
const (
	sessionReadySignal = "\x00PQX_READY\x00"
	sessionDoneSignal  = "\x00PQX_DONE\x00"
	sessionErrorPrefix = "\x00PQX_ERROR:"
)

// sessionProtocol extends the one-shot protocol handling with the session
// lifecycle signals: ready on startup, done or error after each exec.
type sessionProtocol struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter

	buf        bytes.Buffer
	realStderr bytes.Buffer
	pending    []callRequest

	readyCh chan struct{}
	doneCh  chan error
	ready   bool

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newSessionProtocol(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *sessionProtocol {
	return &sessionProtocol{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
		pending:     make([]callRequest, 0),
		readyCh:     make(chan struct{}),
		doneCh:      make(chan error, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(data)
	p.buf.Write(data)

	for {
		content := p.buf.String()

		if p.checkSessionSignals(content) {
			continue
		}

		if p.processProtocolMessages(content) {
			continue
		}

		break
	}

	return n, nil
}

func (p *sessionProtocol) checkSessionSignals(content string) bool {
	if idx := strings.Index(content, sessionReadySignal); idx != -1 {
		if idx > 0 {
			p.realStderr.WriteString(content[:idx])
		}
		p.buf.Reset()
		p.buf.WriteString(content[idx+len(sessionReadySignal):])

		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
		return true
	}

	if idx := strings.Index(content, sessionDoneSignal); idx != -1 {
		if idx > 0 {
			p.realStderr.WriteString(content[:idx])
		}
		p.buf.Reset()
		p.buf.WriteString(content[idx+len(sessionDoneSignal):])

		select {
		case p.doneCh <- nil:
		default:
		}
		return true
	}

	if idx := strings.Index(content, sessionErrorPrefix); idx != -1 {
		afterPrefix := content[idx+len(sessionErrorPrefix):]
		if endIdx := strings.Index(afterPrefix, protocolSuffix); endIdx != -1 {
			errMsg := afterPrefix[:endIdx]
			if idx > 0 {
				p.realStderr.WriteString(content[:idx])
			}
			p.buf.Reset()
			p.buf.WriteString(afterPrefix[endIdx+1:])

			select {
			case p.doneCh <- errors.New(errMsg):
			default:
			}
			return true
		}
	}

	return false
}

func (p *sessionProtocol) processProtocolMessages(content string) bool {
	idx, msgType := findNextMessage(content)
	if msgType == messageNone {
		return false
	}

	if idx > 0 {
		p.realStderr.WriteString(content[:idx])
		p.buf.Reset()
		p.buf.WriteString(content[idx:])
		content = p.buf.String()
		idx = 0
	}

	switch msgType {
	case messageFlush:
		payload, remaining, ok := extractMessage(content, idx, protocolFlushPrefix)
		if !ok {
			return false
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)
		p.handleFlush(payload)
		return true

	case messageCall:
		payload, remaining, ok := extractMessage(content, idx, protocolPrefix)
		if !ok {
			return false
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)
		p.handleCall(payload)
		return true
	}

	return false
}

func (p *sessionProtocol) handleFlush(payload string) {
	count := 0
	fmt.Sscanf(payload, "%d", &count)
	if count <= 0 || count > len(p.pending) {
		count = len(p.pending)
	}
	if count == 0 {
		return
	}

	requests := p.pending[:count]
	p.pending = p.pending[count:]

	go func() {
		var wg sync.WaitGroup
		wg.Add(len(requests))
		for _, req := range requests {
			go func(r callRequest) {
				defer wg.Done()
				resp := p.executeCall(r)
				resp.ID = r.ID
				p.respond(resp)
			}(req)
		}
		wg.Wait()
	}()
}

func (p *sessionProtocol) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}

	if req.ID != "" {
		p.pending = append(p.pending, req)
		return
	}

	// Execute and respond off the Write path; the module blocks on stdin.
	go func() {
		p.respond(p.executeCall(req))
	}()
}

func (p *sessionProtocol) executeCall(req callRequest) callResponse {
	fn, ok := p.registry.Get(req.Fn)
	if !ok {
		return callResponse{Error: "unknown function: " + req.Fn}
	}

	result, err := fn(p.ctx, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

func (p *sessionProtocol) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(append(data, '\n'))
}

func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Done() <-chan error {
	return p.doneCh
}

// ResetExec clears per-execution state: a stale done signal and the
// non-protocol stderr buffer.
func (p *sessionProtocol) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.doneCh = make(chan error, 1)
	p.realStderr.Reset()
}

// Stderr returns the non-protocol stderr output of the current execution.
func (p *sessionProtocol) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
