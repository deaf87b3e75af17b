package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/prequery/pqexec/hostfunc"
)

// Control protocol constants. Interpreter stdlibs talk to the host over
// stderr so user stdout stays clean:
//
//	\x00PQX:{json}\x00        host function call
//	\x00PQX_FLUSH:{n}\x00     execute n queued async calls
//
// Responses are written to the module's stdin as JSON lines.
const (
	protocolPrefix      = "\x00PQX:"
	protocolFlushPrefix = "\x00PQX_FLUSH:"
	protocolSuffix      = "\x00"
)

type callRequest struct {
	ID   string         `json:"id,omitempty"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageFlush
)

// findNextMessage locates the earliest protocol message in content and
// reports its kind. Returns -1 if no message marker is present.
func findNextMessage(content string) (int, messageType) {
	callIdx := strings.Index(content, protocolPrefix)
	flushIdx := strings.Index(content, protocolFlushPrefix)

	switch {
	case callIdx == -1 && flushIdx == -1:
		return -1, messageNone
	case flushIdx == -1 || (callIdx != -1 && callIdx < flushIdx):
		return callIdx, messageCall
	default:
		return flushIdx, messageFlush
	}
}

// extractMessage pulls one complete message starting at idx out of content.
// If the terminating suffix has not arrived yet, ok is false and remaining
// holds the partial message so the caller can keep buffering.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	body := content[idx+len(prefix):]
	end := strings.Index(body, protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return body[:end], body[end+1:], true
}

// protocolHandler intercepts stderr for one-shot executions. Plain stderr
// text passes through to a buffer; protocol messages trigger host calls
// whose responses are written back on the module's stdin.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter

	buf        bytes.Buffer
	realStderr bytes.Buffer
	pending    []callRequest

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()

		idx, msgType := findNextMessage(content)
		if msgType == messageNone {
			p.realStderr.WriteString(content)
			p.buf.Reset()
			break
		}

		p.realStderr.WriteString(content[:idx])

		prefix := protocolPrefix
		if msgType == messageFlush {
			prefix = protocolFlushPrefix
		}

		payload, remaining, ok := extractMessage(content, idx, prefix)
		p.buf.Reset()
		p.buf.WriteString(remaining)
		if !ok {
			break
		}

		switch msgType {
		case messageCall:
			p.handleCall(payload)
		case messageFlush:
			p.handleFlush(payload)
		}
	}

	return len(data), nil
}

// handleCall dispatches one call. Calls without an ID are synchronous: the
// interpreter blocks on stdin for the response. Calls with an ID are queued
// until a flush message releases them.
func (p *protocolHandler) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}

	if req.ID != "" {
		p.pending = append(p.pending, req)
		return
	}

	// Responding must not block Write; the module is waiting on stdin.
	go p.respond(p.executeCall(req))
}

// handleFlush executes up to n queued calls concurrently and responds to
// each with its request ID.
func (p *protocolHandler) handleFlush(payload string) {
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

func (p *protocolHandler) executeCall(req callRequest) callResponse {
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

func (p *protocolHandler) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(append(data, '\n'))
}

// Stderr returns the non-protocol stderr output accumulated so far.
func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
