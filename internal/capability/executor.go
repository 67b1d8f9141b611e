package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Channel is the live link to one device, supplied by the connection
// manager. Writes and reads are already timing-shaped.
type Channel interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// Request is one command for one device.
type Request struct {
	Address string
	Command string
	Args    map[string]any
}

// Result is the peer's reply to a Request.
type Result struct {
	Platform Platform        `json:"platform"`
	Command  string          `json:"command"`
	Reply    json.RawMessage `json:"reply"`
}

// Executor dispatches a command over a channel.
type Executor interface {
	Execute(ctx context.Context, ch Channel, req Request) (Result, error)
}

// envelope is the wire frame written by EnvelopeExecutor.
type envelope struct {
	Cmd      string         `json:"cmd"`
	Args     map[string]any `json:"args,omitempty"`
	Platform Platform       `json:"platform"`
}

// EnvelopeExecutor writes the command as a JSON envelope and returns the
// next inbound frame as the reply. A reply that is not JSON is returned as
// a JSON string.
type EnvelopeExecutor struct {
	Platform Platform
}

// Execute implements Executor.
func (e EnvelopeExecutor) Execute(ctx context.Context, ch Channel, req Request) (Result, error) {
	cmd := strings.TrimSpace(req.Command)
	if cmd == "" {
		return Result{}, ErrEmptyCommand
	}

	frame, err := json.Marshal(envelope{Cmd: cmd, Args: req.Args, Platform: e.Platform})
	if err != nil {
		return Result{}, fmt.Errorf("encoding command %q: %w", cmd, err)
	}
	if err := ch.Send(ctx, frame); err != nil {
		return Result{}, fmt.Errorf("sending command %q: %w", cmd, err)
	}

	reply, err := ch.Recv(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading reply to %q: %w", cmd, err)
	}
	if len(reply) == 0 {
		return Result{}, fmt.Errorf("%w to %q", ErrNoReply, cmd)
	}

	raw := json.RawMessage(reply)
	if !json.Valid(reply) {
		quoted, err := json.Marshal(string(reply))
		if err != nil {
			return Result{}, fmt.Errorf("quoting reply: %w", err)
		}
		raw = quoted
	}
	return Result{Platform: e.Platform, Command: cmd, Reply: raw}, nil
}

// Router selects the executor for a platform.
type Router struct {
	mu        sync.RWMutex
	executors map[Platform]Executor
}

// NewRouter creates a router with an EnvelopeExecutor for every platform.
func NewRouter() *Router {
	r := &Router{executors: make(map[Platform]Executor, len(AllPlatforms))}
	for _, p := range AllPlatforms {
		r.executors[p] = EnvelopeExecutor{Platform: p}
	}
	return r
}

// Register replaces the executor for p.
func (r *Router) Register(p Platform, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[p] = exec
}

// Executor returns the executor for p, falling back to the generic variant.
func (r *Router) Executor(p Platform) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if exec, ok := r.executors[p]; ok {
		return exec
	}
	return r.executors[PlatformGeneric]
}
