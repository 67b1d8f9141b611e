package connection

import (
	"context"
	"fmt"

	"github.com/nerrad567/bluescout-core/internal/capability"
	"github.com/nerrad567/bluescout-core/internal/device"
)

// channel binds the capability Channel to one managed address, so every
// command write goes through Send's timing shape.
type channel struct {
	m       *Manager
	address string
}

func (c channel) Send(ctx context.Context, payload []byte) error {
	return c.m.Send(ctx, c.address, payload)
}

func (c channel) Recv(ctx context.Context) ([]byte, error) {
	return c.m.Recv(ctx, c.address)
}

// Execute routes command to the executor for the platform of address and
// runs it over the live connection. The manager does not interpret the
// command.
func (m *Manager) Execute(ctx context.Context, address, command string, args map[string]any) (capability.Result, error) {
	address = device.NormalizeAddress(address)
	e, err := m.connected(address)
	if err != nil {
		return capability.Result{}, err
	}

	platform, err := m.resolver.ResolvePlatform(ctx, address)
	if err != nil {
		return capability.Result{}, fmt.Errorf("resolving platform for %s: %w", address, err)
	}

	exec := m.router.Executor(platform)
	res, err := exec.Execute(ctx, channel{m: m, address: address}, capability.Request{
		Address: address,
		Command: command,
		Args:    args,
	})

	detail := fmt.Sprintf("%s/%s", platform, command)
	if err != nil {
		detail += ": " + err.Error()
	}
	m.record(ctx, address, e.state.Transport, EventCommand, detail)

	if err != nil {
		m.logger.Warn("command failed", "address", address, "platform", string(platform), "command", command, "error", err)
		return capability.Result{}, err
	}
	m.logger.Info("command executed", "address", address, "platform", string(platform), "command", command)
	return res, nil
}
