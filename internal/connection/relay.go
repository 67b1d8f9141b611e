package connection

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/bluescout-core/internal/timing"
)

// Relay connects a and b and forwards inbound data between them until ctx
// is cancelled or either side fails.
//
// Both connections are torn down before Relay returns, whatever the cause.
// A failure on one side cancels forwarding on the other. The returned error
// is the first failure, or ctx.Err() on cancellation.
//
// Parameters:
//   - ctx: Ends the relay when cancelled
//   - a, b: The two endpoints, connected in that order
//
// Returns:
//   - error: The first connect or forwarding failure, or ctx.Err()
//
// Thread Safety:
//   - Each direction runs in its own goroutine under an errgroup.
//   - Relay blocks until both goroutines have exited.
func (m *Manager) Relay(ctx context.Context, a, b Target) error {
	stA, err := m.Connect(ctx, a.Address, a.Transport, a.Params)
	if err != nil {
		return fmt.Errorf("relay: connecting %s: %w", a.Address, err)
	}
	stB, err := m.Connect(ctx, b.Address, b.Transport, b.Params)
	if err != nil {
		m.teardown(ctx, stA.Address)
		return fmt.Errorf("relay: connecting %s: %w", b.Address, err)
	}

	detail := stA.Address + " <-> " + stB.Address
	m.record(ctx, stA.Address, stA.Transport, EventRelayStarted, detail)
	m.logger.Info("relay started", "a", stA.Address, "b", stB.Address)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.forward(gctx, stA.Address, stB.Address) })
	g.Go(func() error { return m.forward(gctx, stB.Address, stA.Address) })
	err = g.Wait()

	m.teardown(ctx, stA.Address)
	m.teardown(ctx, stB.Address)

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	m.record(ctx, stA.Address, stA.Transport, EventRelayEnded, errString(err))
	m.logger.Info("relay ended", "a", stA.Address, "b", stB.Address, "error", err)
	return err
}

// forward copies frames from src to dst, pacing each step.
func (m *Manager) forward(ctx context.Context, src, dst string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := m.Recv(ctx, src)
		if err != nil {
			return err
		}
		if err := m.engine.Wait(ctx, timing.ScanJitter, timing.Params{}); err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		if err := m.Send(ctx, dst, data); err != nil {
			return err
		}
		m.logger.Debug("relayed", "from", src, "to", dst, "bytes", len(data))
	}
}

// teardown removes address whatever the caller's context state. A teardown
// already under way elsewhere is left to finish.
func (m *Manager) teardown(ctx context.Context, address string) {
	err := m.Disconnect(context.WithoutCancel(ctx), address)
	if err != nil && !errors.Is(err, ErrNotConnected) && !errors.Is(err, ErrAlreadyInProgress) {
		m.logger.Warn("relay teardown", "address", address, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
