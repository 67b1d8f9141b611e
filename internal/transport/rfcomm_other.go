//go:build !linux

package transport

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/bluescout-core/internal/connection"
)

// RFCOMM is unavailable on this platform.
type RFCOMM struct{}

// NewRFCOMM creates an RFCOMM dialer.
func NewRFCOMM() *RFCOMM { return &RFCOMM{} }

// SetPollInterval is a no-op on this platform.
func (r *RFCOMM) SetPollInterval(time.Duration) {}

// Dial always fails with connection.ErrTransportUnavailable.
func (r *RFCOMM) Dial(context.Context, string, int) (connection.Stream, error) {
	return nil, unavailable("rfcomm", errors.New("requires linux"))
}

var _ connection.ClassicTransport = (*RFCOMM)(nil)
