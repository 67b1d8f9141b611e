//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/bluescout-core/internal/connection"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultReadSize     = 1024
)

// RFCOMM dials classic stream sockets through the kernel Bluetooth stack.
type RFCOMM struct {
	pollInterval time.Duration
	readSize     int
}

// NewRFCOMM creates an RFCOMM dialer.
func NewRFCOMM() *RFCOMM {
	return &RFCOMM{pollInterval: defaultPollInterval, readSize: defaultReadSize}
}

// SetPollInterval sets how long one socket wait blocks before ctx and the
// closed flag are checked again. Non-positive values are ignored.
func (r *RFCOMM) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Dial connects to address on the given RFCOMM channel. The socket is
// non-blocking so ctx is honoured while the connect is pending.
func (r *RFCOMM) Dial(ctx context.Context, address string, port int) (connection.Stream, error) {
	bd, err := parseBDAddr(address)
	if err != nil {
		return nil, err
	}
	if port < 1 || port > 30 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, port)
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		if errors.Is(err, unix.EAFNOSUPPORT) || errors.Is(err, unix.EPROTONOSUPPORT) {
			return nil, unavailable("rfcomm socket", err)
		}
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}

	s := &rfcommStream{fd: fd, pollInterval: r.pollInterval, readSize: r.readSize}
	if err := s.connect(ctx, &unix.SockaddrRFCOMM{Addr: bd, Channel: uint8(port)}); err != nil {
		s.Close() //nolint:errcheck // Connect error takes precedence
		if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EADDRNOTAVAIL) {
			return nil, unavailable("rfcomm connect", err)
		}
		return nil, err
	}
	return s, nil
}

type rfcommStream struct {
	fd           int
	pollInterval time.Duration
	readSize     int

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func (s *rfcommStream) connect(ctx context.Context, sa *unix.SockaddrRFCOMM) error {
	err := unix.Connect(s.fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return fmt.Errorf("rfcomm connect: %w", err)
	}
	if err := s.wait(ctx, unix.POLLOUT); err != nil {
		return err
	}
	soErr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("rfcomm connect status: %w", err)
	}
	if soErr != 0 {
		return fmt.Errorf("rfcomm connect: %w", unix.Errno(soErr))
	}
	return nil
}

// Send writes all of data.
func (s *rfcommStream) Send(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		if s.closed.Load() {
			return ErrStreamClosed
		}
		n, err := unix.Write(s.fd, data)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			if err := s.wait(ctx, unix.POLLOUT); err != nil {
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("rfcomm write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// Recv returns the next chunk of inbound data. A peer close is io.EOF.
func (s *rfcommStream) Recv(ctx context.Context) ([]byte, error) {
	buf := make([]byte, s.readSize)
	for {
		if s.closed.Load() {
			return nil, ErrStreamClosed
		}
		n, err := unix.Read(s.fd, buf)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			if err := s.wait(ctx, unix.POLLIN); err != nil {
				return nil, err
			}
			continue
		case err != nil:
			return nil, fmt.Errorf("rfcomm read: %w", err)
		case n == 0:
			return nil, io.EOF
		}
		return buf[:n], nil
	}
}

// Close releases the socket. Safe to call more than once.
func (s *rfcommStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = unix.Close(s.fd)
	})
	return s.closeErr
}

// wait polls the socket in short slices so ctx and Close are noticed
// between them.
func (s *rfcommStream) wait(ctx context.Context, events int16) error {
	timeout := int(s.pollInterval / time.Millisecond)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed.Load() {
			return ErrStreamClosed
		}
		fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
		n, err := unix.Poll(fds, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rfcomm poll: %w", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return ErrStreamClosed
		}
		// POLLERR and POLLHUP fall through so the next syscall reports the cause.
		return nil
	}
}

var _ connection.ClassicTransport = (*RFCOMM)(nil)
