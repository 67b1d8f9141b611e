package connection

import "context"

// ClassicTransport opens connection-oriented sockets.
type ClassicTransport interface {
	Dial(ctx context.Context, address string, port int) (Stream, error)
}

// Stream is an open classic socket.
type Stream interface {
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// SessionTransport opens advertisement-transport sessions.
type SessionTransport interface {
	Connect(ctx context.Context, address string) (Session, error)
}

// Session is an open advertisement-transport session.
type Session interface {
	Services(ctx context.Context) ([]string, error)
	WriteCharacteristic(ctx context.Context, uuid string, data []byte) error
	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)
	Disconnect() error
}

// link is the uniform handle the manager holds for either transport.
type link interface {
	send(ctx context.Context, data []byte) error
	recv(ctx context.Context) ([]byte, error)
	close() error
}

type streamLink struct {
	stream Stream
}

func (l streamLink) send(ctx context.Context, data []byte) error { return l.stream.Send(ctx, data) }
func (l streamLink) recv(ctx context.Context) ([]byte, error)    { return l.stream.Recv(ctx) }
func (l streamLink) close() error                                { return l.stream.Close() }

type sessionLink struct {
	session        Session
	characteristic string
}

func (l sessionLink) send(ctx context.Context, data []byte) error {
	return l.session.WriteCharacteristic(ctx, l.characteristic, data)
}

func (l sessionLink) recv(ctx context.Context) ([]byte, error) {
	return l.session.ReadCharacteristic(ctx, l.characteristic)
}

func (l sessionLink) close() error { return l.session.Disconnect() }
