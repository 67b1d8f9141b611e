package control

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/bluescout-core/internal/capability"
	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/discovery"
)

// Action names, taken from the last command topic segment.
const (
	ActionConnect        = "connect"
	ActionDisconnect     = "disconnect"
	ActionSend           = "send"
	ActionRecv           = "recv"
	ActionExecute        = "execute"
	ActionRelayStart     = "relay_start"
	ActionRelayStop      = "relay_stop"
	ActionCaptureStart   = "capture_start"
	ActionCaptureDrain   = "capture_drain"
	ActionCaptureStop    = "capture_stop"
	ActionDiscoveryStart = "discovery_start"
	ActionDiscoveryStop  = "discovery_stop"
	ActionScan           = "scan"
	ActionRescan         = "rescan"
	ActionDevices        = "devices"
	ActionDevice         = "device"
	ActionConnections    = "connections"
	ActionAnnotate       = "annotate"
	ActionExploit        = "exploit"
	ActionJournal        = "journal"
	ActionStatus         = "status"
)

// Request is published by the front end to bluescout/command/{action}.
// Which fields apply depends on the action.
type Request struct {
	// RequestID correlates the response. One is generated when empty.
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	Address        string           `json:"address,omitempty"`
	Transport      device.Transport `json:"transport,omitempty"`
	Port           int              `json:"port,omitempty"`
	Characteristic string           `json:"characteristic,omitempty"`

	// Payload is base64 in JSON.
	Payload []byte `json:"payload,omitempty"`

	// Peer is the second side of relay_start.
	Peer    *Peer  `json:"peer,omitempty"`
	RelayID string `json:"relay_id,omitempty"`

	Command string         `json:"command,omitempty"`
	Args    map[string]any `json:"args,omitempty"`

	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
	Exploit  string `json:"exploit,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Capacity        int     `json:"capacity,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

// Peer names the other end of a relay.
type Peer struct {
	Address        string           `json:"address"`
	Transport      device.Transport `json:"transport,omitempty"`
	Port           int              `json:"port,omitempty"`
	Characteristic string           `json:"characteristic,omitempty"`
}

func (r Request) params() connection.Params {
	return connection.Params{Port: r.Port, Characteristic: r.Characteristic}
}

func (r Request) duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}

// Response is published to bluescout/response/{request_id}.
type Response struct {
	RequestID string         `json:"request_id"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for failed requests.
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUnknownAction        = "UNKNOWN_ACTION"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	ErrCodeConnectFailed        = "CONNECT_FAILED"
	ErrCodeNotConnected         = "NOT_CONNECTED"
	ErrCodeAlreadyInProgress    = "ALREADY_IN_PROGRESS"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeNotConfigured        = "NOT_CONFIGURED"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeInternal             = "INTERNAL"
)

// errorCode maps err onto the wire error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, ErrUnknownAction):
		return ErrCodeUnknownAction
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, connection.ErrInvalidTarget),
		errors.Is(err, capability.ErrUnknownPlatform):
		return ErrCodeInvalidRequest
	case errors.Is(err, connection.ErrTransportUnavailable),
		errors.Is(err, discovery.ErrNoScanners):
		return ErrCodeTransportUnavailable
	case errors.Is(err, connection.ErrConnectFailed):
		return ErrCodeConnectFailed
	case errors.Is(err, connection.ErrNotConnected):
		return ErrCodeNotConnected
	case errors.Is(err, connection.ErrAlreadyInProgress),
		errors.Is(err, discovery.ErrAlreadyRunning):
		return ErrCodeAlreadyInProgress
	case errors.Is(err, ErrNotFound), errors.Is(err, device.ErrDeviceNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrNotConfigured):
		return ErrCodeNotConfigured
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// NewResponse creates a successful response.
func NewResponse(req Request, action string, data any) Response {
	return Response{
		RequestID: req.RequestID,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      data,
	}
}

// NewErrorResponse creates a failed response with the code for err.
func NewErrorResponse(req Request, action string, err error) Response {
	return Response{
		RequestID: req.RequestID,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Error:     &ResponseError{Code: errorCode(err), Message: err.Error()},
	}
}

// ConnectionEvent is published to bluescout/connection/{address}.
type ConnectionEvent struct {
	Address   string           `json:"address"`
	Transport device.Transport `json:"transport"`
	Event     connection.Event `json:"event"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// CaptureData is returned by capture_drain and capture_stop.
type CaptureData struct {
	Address string             `json:"address"`
	Frames  []connection.Frame `json:"frames"`
	Dropped int                `json:"dropped"`
	Running bool               `json:"running"`
	Error   string             `json:"error,omitempty"`
}

// ExploitInfo is returned by the exploit action.
type ExploitInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"type"`
	Requires    []string `json:"requires"`

	// Compatible is set only when the request named an address. It is
	// informational and not a gate.
	Compatible *bool `json:"compatible,omitempty"`
}

// Status is returned by the status action.
type Status struct {
	Devices     int                   `json:"devices"`
	Connections int                   `json:"connections"`
	Relays      int                   `json:"relays"`
	Captures    int                   `json:"captures"`
	Scanning    bool                  `json:"scanning"`
	LastPass    *discovery.PassResult `json:"last_pass,omitempty"`
}
