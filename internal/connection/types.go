package connection

import (
	"slices"
	"time"

	"github.com/nerrad567/bluescout-core/internal/device"
)

// Phase is the lifecycle position of one address.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Params are per-connect transport settings. Zero values select the
// manager defaults.
type Params struct {
	// Port is the RFCOMM channel for classic connects.
	Port int

	// Characteristic is the GATT characteristic used for session I/O.
	Characteristic string
}

// Target names one end of a relay.
type Target struct {
	Address   string
	Transport device.Transport
	Params    Params
}

// State is a point-in-time view of one connection.
type State struct {
	ID            string           `json:"id"`
	Address       string           `json:"address"`
	Transport     device.Transport `json:"transport"`
	Phase         Phase            `json:"-"`
	PhaseName     string           `json:"phase"`
	EstablishedAt time.Time        `json:"established_at"`
	LastActivity  time.Time        `json:"last_activity"`
	Signatures    []string         `json:"signatures"`
	Services      []string         `json:"services,omitempty"`
}

func (s State) clone() State {
	s.PhaseName = s.Phase.String()
	s.Signatures = slices.Clone(s.Signatures)
	s.Services = slices.Clone(s.Services)
	return s
}
