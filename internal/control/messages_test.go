package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/bluescout-core/internal/capability"
	"github.com/nerrad567/bluescout-core/internal/connection"
	"github.com/nerrad567/bluescout-core/internal/device"
	"github.com/nerrad567/bluescout-core/internal/discovery"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrRateLimited, ErrCodeRateLimited},
		{fmt.Errorf("%w: teleport", ErrUnknownAction), ErrCodeUnknownAction},
		{fmt.Errorf("%w: address is required", ErrInvalidRequest), ErrCodeInvalidRequest},
		{fmt.Errorf("%w: empty", connection.ErrInvalidTarget), ErrCodeInvalidRequest},
		{fmt.Errorf("%w: amiga", capability.ErrUnknownPlatform), ErrCodeInvalidRequest},
		{fmt.Errorf("%w: hci0", connection.ErrTransportUnavailable), ErrCodeTransportUnavailable},
		{discovery.ErrNoScanners, ErrCodeTransportUnavailable},
		{fmt.Errorf("%w: refused", connection.ErrConnectFailed), ErrCodeConnectFailed},
		{connection.ErrNotConnected, ErrCodeNotConnected},
		{connection.ErrAlreadyInProgress, ErrCodeAlreadyInProgress},
		{discovery.ErrAlreadyRunning, ErrCodeAlreadyInProgress},
		{device.ErrDeviceNotFound, ErrCodeNotFound},
		{ErrNotFound, ErrCodeNotFound},
		{ErrNotConfigured, ErrCodeNotConfigured},
		{fmt.Errorf("sending: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{errors.New("disk on fire"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.want {
				t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	req := Request{RequestID: "req-1"}
	resp := NewErrorResponse(req, ActionSend, connection.ErrNotConnected)

	if resp.Success || resp.RequestID != "req-1" || resp.Action != ActionSend {
		t.Errorf("NewErrorResponse() = %+v", resp)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeNotConnected || resp.Error.Message == "" {
		t.Errorf("Error = %+v", resp.Error)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if _, ok := raw["data"]; ok {
		t.Error("error response carries data")
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse(Request{RequestID: "req-2"}, ActionStatus, Status{Devices: 3})
	if !resp.Success || resp.Error != nil {
		t.Errorf("NewResponse() = %+v", resp)
	}
	if resp.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp location = %v, want UTC", resp.Timestamp.Location())
	}
}

func TestRequestDecoding(t *testing.T) {
	payload := `{
		"request_id": "r-9",
		"address": "aa:bb:cc:dd:ee:ff",
		"transport": "classic",
		"port": 4,
		"payload": "aGVsbG8=",
		"peer": {"address": "11:22:33:44:55:66", "transport": "advertisement"},
		"duration_seconds": 2.5
	}`

	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if string(req.Payload) != "hello" {
		t.Errorf("Payload = %q, want hello", req.Payload)
	}
	if req.params().Port != 4 {
		t.Errorf("params().Port = %d, want 4", req.params().Port)
	}
	if req.duration() != 2500*time.Millisecond {
		t.Errorf("duration() = %v, want 2.5s", req.duration())
	}
	if req.Peer == nil || req.Peer.Transport != device.TransportAdvertisement {
		t.Errorf("Peer = %+v", req.Peer)
	}
}
