package capability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// mockChannel records writes and replays a fixed reply.
type mockChannel struct {
	sent    [][]byte
	reply   []byte
	sendErr error
	recvErr error
}

func (m *mockChannel) Send(_ context.Context, payload []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, payload)
	return nil
}

func (m *mockChannel) Recv(context.Context) ([]byte, error) {
	return m.reply, m.recvErr
}

func TestEnvelopeExecutor(t *testing.T) {
	ch := &mockChannel{reply: []byte(`{"status":"ok"}`)}
	exec := EnvelopeExecutor{Platform: PlatformAndroid}

	res, err := exec.Execute(context.Background(), ch, Request{
		Address: "AA:BB",
		Command: "open_app",
		Args:    map[string]any{"name": "camera"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Platform != PlatformAndroid || res.Command != "open_app" {
		t.Errorf("Execute() = %+v", res)
	}
	if string(res.Reply) != `{"status":"ok"}` {
		t.Errorf("Reply = %s", res.Reply)
	}

	if len(ch.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(ch.sent))
	}
	var env map[string]any
	if err := json.Unmarshal(ch.sent[0], &env); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if env["cmd"] != "open_app" || env["platform"] != "android" {
		t.Errorf("frame = %v", env)
	}
	if args, ok := env["args"].(map[string]any); !ok || args["name"] != "camera" {
		t.Errorf("frame args = %v", env["args"])
	}
}

func TestEnvelopeExecutor_Errors(t *testing.T) {
	boom := errors.New("link down")

	tests := []struct {
		name    string
		ch      *mockChannel
		cmd     string
		wantErr error
	}{
		{"empty command", &mockChannel{}, "  ", ErrEmptyCommand},
		{"send fails", &mockChannel{sendErr: boom}, "shell", boom},
		{"recv fails", &mockChannel{recvErr: boom}, "shell", boom},
		{"empty reply", &mockChannel{reply: nil}, "shell", ErrNoReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EnvelopeExecutor{Platform: PlatformLinux}.Execute(context.Background(), tt.ch, Request{Command: tt.cmd})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvelopeExecutor_TextReply(t *testing.T) {
	ch := &mockChannel{reply: []byte("OK\r\n")}
	res, err := EnvelopeExecutor{Platform: PlatformGeneric}.Execute(context.Background(), ch, Request{Command: "AT"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var s string
	if err := json.Unmarshal(res.Reply, &s); err != nil || s != "OK\r\n" {
		t.Errorf("Reply = %s, want quoted text", res.Reply)
	}
}

type recordingExecutor struct{ called bool }

func (r *recordingExecutor) Execute(context.Context, Channel, Request) (Result, error) {
	r.called = true
	return Result{}, nil
}

func TestRouter(t *testing.T) {
	r := NewRouter()

	for _, p := range AllPlatforms {
		exec, ok := r.Executor(p).(EnvelopeExecutor)
		if !ok || exec.Platform != p {
			t.Errorf("Executor(%s) = %#v", p, r.Executor(p))
		}
	}
	if exec, ok := r.Executor("symbian").(EnvelopeExecutor); !ok || exec.Platform != PlatformGeneric {
		t.Errorf("Executor(unknown) = %#v, want generic", r.Executor("symbian"))
	}

	custom := &recordingExecutor{}
	r.Register(PlatformIOS, custom)
	_, _ = r.Executor(PlatformIOS).Execute(context.Background(), &mockChannel{}, Request{})
	if !custom.called {
		t.Error("registered executor not used")
	}
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"Android", PlatformAndroid, false},
		{" iOS ", PlatformIOS, false},
		{"windows", PlatformWindows, false},
		{"generic", PlatformGeneric, false},
		{"symbian", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlatform(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePlatform(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrUnknownPlatform) {
			t.Errorf("ParsePlatform(%q) error = %v, want ErrUnknownPlatform", tt.in, err)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver()
	r.Set("aa:bb:cc:dd:ee:ff", PlatformIOS)

	got, err := r.ResolvePlatform(context.Background(), "AA:BB:CC:DD:EE:FF")
	if err != nil || got != PlatformIOS {
		t.Errorf("ResolvePlatform() = %q, %v; want ios", got, err)
	}
	got, _ = r.ResolvePlatform(context.Background(), "11:22:33:44:55:66")
	if got != PlatformGeneric {
		t.Errorf("ResolvePlatform(unknown) = %q, want generic", got)
	}
}
