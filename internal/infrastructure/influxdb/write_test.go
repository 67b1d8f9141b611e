package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func fieldValue(p *write.Point, key string) any {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func TestSignalPoint(t *testing.T) {
	at := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	p := signalPoint("AA:BB:CC:11:22:33", -61, at)

	if p.Name() != "device_signal" {
		t.Errorf("Name() = %q", p.Name())
	}
	if got := tagValue(p, "address"); got != "AA:BB:CC:11:22:33" {
		t.Errorf("address tag = %q", got)
	}
	if got := fieldValue(p, "rssi"); got != int64(-61) {
		t.Errorf("rssi field = %v (%T), want -61", got, got)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestScanPassPoint(t *testing.T) {
	p := scanPassPoint("classic", 7, 2, 1, 1500*time.Millisecond, time.Now())

	if got := tagValue(p, "transport"); got != "classic" {
		t.Errorf("transport tag = %q", got)
	}
	tests := map[string]int64{"seen": 7, "discovered": 2, "failures": 1, "elapsed_ms": 1500}
	for key, want := range tests {
		if got := fieldValue(p, key); got != want {
			t.Errorf("field %s = %v, want %d", key, got, want)
		}
	}
}

func TestConnectionPoint(t *testing.T) {
	p := connectionPoint("AA:BB:CC:11:22:33", "advertisement", "connect_failed", time.Now())

	if got := tagValue(p, "event"); got != "connect_failed" {
		t.Errorf("event tag = %q", got)
	}
	if got := fieldValue(p, "count"); got != int64(1) {
		t.Errorf("count field = %v", got)
	}
}

func TestWrites_Disconnected(t *testing.T) {
	c := &Client{}
	// A client that never connected drops writes without touching the API.
	c.WriteSignal("AA:BB:CC:11:22:33", -61, time.Now())
	c.WriteScanPass("classic", 1, 1, 0, time.Second)
	c.WriteConnectionEvent("AA:BB:CC:11:22:33", "classic", "connected")
	c.WritePoint("x", nil, map[string]interface{}{"v": 1})
}
