package signature

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func loadTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Load(filepath.Join("testdata", "vulnerabilities.json"), filepath.Join("testdata", "exploits.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return db
}

func uint32Ptr(v uint32) *uint32 { return &v }

func TestMatchClassic(t *testing.T) {
	c := NewCorrelator(loadTestDB(t))

	tests := []struct {
		name    string
		address string
		class   *uint32
		want    []string
	}{
		{"address prefix", "AA:BB:CC:11:22:33", nil, []string{"CVE-X"}},
		{"lowercase address", "aa:bb:cc:11:22:33", nil, []string{"CVE-X"}},
		{"multiple tags", "00:1A:7D:DA:71:13", nil, []string{"CVE-2017-0781", "CVE-2017-0785"}},
		{"class match", "01:02:03:04:05:06", uint32Ptr(0x5a020c), []string{"PHONE-SMART"}},
		{"class substring", "01:02:03:04:05:06", uint32Ptr(0x240404), []string{"AUDIO-HEADSET"}},
		{"address and class", "AA:BB:CC:00:00:01", uint32Ptr(0x5a020c), []string{"CVE-X", "PHONE-SMART"}},
		{"no match", "01:02:03:04:05:06", nil, []string{}},
		{"advertisement pool ignored", "C0:FF:EE:00:00:01", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.MatchClassic(tt.address, tt.class)
			if !slices.Equal(got, tt.want) {
				t.Errorf("MatchClassic(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestMatchAdvertisement(t *testing.T) {
	c := NewCorrelator(loadTestDB(t))

	tests := []struct {
		name     string
		address  string
		mfr      map[uint16][]byte
		services []string
		want     []string
	}{
		{"address", "C0:FF:EE:12:34:56", nil, nil, []string{"SWEYNTOOTH"}},
		{"manufacturer id", "01:02:03:04:05:06", map[uint16][]byte{0x004c: {0x02, 0x15}}, nil, []string{"VENDOR-APPLE-CONTINUITY"}},
		{"two manufacturers", "01:02:03:04:05:06", map[uint16][]byte{0x004c: nil, 0x0075: nil}, nil,
			[]string{"VENDOR-APPLE-CONTINUITY", "VENDOR-SAMSUNG"}},
		{"service uuid case-insensitive", "01:02:03:04:05:06", nil,
			[]string{"0000ffe0-0000-1000-8000-00805f9b34fb"}, []string{"SERIAL-BRIDGE"}},
		{"deduplicated", "01:02:03:04:05:06", nil,
			[]string{"0000180d-0000-1000-8000-00805f9b34fb", "0000180D-0000-1000-8000-00805F9B34FB"},
			[]string{"CVE-X", "HEART-RATE-UNAUTH"}},
		{"classic pool ignored", "AA:BB:CC:11:22:33", nil, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.MatchAdvertisement(tt.address, tt.mfr, tt.services)
			if !slices.Equal(got, tt.want) {
				t.Errorf("MatchAdvertisement() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchPlatform(t *testing.T) {
	c := NewCorrelator(loadTestDB(t))

	tests := []struct {
		platform, version string
		want              []string
	}{
		{"android", "8.0.1", []string{"ANDROID-8", "BLUEBORNE"}},
		{"ANDROID", "8.1", []string{"ANDROID-8"}},
		{"iOS", "13.3.1", []string{"IOS-13.3"}},
		{"windows", "10", []string{}},
		{"android", "12", []string{}},
	}

	for _, tt := range tests {
		got := c.MatchPlatform(tt.platform, tt.version)
		if !slices.Equal(got, tt.want) {
			t.Errorf("MatchPlatform(%q, %q) = %v, want %v", tt.platform, tt.version, got, tt.want)
		}
	}
}

func TestMatchExploitCompat(t *testing.T) {
	c := NewCorrelator(loadTestDB(t))

	tests := []struct {
		name    string
		address string
		exploit string
		want    []string
	}{
		{"device override short-circuits", "11:22:33:44:55:66", "knob", []string{"knob"}},
		{"override is per device", "AA:BB:CC:44:55:66", "knob", []string{}},
		{"requirements are not evaluated", "AA:BB:CC:44:55:66", "blueborne", []string{"blueborne"}},
		{"no requirements", "AA:BB:CC:44:55:66", "sweyntooth", []string{"sweyntooth"}},
		{"unknown exploit", "AA:BB:CC:44:55:66", "nonexistent", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.MatchExploitCompat(tt.address, tt.exploit)
			if !slices.Equal(got, tt.want) {
				t.Errorf("MatchExploitCompat(%q, %q) = %v, want %v", tt.address, tt.exploit, got, tt.want)
			}
		})
	}
}

func TestMatchExploitCompat_OverrideCaseInsensitive(t *testing.T) {
	db := New(nil, nil, []Override{{Pattern: "Ab:Cd:eF", Exploits: []string{"knob"}}})
	c := NewCorrelator(db)

	for _, addr := range []string{"AB:CD:EF:01:02:03", "ab:cd:ef:01:02:03"} {
		if got := c.MatchExploitCompat(addr, "knob"); !slices.Equal(got, []string{"knob"}) {
			t.Errorf("MatchExploitCompat(%q, knob) = %v, want [knob]", addr, got)
		}
	}
	// knob is not catalogued, so only the override can make it compatible.
	if got := c.MatchExploitCompat("01:02:03:04:05:06", "knob"); len(got) != 0 {
		t.Errorf("MatchExploitCompat(other, knob) = %v, want empty", got)
	}
}

func TestCorrelator_Deterministic(t *testing.T) {
	c := NewCorrelator(loadTestDB(t))
	mfr := map[uint16][]byte{0x004c: nil, 0x0075: nil, 0x1234: nil}
	services := []string{"0000180d-0000-1000-8000-00805f9b34fb", "0000ffe0-0000-1000-8000-00805f9b34fb"}

	first := c.MatchAdvertisement("C0:FF:EE:00:00:01", mfr, services)
	classic := c.MatchClassic("AA:BB:CC:00:00:01", uint32Ptr(0x5a020c))

	for range 20 {
		// Interleave calls to show results do not depend on call order.
		if got := c.MatchClassic("AA:BB:CC:00:00:01", uint32Ptr(0x5a020c)); !slices.Equal(got, classic) {
			t.Fatalf("MatchClassic changed: %v vs %v", got, classic)
		}
		if got := c.MatchAdvertisement("C0:FF:EE:00:00:01", mfr, services); !slices.Equal(got, first) {
			t.Fatalf("MatchAdvertisement changed: %v vs %v", got, first)
		}
	}
}

func TestExploit(t *testing.T) {
	db := loadTestDB(t)

	e, ok := db.Exploit("blueborne")
	if !ok {
		t.Fatal("Exploit(blueborne) not found")
	}
	if e.Name != "blueborne" || e.Category != "classic" || len(e.Requires) != 2 {
		t.Errorf("Exploit(blueborne) = %+v", e)
	}

	e.Requires[0] = "mutated"
	again, _ := db.Exploit("blueborne")
	if again.Requires[0] != "android_8" {
		t.Error("Exploit() returned shared Requires slice")
	}

	if _, ok := db.Exploit("missing"); ok {
		t.Error("Exploit(missing) found")
	}
	if db.ExploitCount() != 2 {
		t.Errorf("ExploitCount() = %d, want 2", db.ExploitCount())
	}
}

func TestLoad_Degrades(t *testing.T) {
	tests := []struct {
		name        string
		vulnPath    string
		exploitPath string
		wantSchema  bool
		wantEntries bool
		wantExpl    bool
	}{
		{"missing vulnerabilities", "testdata/absent.json", "testdata/exploits.json", false, false, true},
		{"schema violation", "testdata/malformed.json", "testdata/exploits.json", true, false, true},
		{"truncated JSON", "testdata/truncated.json", "testdata/exploits.json", false, false, true},
		{"missing exploits", "testdata/vulnerabilities.json", "testdata/absent.json", false, true, false},
		{"both missing", "testdata/absent.json", "testdata/absent.json", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Load(tt.vulnPath, tt.exploitPath)
			if !errors.Is(err, ErrDatabaseUnavailable) {
				t.Fatalf("Load() error = %v, want ErrDatabaseUnavailable", err)
			}
			if tt.wantSchema && !errors.Is(err, ErrSchemaViolation) {
				t.Errorf("Load() error = %v, want ErrSchemaViolation", err)
			}
			if db == nil {
				t.Fatal("Load() returned nil database")
			}
			if (db.Len() > 0) != tt.wantEntries {
				t.Errorf("Len() = %d, wantEntries %v", db.Len(), tt.wantEntries)
			}
			if (db.ExploitCount() > 0) != tt.wantExpl {
				t.Errorf("ExploitCount() = %d, wantExpl %v", db.ExploitCount(), tt.wantExpl)
			}

			// A degraded database still answers, with empty sets.
			c := NewCorrelator(db)
			if !tt.wantEntries {
				if got := c.MatchClassic("AA:BB:CC:11:22:33", nil); len(got) != 0 {
					t.Errorf("MatchClassic() on empty db = %v", got)
				}
			}
		})
	}
}

func TestNewCorrelator_NilDatabase(t *testing.T) {
	c := NewCorrelator(nil)
	if got := c.MatchClassic("AA:BB:CC:11:22:33", nil); len(got) != 0 {
		t.Errorf("MatchClassic() = %v, want empty", got)
	}
	if got := c.MatchPlatform("android", "8.0"); len(got) != 0 {
		t.Errorf("MatchPlatform() = %v, want empty", got)
	}
	if got := c.MatchExploitCompat("AA", "blueborne"); len(got) != 0 {
		t.Errorf("MatchExploitCompat() = %v, want empty", got)
	}
}

func TestNormalizeAndUnion(t *testing.T) {
	if got := NormalizeTags([]string{"b", "a", " ", "b", "a "}); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("NormalizeTags() = %v, want [a b]", got)
	}
	if got := Union([]string{"x"}, nil, []string{"y", "x"}); !slices.Equal(got, []string{"x", "y"}) {
		t.Errorf("Union() = %v, want [x y]", got)
	}
}

func TestFormat(t *testing.T) {
	if got := FormatClass(0x5a020c); got != "5a020c" {
		t.Errorf("FormatClass() = %q", got)
	}
	if got := FormatClass(0x0404); got != "000404" {
		t.Errorf("FormatClass() = %q", got)
	}
	if got := FormatManufacturerID(0x4c); got != "004c" {
		t.Errorf("FormatManufacturerID() = %q", got)
	}
}
