package config

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"dupfinder/database"
	"dupfinder/types"
)

type memKV map[string]string

func (m memKV) Set(_ context.Context, k, v string) error { m[k] = v; return nil }

func (m memKV) All(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func TestDefaults(t *testing.T) {
	s, err := Load(context.Background(), nil, "/data/dupfinder.db", nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Threshold != 0.9 || s.Mode != types.ModeSimilar || s.AutoDeleteDays != 30 {
		t.Errorf("defaults = %+v", s)
	}
	if s.TrashDir != filepath.Join("/data", ".trash") {
		t.Errorf("TrashDir = %s", s.TrashDir)
	}
}

func TestPrecedence(t *testing.T) {
	t.Setenv("DUPFINDER_THRESHOLD", "0.7")
	t.Setenv("DUPFINDER_AUTO_DELETE_DAYS", "10")
	t.Setenv("DUPFINDER_EXCLUDE", "cache, tmp")

	kv := memKV{KeyAutoDeleteDays: "14", KeyScanMode: "exact"}
	args := map[string]string{"threshold": "0.95"}

	s, err := Load(context.Background(), kv, "x.db", args)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"cli beats env", s.Threshold, 0.95},
		{"persisted beats env", s.AutoDeleteDays, 14},
		{"persisted beats default", s.Mode, types.ModeExact},
		{"env beats default", s.Excluded, []string{"cache", "tmp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]string
		wantT    float64
		wantDays int
	}{
		{"threshold above one", map[string]string{"threshold": "1.5"}, 1, 30},
		{"threshold below zero", map[string]string{"threshold": "-0.2"}, 0, 30},
		{"zero days", map[string]string{"auto-delete-days": "0"}, 0.9, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(context.Background(), nil, "x.db", tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if s.Threshold != tt.wantT || s.AutoDeleteDays != tt.wantDays {
				t.Errorf("got threshold %v days %d", s.Threshold, s.AutoDeleteDays)
			}
		})
	}
}

func TestBadValues(t *testing.T) {
	if _, err := Load(context.Background(), nil, "x.db", map[string]string{"threshold": "high"}); err == nil {
		t.Error("malformed flag should fail")
	}

	// A malformed stored value is skipped
	s, err := Load(context.Background(), memKV{KeyThreshold: "abc"}, "x.db", nil)
	if err != nil || s.Threshold != DefaultThreshold {
		t.Errorf("got %v, %v", s.Threshold, err)
	}
}

func TestDatabasePath(t *testing.T) {
	t.Setenv("DUPFINDER_DATABASE", "/env.db")
	if got := DatabasePath(map[string]string{"db": "/a.db"}, "/def.db"); got != "/a.db" {
		t.Errorf("got %s", got)
	}
	if got := DatabasePath(nil, "/def.db"); got != "/env.db" {
		t.Errorf("got %s", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	kv := database.NewSettingsStore(db)
	ctx := context.Background()

	s := Defaults("x.db")
	s.Threshold = 0.85
	s.Excluded = []string{"a", "b"}
	s.AutoDeleteDays = -3
	if err := Save(ctx, kv, s); err != nil {
		t.Fatal(err)
	}
	at := time.UnixMilli(1700000000000)
	if err := RecordScan(ctx, kv, at); err != nil {
		t.Fatal(err)
	}

	got, err := Load(ctx, kv, "x.db", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Threshold != 0.85 || !reflect.DeepEqual(got.Excluded, []string{"a", "b"}) || got.AutoDeleteDays != 1 {
		t.Errorf("loaded %+v", got)
	}
	if !got.LastScan.Equal(at) {
		t.Errorf("LastScan = %v", got.LastScan)
	}
}
