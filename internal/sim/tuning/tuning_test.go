package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 15\nstrict_invariants: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 15 || !tu.StrictInvariants {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.SnapshotEveryTicks != 3000 || tu.CommandQueue != 1024 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_RejectsBadTickRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for zero tick rate")
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 30 {
		t.Fatalf("tick_rate_hz=%d", tu.TickRateHz)
	}
}
