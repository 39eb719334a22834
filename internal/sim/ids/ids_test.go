package ids

import "testing"

func TestObjectIDRoundTrip(t *testing.T) {
	id := ObjectID(42)
	got, ok := ParseObjectID(id.String())
	if !ok || got != id {
		t.Fatalf("ParseObjectID(%q)=%v,%v", id.String(), got, ok)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, s := range []string{"", "O", "O0", "X1", "O-1", "Oabc"} {
		if _, ok := ParseObjectID(s); ok {
			t.Fatalf("expected parse failure for %q", s)
		}
	}
	if _, ok := ParsePlayerID("P16"); ok {
		t.Fatalf("expected out-of-range player to fail")
	}
	if _, ok := ParseDrawableID("D0"); ok {
		t.Fatalf("expected zero drawable to fail")
	}
}

func TestPlayerMask(t *testing.T) {
	m := PlayerID(3).Mask() | PlayerID(0).Mask()
	if !m.Has(3) || !m.Has(0) || m.Has(1) {
		t.Fatalf("mask=%b", m)
	}
	if NoPlayer.Mask() != 0 || m.Has(NoPlayer) {
		t.Fatalf("NoPlayer must not be in any mask")
	}
}
