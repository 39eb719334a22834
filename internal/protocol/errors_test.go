package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrWorldBusy,
		ErrBadCommand,
		ErrUnknownObject,
		ErrNotContainer,
		ErrNotContained,
		ErrNoWeapon,
		ErrImmobile,
		ErrKindOf,
		ErrRelationship,
		ErrFull,
		ErrAlreadyContained,
		ErrNotGarrisonable,
		ErrContainerDead,
		ErrPortableOccupied,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}
