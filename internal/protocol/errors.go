package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrWorldBusy       = "E_WORLD_BUSY"

	// Command application.
	ErrBadCommand    = "E_BAD_COMMAND"
	ErrUnknownObject = "E_UNKNOWN_OBJECT"
	ErrNotContainer  = "E_NOT_CONTAINER"
	ErrNotContained  = "E_NOT_CONTAINED"
	ErrNoWeapon      = "E_NO_WEAPON"
	ErrImmobile      = "E_IMMOBILE"

	// Admission refusals.
	ErrKindOf           = "E_KIND_OF"
	ErrRelationship     = "E_RELATIONSHIP"
	ErrFull             = "E_FULL"
	ErrAlreadyContained = "E_ALREADY_CONTAINED"
	ErrNotGarrisonable  = "E_NOT_GARRISONABLE"
	ErrContainerDead    = "E_CONTAINER_DEAD"
	ErrPortableOccupied = "E_PORTABLE_OCCUPIED"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrWorldBusy:        {},
	ErrBadCommand:       {},
	ErrUnknownObject:    {},
	ErrNotContainer:     {},
	ErrNotContained:     {},
	ErrNoWeapon:         {},
	ErrImmobile:         {},
	ErrKindOf:           {},
	ErrRelationship:     {},
	ErrFull:             {},
	ErrAlreadyContained: {},
	ErrNotGarrisonable:  {},
	ErrContainerDead:    {},
	ErrPortableOccupied: {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
