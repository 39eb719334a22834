package contain

import (
	"errors"
	"fmt"

	"rtsgarrison.dev/internal/sim/ids"
)

// RejectError is an admission refusal. Nothing was mutated.
type RejectError struct {
	Code string
	Msg  string
}

func (e *RejectError) Error() string { return e.Msg }

var (
	ErrKindOf           = &RejectError{Code: "E_KIND_OF", Msg: "occupant kind not allowed"}
	ErrRelationship     = &RejectError{Code: "E_RELATIONSHIP", Msg: "relationship forbids entry"}
	ErrFull             = &RejectError{Code: "E_FULL", Msg: "container is full"}
	ErrAlreadyContained = &RejectError{Code: "E_ALREADY_CONTAINED", Msg: "occupant is already contained"}
	ErrNotGarrisonable  = &RejectError{Code: "E_NOT_GARRISONABLE", Msg: "occupant cannot garrison"}
	ErrContainerDead    = &RejectError{Code: "E_CONTAINER_DEAD", Msg: "container is destroyed"}
	ErrPortableOccupied = &RejectError{Code: "E_PORTABLE_OCCUPIED", Msg: "portable structure already carried"}
)

var (
	ErrNotContained = errors.New("occupant is not in this container")
	ErrInvalidData  = errors.New("invalid containment data")
)

// Code returns the stable reject code carried by err, or "" for other errors.
func Code(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// InvariantError is a programmer error detected at runtime.
type InvariantError struct {
	Container ids.ObjectID
	Occupant  ids.ObjectID
	What      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("containment invariant: %s (container=%s occupant=%s)", e.What, e.Container, e.Occupant)
}

func (s *Services) violate(container, occupant ids.ObjectID, what string) error {
	err := &InvariantError{Container: container, Occupant: occupant, What: what}
	s.Log.Error().
		Uint32("container", uint32(container)).
		Uint32("occupant", uint32(occupant)).
		Str("violation", what).
		Msg("containment invariant violated")
	if s.Strict {
		panic(err)
	}
	return err
}

func invalidData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, fmt.Sprintf(format, args...))
}
