package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
)

// StationSlots are fixed positions sampled once and bound first-vacancy-wins.
type StationSlots struct {
	points    []geom.Vec3
	occupants []ids.ObjectID
	loaded    bool
}

// Load is a no-op after the first call.
func (s *StationSlots) Load(points []geom.Vec3) {
	if s.loaded {
		return
	}
	if len(points) > MaxGarrisonPoints {
		points = points[:MaxGarrisonPoints]
	}
	s.points = append([]geom.Vec3(nil), points...)
	s.occupants = make([]ids.ObjectID, len(s.points))
	s.loaded = true
}

func (s *StationSlots) Loaded() bool { return s.loaded }
func (s *StationSlots) Len() int     { return len(s.points) }

func (s *StationSlots) PickVacancy(id ids.ObjectID) (int, bool) {
	for i, occ := range s.occupants {
		if occ == ids.InvalidObject {
			s.occupants[i] = id
			return i, true
		}
	}
	return -1, false
}

func (s *StationSlots) Release(id ids.ObjectID) bool {
	for i, occ := range s.occupants {
		if occ == id {
			s.occupants[i] = ids.InvalidObject
			return true
		}
	}
	return false
}

func (s *StationSlots) IndexOf(id ids.ObjectID) int {
	for i, occ := range s.occupants {
		if occ == id {
			return i
		}
	}
	return -1
}

func (s *StationSlots) PositionOf(id ids.ObjectID) (geom.Vec3, bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return geom.Vec3{}, false
	}
	return s.points[i], true
}
