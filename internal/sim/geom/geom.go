package geom

import "math"

// Vec3 is a world-space point. X/Y span the ground plane, Z is height.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

// DistSq is the squared 3D distance.
func DistSq(a, b Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

func Dist(a, b Vec3) float64 { return math.Sqrt(DistSq(a, b)) }

// Dist2D ignores height.
func Dist2D(a, b Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Heading returns the ground-plane angle from a to b.
func Heading(a, b Vec3) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// Polar returns the ground-plane point at dist along angle from center, keeping center's height.
func Polar(center Vec3, angle, dist float64) Vec3 {
	return Vec3{
		X: center.X + dist*math.Cos(angle),
		Y: center.Y + dist*math.Sin(angle),
		Z: center.Z,
	}
}

// Transform places model-space points in the world: rotate by Yaw around Z, then translate.
type Transform struct {
	Pos Vec3
	Yaw float64
}

func (t Transform) Apply(local Vec3) Vec3 {
	s, c := math.Sincos(t.Yaw)
	return Vec3{
		X: t.Pos.X + local.X*c - local.Y*s,
		Y: t.Pos.Y + local.X*s + local.Y*c,
		Z: t.Pos.Z + local.Z,
	}
}

func (t Transform) ApplyAll(local []Vec3) []Vec3 {
	out := make([]Vec3, len(local))
	for i, p := range local {
		out[i] = t.Apply(p)
	}
	return out
}

// NormalizeAngle maps a to (-pi, pi].
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
