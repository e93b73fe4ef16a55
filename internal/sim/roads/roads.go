package roads

import (
	"math"
	"math/rand"

	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/world/logic/mathx"
)

// DefaultHalfWidth is how far a dog may stray from a road's centerline.
const DefaultHalfWidth = 0.4

const containEps = 1e-9

// Road is an axis-aligned centerline segment.
type Road struct {
	Start mathx.Vec2
	End   mathx.Vec2
}

type rect struct {
	minX, minY, maxX, maxY float64
}

func (r rect) contains(p mathx.Vec2) bool {
	return p.X >= r.minX-containEps && p.X <= r.maxX+containEps &&
		p.Y >= r.minY-containEps && p.Y <= r.maxY+containEps
}

// exit returns the largest t in [from,1] such that from..t along
// cur + d*t stays inside r, assuming the point at from is inside.
func (r rect) exit(cur, d mathx.Vec2) float64 {
	t := 1.0
	t = math.Min(t, slab(cur.X, d.X, r.minX, r.maxX))
	t = math.Min(t, slab(cur.Y, d.Y, r.minY, r.maxY))
	return t
}

func slab(c, d, lo, hi float64) float64 {
	switch {
	case d > 0:
		return (hi - c) / d
	case d < 0:
		return (lo - c) / d
	default:
		return math.Inf(1)
	}
}

// Network is the immutable road corridor of one map.
type Network struct {
	roads []Road
	rects []rect
}

func NewNetwork(roads []Road, halfWidth float64) *Network {
	n := &Network{
		roads: append([]Road(nil), roads...),
		rects: make([]rect, 0, len(roads)),
	}
	for _, r := range roads {
		n.rects = append(n.rects, rect{
			minX: math.Min(r.Start.X, r.End.X) - halfWidth,
			maxX: math.Max(r.Start.X, r.End.X) + halfWidth,
			minY: math.Min(r.Start.Y, r.End.Y) - halfWidth,
			maxY: math.Max(r.Start.Y, r.End.Y) + halfWidth,
		})
	}
	return n
}

// FromMap builds the network of a catalog map.
func FromMap(m *catalogs.MapDef) *Network {
	rs := make([]Road, 0, len(m.Roads))
	for _, r := range m.Roads {
		x1, y1 := r.End()
		rs = append(rs, Road{
			Start: mathx.Vec2{X: float64(r.X0), Y: float64(r.Y0)},
			End:   mathx.Vec2{X: float64(x1), Y: float64(y1)},
		})
	}
	return NewNetwork(rs, DefaultHalfWidth)
}

func (n *Network) Roads() []Road { return n.roads }

// Allowed reports whether p lies inside at least one road corridor.
func (n *Network) Allowed(p mathx.Vec2) bool {
	for _, r := range n.rects {
		if r.contains(p) {
			return true
		}
	}
	return false
}

// NearestAllowedPosition returns the furthest point along current->proposed
// that stays inside the corridor. proposed is returned unchanged when it is
// allowed; current is returned when it is itself off-road.
func (n *Network) NearestAllowedPosition(current, proposed mathx.Vec2) mathx.Vec2 {
	if n.Allowed(proposed) {
		return proposed
	}
	d := proposed.Sub(current)
	t := 0.0
	// Each pass hops into a road that contains the current reach point;
	// the reach can only grow, so len(rects)+1 passes suffice.
	for pass := 0; pass <= len(n.rects); pass++ {
		at := mathx.Lerp(current, proposed, t)
		best := t
		for _, r := range n.rects {
			if !r.contains(at) {
				continue
			}
			if e := r.exit(current, d); e > best {
				best = e
			}
		}
		if best <= t {
			break
		}
		t = math.Min(best, 1)
	}
	if t <= 0 {
		return current
	}
	return mathx.Lerp(current, proposed, t)
}

// RandomRoad picks a road uniformly.
func (n *Network) RandomRoad(rng *rand.Rand) Road {
	return n.roads[rng.Intn(len(n.roads))]
}

// RandomPosition picks a uniformly random point on the centerline of a
// random road.
func (n *Network) RandomPosition(rng *rand.Rand) mathx.Vec2 {
	r := n.RandomRoad(rng)
	return mathx.Lerp(r.Start, r.End, rng.Float64())
}

// DefaultPosition is the start of the first road.
func (n *Network) DefaultPosition() mathx.Vec2 {
	if len(n.roads) == 0 {
		return mathx.Vec2{}
	}
	return n.roads[0].Start
}
