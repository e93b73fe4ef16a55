package roads

import (
	"math/rand"
	"testing"

	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/world/logic/mathx"
)

func v(x, y float64) mathx.Vec2 { return mathx.Vec2{X: x, Y: y} }

func near(a, b mathx.Vec2) bool {
	return mathx.NearlyEqual(a.X, b.X, 1e-9) && mathx.NearlyEqual(a.Y, b.Y, 1e-9)
}

func TestNearestAllowedPosition_InsideUnchanged(t *testing.T) {
	n := NewNetwork([]Road{{Start: v(0, 0), End: v(5, 0)}}, DefaultHalfWidth)
	for _, p := range []mathx.Vec2{v(0, 0), v(2.5, 0.3), v(5.4, -0.4)} {
		if got := n.NearestAllowedPosition(p, p); got != p {
			t.Fatalf("NearestAllowedPosition(%v,%v)=%v", p, p, got)
		}
	}
	if got := n.NearestAllowedPosition(v(0, 0), v(1, 0)); got != v(1, 0) {
		t.Fatalf("got %v want (1,0)", got)
	}
}

func TestNearestAllowedPosition_StopsAtRoadEnd(t *testing.T) {
	// Corridor ends at x = 0.1 + 0.4 = 0.5.
	n := NewNetwork([]Road{{Start: v(0, 0), End: v(0.1, 0)}}, DefaultHalfWidth)
	if got := n.NearestAllowedPosition(v(0, 0), v(1, 0)); got != v(0.5, 0) {
		t.Fatalf("got %v want (0.5,0)", got)
	}
	// Sideways motion stops at the corridor edge.
	if got := n.NearestAllowedPosition(v(0, 0), v(0, -3)); !near(got, v(0, -0.4)) {
		t.Fatalf("got %v want (0,-0.4)", got)
	}
}

func TestNearestAllowedPosition_CrossesJunction(t *testing.T) {
	n := NewNetwork([]Road{
		{Start: v(0, 0), End: v(10, 0)},
		{Start: v(10, 0), End: v(20, 0)},
		{Start: v(10, 0), End: v(10, 10)},
	}, DefaultHalfWidth)
	if got := n.NearestAllowedPosition(v(8, 0), v(25, 0)); !near(got, v(20.4, 0)) {
		t.Fatalf("horizontal: got %v want (20.4,0)", got)
	}
	if got := n.NearestAllowedPosition(v(10, 2), v(10, -5)); !near(got, v(10, -0.4)) {
		t.Fatalf("vertical: got %v want (10,-0.4)", got)
	}
}

func TestNearestAllowedPosition_OffRoadStays(t *testing.T) {
	n := NewNetwork([]Road{{Start: v(0, 0), End: v(5, 0)}}, DefaultHalfWidth)
	cur := v(2, 3)
	if got := n.NearestAllowedPosition(cur, v(2, 5)); got != cur {
		t.Fatalf("got %v want %v", got, cur)
	}
}

func TestRandomPositionOnRoad(t *testing.T) {
	n := NewNetwork([]Road{
		{Start: v(0, 0), End: v(10, 0)},
		{Start: v(10, 0), End: v(10, 10)},
	}, DefaultHalfWidth)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := n.RandomPosition(rng)
		if !n.Allowed(p) {
			t.Fatalf("random position %v off road", p)
		}
	}
	if got := n.DefaultPosition(); got != v(0, 0) {
		t.Fatalf("DefaultPosition=%v", got)
	}
}

func TestFromMap(t *testing.T) {
	x1, y1 := 40, 30
	m := &catalogs.MapDef{ID: "m", Roads: []catalogs.RoadDef{
		{X0: 0, Y0: 0, X1: &x1},
		{X0: 40, Y0: 0, Y1: &y1},
	}}
	n := FromMap(m)
	if len(n.Roads()) != 2 || n.Roads()[1].End != v(40, 30) {
		t.Fatalf("roads=%+v", n.Roads())
	}
	if !n.Allowed(v(40.3, 29)) || n.Allowed(v(20, 5)) {
		t.Fatalf("corridor mismatch")
	}
}
