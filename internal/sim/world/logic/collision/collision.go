package collision

import (
	"sort"

	"lootdogs.ai/internal/sim/world/logic/mathx"
)

// Gatherer is something that moved from Start to End during a tick.
type Gatherer struct {
	Start  mathx.Vec2
	End    mathx.Vec2
	Radius float64
}

// Provider is a static target (loot item or office).
type Provider struct {
	Pos    mathx.Vec2
	Radius float64
}

// Source exposes the gatherers and providers of one tick by index.
type Source interface {
	ProvidersCount() int
	Provider(idx int) Provider
	GatherersCount() int
	Gatherer(idx int) Gatherer
}

// Event is a capture of provider ProviderIdx by gatherer GathererIdx.
// Time is the projection parameter of the closest approach along the
// gatherer's segment, in [0,1].
type Event struct {
	ProviderIdx int
	GathererIdx int
	SqDistance  float64
	Time        float64
}

// Projection is the closest approach of point c to segment a->b.
type Projection struct {
	SqDistance float64
	Ratio      float64
}

func (p Projection) Collected(radius float64) bool {
	return p.Ratio >= 0 && p.Ratio <= 1 && p.SqDistance <= radius*radius
}

// Project computes the closest approach of c to the line through a and b.
// a and b must differ.
func Project(a, b, c mathx.Vec2) Projection {
	u := c.Sub(a)
	v := b.Sub(a)
	uv := u.Dot(v)
	vLen2 := v.LenSq()
	return Projection{
		SqDistance: u.LenSq() - uv*uv/vLen2,
		Ratio:      uv / vLen2,
	}
}

// FindEvents returns every capture of the tick ordered by Time. Ties are broken
// by gatherer index and then provider index so the order is reproducible.
// Gatherers that did not move produce no events.
func FindEvents(src Source) []Event {
	var events []Event
	for g := 0; g < src.GatherersCount(); g++ {
		gatherer := src.Gatherer(g)
		if gatherer.Start == gatherer.End {
			continue
		}
		for p := 0; p < src.ProvidersCount(); p++ {
			provider := src.Provider(p)
			proj := Project(gatherer.Start, gatherer.End, provider.Pos)
			if proj.Collected(gatherer.Radius + provider.Radius) {
				events = append(events, Event{
					ProviderIdx: p,
					GathererIdx: g,
					SqDistance:  proj.SqDistance,
					Time:        proj.Ratio,
				})
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		if events[i].GathererIdx != events[j].GathererIdx {
			return events[i].GathererIdx < events[j].GathererIdx
		}
		return events[i].ProviderIdx < events[j].ProviderIdx
	})
	return events
}
