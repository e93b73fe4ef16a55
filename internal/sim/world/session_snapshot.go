package world

import (
	"fmt"
	"time"

	"lootdogs.ai/internal/persistence/snapshot"
	"lootdogs.ai/internal/sim/world/logic/mathx"
)

func vec(p [2]float64) mathx.Vec2 { return mathx.Vec2{X: p[0], Y: p[1]} }

func arr(v mathx.Vec2) [2]float64 { return [2]float64{v.X, v.Y} }

func exportLoot(l Loot) snapshot.LootV1 {
	return snapshot.LootV1{ID: l.ID, Type: l.Type, Value: l.Value, Pos: arr(l.Pos)}
}

func importLoot(l snapshot.LootV1) Loot {
	return Loot{ID: l.ID, Type: l.Type, Value: l.Value, Pos: vec(l.Pos)}
}

// ExportSnapshot captures the session between ticks.
func (s *Session) ExportSnapshot() snapshot.SessionV1 {
	out := snapshot.SessionV1{
		MapID:             s.MapID(),
		NextDog:           s.dogSeq.Peek(),
		NextLoot:          s.lootSeq.Peek(),
		LootAccumulatedMS: s.gen.Accumulated().Milliseconds(),
		Dogs:              make([]snapshot.DogV1, 0, len(s.dogs)),
		Loot:              make([]snapshot.LootV1, 0, len(s.loot)),
	}
	for _, d := range s.dogs {
		bag := make([]snapshot.LootV1, 0, len(d.bag))
		for _, l := range d.bag {
			bag = append(bag, exportLoot(l))
		}
		out.Dogs = append(out.Dogs, snapshot.DogV1{
			ID:          d.ID,
			Name:        d.Name,
			Pos:         arr(d.Pos),
			PrevPos:     arr(d.PrevPos),
			Speed:       arr(d.Speed),
			Dir:         string(d.Facing),
			Bag:         bag,
			BagCapacity: d.bagCap,
			Score:       d.Score,
			PlayTimeMS:  d.PlayTime.Milliseconds(),
			IdleMS:      d.Idle.Milliseconds(),
		})
	}
	for _, l := range s.loot {
		out.Loot = append(out.Loot, exportLoot(l))
	}
	return out
}

// RestoreSession rebuilds a session from its snapshot. Any inconsistency
// aborts the restore.
func RestoreSession(cfg SessionConfig, snap snapshot.SessionV1) (*Session, error) {
	if cfg.Map == nil || cfg.Map.ID != snap.MapID {
		return nil, fmt.Errorf("restore session %s: map mismatch", snap.MapID)
	}
	s := NewSession(cfg)
	s.gen.Restore(time.Duration(snap.LootAccumulatedMS) * time.Millisecond)

	dogs := make([]*Dog, 0, len(snap.Dogs))
	for _, dv := range snap.Dogs {
		dir, ok := ParseDirection(dv.Dir)
		if !ok {
			return nil, fmt.Errorf("restore session %s: dog %d has bad direction %q", snap.MapID, dv.ID, dv.Dir)
		}
		if dv.Score < 0 {
			return nil, fmt.Errorf("restore session %s: dog %d has negative score", snap.MapID, dv.ID)
		}
		capacity := dv.BagCapacity
		if capacity <= 0 {
			capacity = s.bagCapacity
		}
		d := NewDog(dv.ID, dv.Name, vec(dv.Pos), capacity)
		d.PrevPos = vec(dv.PrevPos)
		d.Speed = vec(dv.Speed)
		d.Facing = dir
		d.Score = dv.Score
		d.PlayTime = time.Duration(dv.PlayTimeMS) * time.Millisecond
		d.Idle = time.Duration(dv.IdleMS) * time.Millisecond
		for _, lv := range dv.Bag {
			l := importLoot(lv)
			l.Captured = true
			d.bag = append(d.bag, l)
		}
		dogs = append(dogs, d)
	}
	if err := s.AddDogs(dogs); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	items := make([]Loot, 0, len(snap.Loot))
	for _, lv := range snap.Loot {
		items = append(items, importLoot(lv))
	}
	if err := s.AddLostObjects(items); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if snap.NextDog > s.dogSeq.Peek() {
		s.dogSeq.Reset(snap.NextDog)
	}
	if snap.NextLoot > s.lootSeq.Peek() {
		s.lootSeq.Reset(snap.NextLoot)
	}
	return s, nil
}
