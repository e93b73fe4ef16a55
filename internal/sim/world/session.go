package world

import (
	"fmt"
	"math/rand"
	"time"

	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/roads"
	"lootdogs.ai/internal/sim/world/logic/collision"
	"lootdogs.ai/internal/sim/world/logic/ids"
	"lootdogs.ai/internal/sim/world/logic/lootgen"
	"lootdogs.ai/internal/sim/world/logic/mathx"
)

type SessionConfig struct {
	Map     *catalogs.MapDef
	Network *roads.Network // built from Map when nil
	Loot    lootgen.Config
	Rand    *rand.Rand

	DefaultBagCapacity int
	DefaultDogSpeed    float64
}

// Capture describes one resolved capture event of a tick.
type Capture struct {
	DogID    uint64
	LootID   uint64
	OfficeID string
	Banked   int
}

// Session is one running instance of a map. It owns its dogs and the loot
// lying on the ground. It is not safe for concurrent use.
type Session struct {
	mapDef  *catalogs.MapDef
	network *roads.Network
	rng     *rand.Rand
	gen     *lootgen.Generator

	bagCapacity int
	dogSpeed    float64

	dogs     []*Dog
	dogIndex map[uint64]int
	loot     []Loot

	dogSeq  ids.Seq
	lootSeq ids.Seq
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		mapDef:      cfg.Map,
		network:     cfg.Network,
		rng:         cfg.Rand,
		gen:         lootgen.New(cfg.Loot),
		bagCapacity: cfg.DefaultBagCapacity,
		dogSpeed:    cfg.DefaultDogSpeed,
		dogIndex:    map[uint64]int{},
	}
	if s.network == nil {
		s.network = roads.FromMap(cfg.Map)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.bagCapacity <= 0 {
		s.bagCapacity = DefaultBagCapacity
	}
	if s.dogSpeed <= 0 {
		s.dogSpeed = DefaultDogSpeed
	}
	if cfg.Map.BagCapacity != nil {
		s.bagCapacity = *cfg.Map.BagCapacity
	}
	if cfg.Map.DogSpeed != nil {
		s.dogSpeed = *cfg.Map.DogSpeed
	}
	return s
}

func (s *Session) MapID() string { return s.mapDef.ID }
func (s *Session) Map() *catalogs.MapDef { return s.mapDef }
func (s *Session) Network() *roads.Network { return s.network }
func (s *Session) DogSpeed() float64 { return s.dogSpeed }
func (s *Session) BagCapacity() int { return s.bagCapacity }
func (s *Session) LootConfig() lootgen.Config { return s.gen.Config() }

func (s *Session) SetLootConfig(cfg lootgen.Config) { s.gen.SetConfig(cfg) }

// AddDog spawns a dog at a random road point, or at the map's default
// position, and gives it the next dog id.
func (s *Session) AddDog(name string, randomize bool) *Dog {
	pos := s.network.DefaultPosition()
	if randomize {
		pos = s.network.RandomPosition(s.rng)
	}
	d := NewDog(s.dogSeq.Next(), name, pos, s.bagCapacity)
	s.appendDog(d)
	return d
}

func (s *Session) appendDog(d *Dog) {
	s.dogIndex[d.ID] = len(s.dogs)
	s.dogs = append(s.dogs, d)
}

// AddDogs inserts restored dogs as they are. The id counters move past every
// restored dog and carried item.
func (s *Session) AddDogs(dogs []*Dog) error {
	seen := make(map[uint64]bool, len(dogs))
	for _, d := range dogs {
		if d == nil {
			return fmt.Errorf("session %s: nil dog", s.MapID())
		}
		if _, ok := s.dogIndex[d.ID]; ok || seen[d.ID] {
			return fmt.Errorf("session %s: duplicate dog id %d", s.MapID(), d.ID)
		}
		if len(d.bag) > d.bagCap {
			return fmt.Errorf("session %s: dog %d carries %d items, capacity %d", s.MapID(), d.ID, len(d.bag), d.bagCap)
		}
		seen[d.ID] = true
	}
	for _, d := range dogs {
		s.appendDog(d)
		s.dogSeq.Observe(d.ID)
		for _, l := range d.bag {
			s.lootSeq.Observe(l.ID)
		}
	}
	return nil
}

// AddLostObjects inserts restored ground loot. The loot id counter moves past
// every restored id.
func (s *Session) AddLostObjects(items []Loot) error {
	existing := make(map[uint64]bool, len(s.loot)+len(items))
	for _, l := range s.loot {
		existing[l.ID] = true
	}
	for _, l := range items {
		if existing[l.ID] {
			return fmt.Errorf("session %s: duplicate loot id %d", s.MapID(), l.ID)
		}
		if l.Value < 0 {
			return fmt.Errorf("session %s: loot %d has negative value", s.MapID(), l.ID)
		}
		existing[l.ID] = true
	}
	for _, l := range items {
		l.Captured = false
		s.loot = append(s.loot, l)
		s.lootSeq.Observe(l.ID)
	}
	return nil
}

// DeleteDog removes the dog without renumbering the others.
func (s *Session) DeleteDog(id uint64) bool {
	i, ok := s.dogIndex[id]
	if !ok {
		return false
	}
	copy(s.dogs[i:], s.dogs[i+1:])
	s.dogs[len(s.dogs)-1] = nil
	s.dogs = s.dogs[:len(s.dogs)-1]
	delete(s.dogIndex, id)
	for j := i; j < len(s.dogs); j++ {
		s.dogIndex[s.dogs[j].ID] = j
	}
	return true
}

func (s *Session) FindDog(id uint64) *Dog {
	i, ok := s.dogIndex[id]
	if !ok {
		return nil
	}
	return s.dogs[i]
}

// Dogs returns the dogs in insertion order. The slice must not be modified.
func (s *Session) Dogs() []*Dog { return s.dogs }

// Loot returns the items lying on the ground. The slice must not be modified.
func (s *Session) Loot() []Loot { return s.loot }

// Step advances the session by delta: move, spawn, capture.
func (s *Session) Step(delta time.Duration) []Capture {
	s.MoveDogs(delta)
	s.GenerateLoot(delta)
	return s.ProcessCaptures()
}

func (s *Session) MoveDogs(delta time.Duration) {
	dt := delta.Seconds()
	for _, d := range s.dogs {
		d.PrevPos = d.Pos
		d.PlayTime += delta
		d.Idle += delta
		if d.Speed.IsZero() || dt <= 0 {
			continue
		}
		proposed := d.Pos.Add(d.Speed.Scale(dt))
		clamped := s.network.NearestAllowedPosition(d.Pos, proposed)
		if clamped != proposed {
			d.Speed = mathx.Vec2{}
		}
		d.Pos = clamped
	}
}

// GenerateLoot spawns new items and returns how many were added.
func (s *Session) GenerateLoot(delta time.Duration) int {
	n := s.gen.Generate(delta, len(s.loot), len(s.dogs))
	types := s.mapDef.LootTypes
	if len(types) == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		typ := s.rng.Intn(len(types))
		s.loot = append(s.loot, Loot{
			ID:    s.lootSeq.Next(),
			Type:  typ,
			Value: types[typ].Value,
			Pos:   s.network.RandomPosition(s.rng),
		})
	}
	return n
}

// ProcessCaptures resolves this tick's capture events in path order.
func (s *Session) ProcessCaptures() []Capture {
	src := captureSource{s: s}
	events := collision.FindEvents(src)
	if len(events) == 0 {
		return nil
	}
	taken := make([]bool, len(s.loot))
	var out []Capture
	for _, ev := range events {
		d := s.dogs[ev.GathererIdx]
		if ev.ProviderIdx < len(s.loot) {
			if taken[ev.ProviderIdx] {
				continue
			}
			l := s.loot[ev.ProviderIdx]
			if !d.AddLoot(l) {
				continue
			}
			taken[ev.ProviderIdx] = true
			out = append(out, Capture{DogID: d.ID, LootID: l.ID})
			continue
		}
		office := s.mapDef.Offices[ev.ProviderIdx-len(s.loot)]
		banked := d.DepositBag()
		out = append(out, Capture{DogID: d.ID, OfficeID: office.ID, Banked: banked})
	}
	ground := s.loot[:0]
	for i, l := range s.loot {
		if !taken[i] {
			ground = append(ground, l)
		}
	}
	for i := len(ground); i < len(s.loot); i++ {
		s.loot[i] = Loot{}
	}
	s.loot = ground
	return out
}

// captureSource exposes ground loot followed by offices as providers and
// dogs as gatherers.
type captureSource struct {
	s *Session
}

func (c captureSource) ProvidersCount() int {
	return len(c.s.loot) + len(c.s.mapDef.Offices)
}

func (c captureSource) Provider(idx int) collision.Provider {
	if idx < len(c.s.loot) {
		return collision.Provider{Pos: c.s.loot[idx].Pos, Radius: LootRadius}
	}
	o := c.s.mapDef.Offices[idx-len(c.s.loot)]
	return collision.Provider{
		Pos:    mathx.Vec2{X: float64(o.X), Y: float64(o.Y)},
		Radius: OfficeRadius,
	}
}

func (c captureSource) GatherersCount() int { return len(c.s.dogs) }

func (c captureSource) Gatherer(idx int) collision.Gatherer {
	d := c.s.dogs[idx]
	return collision.Gatherer{Start: d.PrevPos, End: d.Pos, Radius: DogRadius}
}
