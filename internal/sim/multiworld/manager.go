package multiworld

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"lootdogs.ai/internal/persistence/snapshot"
	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/roads"
	"lootdogs.ai/internal/sim/world"
	"lootdogs.ai/internal/sim/world/logic/lootgen"
)

var ErrUnknownMap = errors.New("unknown map")

// Capture is a session capture tagged with its map.
type Capture struct {
	MapID string
	world.Capture
}

// Manager owns the map catalog and one session per map. Sessions are created
// on the first join and live as long as the Manager. It does no locking; the
// caller serialises access.
type Manager struct {
	cfg      Config
	catalog  *catalogs.Catalog
	networks map[string]*roads.Network
	sessions map[string]*world.Session
	rng      *rand.Rand
}

func NewManager(catalog *catalogs.Catalog, cfg Config, rng *rand.Rand) (*Manager, error) {
	if catalog == nil || len(catalog.Maps) == 0 {
		return nil, fmt.Errorf("empty map catalog")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m := &Manager{
		cfg:      cfg,
		catalog:  catalog,
		networks: make(map[string]*roads.Network, len(catalog.Maps)),
		sessions: map[string]*world.Session{},
		rng:      rng,
	}
	for i := range catalog.Maps {
		def := &catalog.Maps[i]
		m.networks[def.ID] = roads.FromMap(def)
	}
	return m, nil
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Catalog() *catalogs.Catalog { return m.catalog }
func (m *Manager) RetirementTime() time.Duration { return m.cfg.RetirementTime }

func (m *Manager) FindMap(id string) (*catalogs.MapDef, bool) {
	return m.catalog.Find(id)
}

// Session returns the session of mapID, or nil when nobody joined it yet.
func (m *Manager) Session(mapID string) *world.Session {
	return m.sessions[mapID]
}

// Sessions returns all sessions ordered by map id.
func (m *Manager) Sessions() []*world.Session {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*world.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sessions[id])
	}
	return out
}

func (m *Manager) sessionConfig(def *catalogs.MapDef) world.SessionConfig {
	return world.SessionConfig{
		Map:                def,
		Network:            m.networks[def.ID],
		Loot:               m.cfg.Loot,
		Rand:               rand.New(rand.NewSource(m.rng.Int63())),
		DefaultBagCapacity: m.cfg.DefaultBagCapacity,
		DefaultDogSpeed:    m.cfg.DefaultDogSpeed,
	}
}

// EnsureSession returns the session of mapID, creating it if needed.
func (m *Manager) EnsureSession(mapID string) (*world.Session, error) {
	if s := m.sessions[mapID]; s != nil {
		return s, nil
	}
	def, ok := m.catalog.Find(mapID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMap, mapID)
	}
	s := world.NewSession(m.sessionConfig(def))
	m.sessions[mapID] = s
	return s, nil
}

// Join adds a new dog to the session of mapID.
func (m *Manager) Join(mapID, name string) (*world.Session, *world.Dog, error) {
	s, err := m.EnsureSession(mapID)
	if err != nil {
		return nil, nil, err
	}
	return s, s.AddDog(name, m.cfg.RandomizeSpawn), nil
}

// ProcessTickActions advances every session by delta. Sessions never
// interact, so the order only affects the order of the returned captures.
func (m *Manager) ProcessTickActions(delta time.Duration) []Capture {
	var out []Capture
	for _, s := range m.Sessions() {
		for _, c := range s.Step(delta) {
			out = append(out, Capture{MapID: s.MapID(), Capture: c})
		}
	}
	return out
}

// SetLootConfig applies to existing and future sessions.
func (m *Manager) SetLootConfig(cfg lootgen.Config) {
	m.cfg.Loot = cfg
	for _, s := range m.sessions {
		s.SetLootConfig(cfg)
	}
}

func (m *Manager) SetRetirementTime(d time.Duration) {
	if d > 0 {
		m.cfg.RetirementTime = d
	}
}

func (m *Manager) ExportSnapshot() []snapshot.SessionV1 {
	sessions := m.Sessions()
	out := make([]snapshot.SessionV1, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ExportSnapshot())
	}
	return out
}

// ImportSnapshot restores sessions. Nothing is changed unless every session
// restores cleanly.
func (m *Manager) ImportSnapshot(snaps []snapshot.SessionV1) error {
	restored := make(map[string]*world.Session, len(snaps))
	for _, snap := range snaps {
		if _, dup := restored[snap.MapID]; dup {
			return fmt.Errorf("duplicate session for map %s", snap.MapID)
		}
		if m.sessions[snap.MapID] != nil {
			return fmt.Errorf("session for map %s already exists", snap.MapID)
		}
		def, ok := m.catalog.Find(snap.MapID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMap, snap.MapID)
		}
		s, err := world.RestoreSession(m.sessionConfig(def), snap)
		if err != nil {
			return err
		}
		restored[snap.MapID] = s
	}
	for id, s := range restored {
		m.sessions[id] = s
	}
	return nil
}
