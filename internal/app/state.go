package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	persistlog "lootdogs.ai/internal/persistence/log"
	"lootdogs.ai/internal/persistence/snapshot"
	"lootdogs.ai/internal/protocol"
	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/multiworld"
	"lootdogs.ai/internal/sim/tuning"
	"lootdogs.ai/internal/sim/world"
)

func sessionView(s *world.Session) protocol.GameState {
	out := protocol.GameState{
		Players:     make(map[string]protocol.DogState, len(s.Dogs())),
		LostObjects: make(map[string]protocol.LootState, len(s.Loot())),
	}
	for _, d := range s.Dogs() {
		bag := d.Bag()
		items := make([]protocol.BagItem, 0, len(bag))
		for _, l := range bag {
			items = append(items, protocol.BagItem{ID: l.ID, Type: l.Type})
		}
		out.Players[strconv.FormatUint(d.ID, 10)] = protocol.DogState{
			Pos:   [2]float64{d.Pos.X, d.Pos.Y},
			Speed: [2]float64{d.Speed.X, d.Speed.Y},
			Dir:   string(d.Facing),
			Bag:   items,
			Score: d.Score,
		}
	}
	for _, l := range s.Loot() {
		out.LostObjects[strconv.FormatUint(l.ID, 10)] = protocol.LootState{
			Type: l.Type,
			Pos:  [2]float64{l.Pos.X, l.Pos.Y},
		}
	}
	return out
}

// Maps lists the catalog in file order.
func (r *Runtime) Maps() []protocol.MapSummary {
	maps := r.mgr.Catalog().Maps
	out := make([]protocol.MapSummary, 0, len(maps))
	for _, m := range maps {
		out = append(out, protocol.MapSummary{ID: m.ID, Name: m.Name})
	}
	return out
}

func (r *Runtime) Map(id string) (*catalogs.MapDef, error) {
	def, ok := r.mgr.FindMap(id)
	if !ok {
		return nil, ErrMapNotFound
	}
	return def, nil
}

func (r *Runtime) MapsDigest() string { return r.mgr.Catalog().Digest }

// ApplyTuning swaps the hot-reloadable settings: loot generation and the
// retirement threshold.
func (r *Runtime) ApplyTuning(ctx context.Context, t tuning.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cfg := multiworld.ConfigFromTuning(t)
	return r.do(ctx, func() {
		r.mgr.SetLootConfig(cfg.Loot)
		r.mgr.SetRetirementTime(cfg.RetirementTime)
		if t.SavePeriod > 0 {
			r.savePeriod = t.SavePeriod
		}
	})
}

// Save writes a snapshot now. It is a no-op without a state file.
func (r *Runtime) Save(ctx context.Context) error {
	if r.stateFile == "" {
		return nil
	}
	var err error
	if derr := r.do(ctx, func() { err = r.save() }); derr != nil {
		return derr
	}
	return err
}

func (r *Runtime) exportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Sessions: r.mgr.ExportSnapshot(),
		Players:  r.dir.ExportSnapshot(),
	}
	snap.Header = snapshot.Header{
		Version:  snapshot.Version,
		SavedAt:  time.Now().UnixMilli(),
		Sessions: len(snap.Sessions),
		Players:  len(snap.Players),
		MapsHash: r.mgr.Catalog().Digest,
	}
	return snap
}

func (r *Runtime) save() error {
	snap := r.exportSnapshot()
	if err := snapshot.WriteSnapshot(r.stateFile, snap); err != nil {
		r.saveFailures++
		return err
	}
	r.saves++
	r.writeEvent(persistlog.Event{
		Kind:     persistlog.EventSnapshot,
		Path:     r.stateFile,
		Sessions: snap.Header.Sessions,
		Players:  snap.Header.Players,
	})
	return nil
}

// Restore loads sessions and players from snap. It must run before Run. Any
// inconsistency aborts the restore.
func (r *Runtime) Restore(snap snapshot.SnapshotV1) error {
	if snap.Header.MapsHash != "" && snap.Header.MapsHash != r.mgr.Catalog().Digest {
		r.log.Printf("restore: snapshot was taken with a different map catalog")
	}
	if err := r.mgr.ImportSnapshot(snap.Sessions); err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}
	for _, p := range snap.Players {
		if err := r.dir.Restore(p.Token, r.mgr.Session(p.MapID), p.DogID); err != nil {
			return fmt.Errorf("restore players: %w", err)
		}
	}
	return nil
}

// LoadState restores from path when the file exists and is not empty. It
// reports whether anything was restored.
func (r *Runtime) LoadState(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if fi.Size() == 0 {
		return false, nil
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return false, err
	}
	if err := r.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}
