package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"lootdogs.ai/internal/persistence/leaderboard"
	persistlog "lootdogs.ai/internal/persistence/log"
	"lootdogs.ai/internal/protocol"
	"lootdogs.ai/internal/sim/multiworld"
	"lootdogs.ai/internal/sim/players"
	"lootdogs.ai/internal/sim/world"
)

var (
	ErrMapNotFound        = errors.New("map not found")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidToken       = errors.New("authorization header is missing or malformed")
	ErrUnknownToken       = errors.New("player token has not been found")
	ErrInvalidMove        = errors.New("failed to parse action")
	ErrInvalidDelta       = errors.New("failed to parse tick request")
	ErrManualTickDisabled = errors.New("manual ticks are disabled")
	ErrTooManyItems       = errors.New("too many items requested")
	ErrInvalidRange       = errors.New("invalid record range")
	ErrStopped            = errors.New("runtime stopped")
)

// MaxRecordItems caps one leaderboard page.
const MaxRecordItems = 100

// RecordStore persists retired players.
type RecordStore interface {
	Enqueue(records []leaderboard.Record) bool
	Flush(ctx context.Context) error
	List(ctx context.Context, offset, limit int) ([]leaderboard.Record, error)
}

type EventSink interface {
	WriteEvent(e persistlog.Event) error
}

// TickEvent is handed to listeners after sessions advanced and before idle
// dogs retire.
type TickEvent struct {
	Tick     uint64
	Delta    time.Duration
	Captures []multiworld.Capture
	// States holds one view per session, keyed by map id.
	States map[string]protocol.GameState
}

// Listener is called on the runtime goroutine; it must not block.
type Listener interface {
	OnTick(ev TickEvent)
}

type ListenerFunc func(ev TickEvent)

func (f ListenerFunc) OnTick(ev TickEvent) { f(ev) }

type Options struct {
	Manager   *multiworld.Manager
	Directory *players.Directory
	Records   RecordStore
	Events    EventSink
	Logger    *log.Logger

	// StateFile is where snapshots go; empty disables saving.
	StateFile  string
	SavePeriod time.Duration
	// TickPeriod drives automatic ticks; 0 enables the manual tick call.
	TickPeriod time.Duration
}

type Metrics struct {
	Ticks        uint64
	Sessions     int
	Dogs         int
	Loot         int
	Players      int
	Retired      uint64
	Saves        uint64
	SaveFailures uint64
}

// Runtime owns all game state. Every mutation runs on the goroutine inside
// Run; callers submit closures and wait for them.
type Runtime struct {
	mgr     *multiworld.Manager
	dir     *players.Directory
	records RecordStore
	events  EventSink
	log     *log.Logger

	stateFile  string
	savePeriod time.Duration
	tickPeriod time.Duration

	listeners []Listener

	reqs    chan func()
	stopped chan struct{}

	tick         uint64
	sinceSave    time.Duration
	retired      uint64
	saves        uint64
	saveFailures uint64
}

func New(opts Options) (*Runtime, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("app: nil manager")
	}
	if opts.Directory == nil {
		opts.Directory = players.NewDirectory(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[app] ", log.LstdFlags|log.Lmicroseconds)
	}
	if opts.TickPeriod < 0 || opts.SavePeriod < 0 {
		return nil, fmt.Errorf("app: negative period")
	}
	return &Runtime{
		mgr:        opts.Manager,
		dir:        opts.Directory,
		records:    opts.Records,
		events:     opts.Events,
		log:        opts.Logger,
		stateFile:  opts.StateFile,
		savePeriod: opts.SavePeriod,
		tickPeriod: opts.TickPeriod,
		reqs:       make(chan func()),
		stopped:    make(chan struct{}),
	}, nil
}

// AddListener must be called before Run.
func (r *Runtime) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

func (r *Runtime) AutoTick() bool { return r.tickPeriod > 0 }

// Run executes requests and automatic ticks until ctx is done. The state is
// saved once more on the way out.
func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.stopped)

	var tickC <-chan time.Time
	if r.tickPeriod > 0 {
		ticker := time.NewTicker(r.tickPeriod)
		defer ticker.Stop()
		tickC = ticker.C
	}
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			if r.stateFile != "" {
				if err := r.save(); err != nil {
					r.log.Printf("final save: %v", err)
				}
			}
			return ctx.Err()
		case fn := <-r.reqs:
			fn()
		case now := <-tickC:
			delta := now.Sub(last)
			last = now
			r.step(delta)
		}
	}
}

// do runs fn on the runtime goroutine and waits for it.
func (r *Runtime) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}
	select {
	case r.reqs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

func (r *Runtime) step(delta time.Duration) {
	captures := r.mgr.ProcessTickActions(delta)
	r.tick++

	if len(r.listeners) > 0 {
		ev := TickEvent{Tick: r.tick, Delta: delta, Captures: captures, States: map[string]protocol.GameState{}}
		for _, s := range r.mgr.Sessions() {
			ev.States[s.MapID()] = sessionView(s)
		}
		for _, l := range r.listeners {
			l.OnTick(ev)
		}
	}

	r.retire()

	r.sinceSave += delta
	if r.stateFile != "" && r.savePeriod > 0 && r.sinceSave >= r.savePeriod {
		r.sinceSave = 0
		if err := r.save(); err != nil {
			r.log.Printf("save state: %v", err)
		}
	}
}

func (r *Runtime) retire() {
	recs := r.dir.SendIntoRetirement(r.mgr.RetirementTime())
	if len(recs) == 0 {
		return
	}
	r.retired += uint64(len(recs))
	batch := make([]leaderboard.Record, 0, len(recs))
	for _, rec := range recs {
		batch = append(batch, leaderboard.Record{Name: rec.Name, Score: rec.Score, PlayTime: rec.PlayTime})
		dogID := rec.DogID
		r.writeEvent(persistlog.Event{
			Kind:       persistlog.EventRetire,
			MapID:      rec.MapID,
			DogID:      &dogID,
			Name:       rec.Name,
			Score:      rec.Score,
			PlayTimeMS: rec.PlayTime.Milliseconds(),
		})
	}
	if r.records != nil && !r.records.Enqueue(batch) {
		r.log.Printf("leaderboard queue full: dropped %d records", len(batch))
	}
}

func (r *Runtime) writeEvent(e persistlog.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.WriteEvent(e); err != nil {
		r.log.Printf("event log: %v", err)
	}
}

// Join adds a dog named name to the session of mapID and binds a new token.
func (r *Runtime) Join(ctx context.Context, name, mapID string) (token string, dogID uint64, err error) {
	if name == "" {
		return "", 0, ErrInvalidName
	}
	if _, ok := r.mgr.FindMap(mapID); !ok {
		return "", 0, ErrMapNotFound
	}
	derr := r.do(ctx, func() {
		s, dog, jerr := r.mgr.Join(mapID, name)
		if jerr != nil {
			if errors.Is(jerr, multiworld.ErrUnknownMap) {
				jerr = ErrMapNotFound
			}
			err = jerr
			return
		}
		p := r.dir.AddPlayer(s, dog.ID)
		token, dogID = p.Token, dog.ID
		id := dog.ID
		r.writeEvent(persistlog.Event{Kind: persistlog.EventJoin, MapID: mapID, DogID: &id, Name: name})
	})
	if derr != nil {
		return "", 0, derr
	}
	return token, dogID, err
}

// Authorize extracts the token from an Authorization header value and checks
// that it is bound to a player.
func (r *Runtime) Authorize(ctx context.Context, header string) (string, error) {
	token, ok := players.ValidateToken(header)
	if !ok {
		return "", ErrInvalidToken
	}
	known := false
	if err := r.do(ctx, func() {
		_, known = r.dir.Find(token)
	}); err != nil {
		return "", err
	}
	if !known {
		return "", ErrUnknownToken
	}
	return token, nil
}

// PlayerInfo identifies the dog behind a token.
type PlayerInfo struct {
	Token       string
	MapID       string
	DogID       uint64
	DogSpeed    float64
	BagCapacity int
}

// Resume looks up an existing player by raw token.
func (r *Runtime) Resume(ctx context.Context, token string) (PlayerInfo, error) {
	var info PlayerInfo
	var err error
	derr := r.do(ctx, func() {
		p, ok := r.dir.Find(token)
		if !ok || p.Dog() == nil {
			err = ErrUnknownToken
			return
		}
		info = playerInfo(p)
	})
	if derr != nil {
		return PlayerInfo{}, derr
	}
	return info, err
}

func playerInfo(p *players.Player) PlayerInfo {
	return PlayerInfo{
		Token:       p.Token,
		MapID:       p.Session.MapID(),
		DogID:       p.DogID,
		DogSpeed:    p.Session.DogSpeed(),
		BagCapacity: p.Session.BagCapacity(),
	}
}

// JoinInfo joins like Join and also reports the session parameters.
func (r *Runtime) JoinInfo(ctx context.Context, name, mapID string) (PlayerInfo, error) {
	token, _, err := r.Join(ctx, name, mapID)
	if err != nil {
		return PlayerInfo{}, err
	}
	return r.Resume(ctx, token)
}

// Move steers the player's dog. move is one of "U", "D", "L", "R" or "" (stop).
func (r *Runtime) Move(ctx context.Context, token, move string) error {
	dir, ok := world.ParseDirection(move)
	if !ok {
		return ErrInvalidMove
	}
	var err error
	derr := r.do(ctx, func() {
		p, ok := r.dir.Find(token)
		if !ok {
			err = ErrUnknownToken
			return
		}
		dog := p.Dog()
		if dog == nil {
			err = ErrUnknownToken
			return
		}
		dog.Steer(dir, p.Session.DogSpeed())
	})
	if derr != nil {
		return derr
	}
	return err
}

// Players lists the dogs sharing the caller's session.
func (r *Runtime) Players(ctx context.Context, token string) (map[uint64]string, error) {
	var out map[uint64]string
	var err error
	derr := r.do(ctx, func() {
		p, ok := r.dir.Find(token)
		if !ok {
			err = ErrUnknownToken
			return
		}
		out = make(map[uint64]string)
		for _, d := range p.Session.Dogs() {
			out[d.ID] = d.Name
		}
	})
	if derr != nil {
		return nil, derr
	}
	return out, err
}

// State returns the caller's session view.
func (r *Runtime) State(ctx context.Context, token string) (protocol.GameState, error) {
	var out protocol.GameState
	var err error
	derr := r.do(ctx, func() {
		p, ok := r.dir.Find(token)
		if !ok {
			err = ErrUnknownToken
			return
		}
		out = sessionView(p.Session)
	})
	if derr != nil {
		return protocol.GameState{}, derr
	}
	return out, err
}

// Tick advances the game by delta. Only allowed when automatic ticking is off.
func (r *Runtime) Tick(ctx context.Context, delta time.Duration) error {
	if r.AutoTick() {
		return ErrManualTickDisabled
	}
	if delta < 0 {
		return ErrInvalidDelta
	}
	return r.do(ctx, func() { r.step(delta) })
}

// Records returns up to maxItems leaderboard rows starting at start. Queued
// retirements are written first.
func (r *Runtime) Records(ctx context.Context, start, maxItems int) ([]leaderboard.Record, error) {
	if maxItems > MaxRecordItems {
		return nil, ErrTooManyItems
	}
	if start < 0 || maxItems < 0 {
		return nil, ErrInvalidRange
	}
	if r.records == nil {
		return []leaderboard.Record{}, nil
	}
	if err := r.records.Flush(ctx); err != nil {
		r.log.Printf("leaderboard flush: %v", err)
	}
	return r.records.List(ctx, start, maxItems)
}

func (r *Runtime) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := r.do(ctx, func() {
		m = Metrics{
			Ticks:        r.tick,
			Players:      r.dir.Len(),
			Retired:      r.retired,
			Saves:        r.saves,
			SaveFailures: r.saveFailures,
		}
		for _, s := range r.mgr.Sessions() {
			m.Sessions++
			m.Dogs += len(s.Dogs())
			m.Loot += len(s.Loot())
		}
	})
	return m, err
}
