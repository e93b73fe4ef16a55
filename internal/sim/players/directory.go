package players

import (
	"fmt"
	"sort"
	"time"

	"lootdogs.ai/internal/persistence/snapshot"
	"lootdogs.ai/internal/sim/world"
)

// Player binds a token to a dog. The session owns the dog; the player only
// keeps its id.
type Player struct {
	Token   string
	Session *world.Session
	DogID   uint64
}

// Dog looks the dog up in its session; nil once it has been removed.
func (p *Player) Dog() *world.Dog {
	return p.Session.FindDog(p.DogID)
}

// Record is what remains of a retired dog.
type Record struct {
	MapID    string
	DogID    uint64
	Name     string
	PlayTime time.Duration
	Score    int
}

// Directory maps tokens to players. It does no locking.
type Directory struct {
	tokens  TokenGenerator
	byToken map[string]*Player
}

func NewDirectory(tokens TokenGenerator) *Directory {
	if tokens == nil {
		tokens = NewTokenGenerator()
	}
	return &Directory{tokens: tokens, byToken: map[string]*Player{}}
}

func (d *Directory) Len() int { return len(d.byToken) }

// AddPlayer binds a fresh token to the dog.
func (d *Directory) AddPlayer(s *world.Session, dogID uint64) *Player {
	token := d.tokens.NewToken()
	for d.byToken[token] != nil {
		token = d.tokens.NewToken()
	}
	p := &Player{Token: token, Session: s, DogID: dogID}
	d.byToken[token] = p
	return p
}

// Restore binds a known token; used when loading a snapshot.
func (d *Directory) Restore(token string, s *world.Session, dogID uint64) error {
	if !validToken(token) {
		return fmt.Errorf("restore player: malformed token")
	}
	if d.byToken[token] != nil {
		return fmt.Errorf("restore player: duplicate token")
	}
	if s == nil || s.FindDog(dogID) == nil {
		return fmt.Errorf("restore player: no dog %d for token", dogID)
	}
	d.byToken[token] = &Player{Token: token, Session: s, DogID: dogID}
	return nil
}

func (d *Directory) Find(token string) (*Player, bool) {
	p, ok := d.byToken[token]
	return p, ok
}

// PlayersInSession returns the players of s ordered by dog id.
func (d *Directory) PlayersInSession(s *world.Session) []*Player {
	var out []*Player
	for _, p := range d.byToken {
		if p.Session == s {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DogID < out[j].DogID })
	return out
}

// sorted returns every player ordered by map id and dog id.
func (d *Directory) sorted() []*Player {
	out := make([]*Player, 0, len(d.byToken))
	for _, p := range d.byToken {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Session.MapID() != out[j].Session.MapID() {
			return out[i].Session.MapID() < out[j].Session.MapID()
		}
		return out[i].DogID < out[j].DogID
	})
	return out
}

// SendIntoRetirement removes every dog idle for at least threshold from its
// session, drops its token and returns one record per retired dog.
func (d *Directory) SendIntoRetirement(threshold time.Duration) []Record {
	var records []Record
	for _, p := range d.sorted() {
		dog := p.Dog()
		if dog == nil {
			delete(d.byToken, p.Token)
			continue
		}
		if dog.Idle < threshold {
			continue
		}
		records = append(records, Record{
			MapID:    p.Session.MapID(),
			DogID:    p.DogID,
			Name:     dog.Name,
			PlayTime: dog.PlayTime,
			Score:    dog.Score,
		})
		p.Session.DeleteDog(p.DogID)
		delete(d.byToken, p.Token)
	}
	return records
}

// ExportSnapshot lists the bindings ordered by token.
func (d *Directory) ExportSnapshot() []snapshot.PlayerV1 {
	out := make([]snapshot.PlayerV1, 0, len(d.byToken))
	for _, p := range d.byToken {
		out = append(out, snapshot.PlayerV1{Token: p.Token, MapID: p.Session.MapID(), DogID: p.DogID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
