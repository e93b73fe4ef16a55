package players

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/world"
)

const hex32 = "0123456789abcdefABCDEF0123456789"

func TestValidateToken(t *testing.T) {
	tests := []struct {
		header string
		ok     bool
	}{
		{"Bearer " + hex32, true},
		{"Bearer " + hex32[:31], false},
		{"Bearer " + hex32 + "0", false},
		{"Basic " + hex32, false},
		{"bearer " + hex32, false},
		{"Bearer  " + hex32, false},
		{"Bearer " + strings.Replace(hex32, "0", "g", 1), false},
		{"", false},
	}
	for _, tc := range tests {
		tok, ok := ValidateToken(tc.header)
		if ok != tc.ok {
			t.Fatalf("ValidateToken(%q) ok=%v want %v", tc.header, ok, tc.ok)
		}
		if ok && tok != hex32 {
			t.Fatalf("token=%q", tok)
		}
	}
}

func TestTokenGeneratorShape(t *testing.T) {
	for _, gen := range []TokenGenerator{NewTokenGenerator(), NewSeededTokenGenerator(1, 2)} {
		seen := map[string]bool{}
		for i := 0; i < 500; i++ {
			tok := gen.NewToken()
			if !validToken(tok) {
				t.Fatalf("bad token %q", tok)
			}
			if seen[tok] {
				t.Fatalf("duplicate token %q", tok)
			}
			seen[tok] = true
		}
	}
	a := NewSeededTokenGenerator(5, 6).NewToken()
	b := NewSeededTokenGenerator(5, 6).NewToken()
	if a != b {
		t.Fatalf("seeded generators differ: %s %s", a, b)
	}
}

// fixedTokens replays a list, to force collisions.
type fixedTokens struct {
	list []string
	i    int
}

func (f *fixedTokens) NewToken() string {
	tok := f.list[f.i%len(f.list)]
	f.i++
	return tok
}

func newSession(t *testing.T, id string) *world.Session {
	t.Helper()
	x1 := 10
	return world.NewSession(world.SessionConfig{
		Map: &catalogs.MapDef{
			ID:        id,
			Roads:     []catalogs.RoadDef{{X1: &x1}},
			LootTypes: []catalogs.LootType{{Value: 1}},
		},
		Rand: rand.New(rand.NewSource(1)),
	})
}

func TestAddPlayerSkipsTakenTokens(t *testing.T) {
	a := strings.Repeat("a", 32)
	b := strings.Repeat("b", 32)
	dir := NewDirectory(&fixedTokens{list: []string{a, a, b}})
	s := newSession(t, "m")
	p1 := dir.AddPlayer(s, s.AddDog("x", false).ID)
	p2 := dir.AddPlayer(s, s.AddDog("y", false).ID)
	if p1.Token != a || p2.Token != b {
		t.Fatalf("tokens %s %s", p1.Token, p2.Token)
	}
	if got, ok := dir.Find(b); !ok || got.Dog().Name != "y" {
		t.Fatalf("Find(b) mismatch")
	}
	if _, ok := dir.Find("missing"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestPlayersInSession(t *testing.T) {
	dir := NewDirectory(NewSeededTokenGenerator(1, 2))
	s1, s2 := newSession(t, "a"), newSession(t, "b")
	for i := 0; i < 3; i++ {
		dir.AddPlayer(s1, s1.AddDog("a", false).ID)
	}
	dir.AddPlayer(s2, s2.AddDog("b", false).ID)
	got := dir.PlayersInSession(s1)
	if len(got) != 3 || got[0].DogID != 0 || got[2].DogID != 2 {
		t.Fatalf("players=%+v", got)
	}
	if len(dir.PlayersInSession(s2)) != 1 || dir.Len() != 4 {
		t.Fatalf("directory size mismatch")
	}
}

func TestSendIntoRetirementExactlyOnce(t *testing.T) {
	dir := NewDirectory(NewSeededTokenGenerator(3, 4))
	s := newSession(t, "m")
	idle := s.AddDog("idle", false)
	busy := s.AddDog("busy", false)
	edge := s.AddDog("edge", false)
	pIdle := dir.AddPlayer(s, idle.ID)
	dir.AddPlayer(s, busy.ID)
	dir.AddPlayer(s, edge.ID)

	idle.Score = 40
	busy.Steer(world.DirRight, 1)
	s.MoveDogs(9 * time.Second)
	busy.Steer(world.DirLeft, 1)
	s.MoveDogs(time.Second)
	edge.Idle = 10*time.Second - time.Millisecond

	recs := dir.SendIntoRetirement(10 * time.Second)
	if len(recs) != 1 || recs[0].Name != "idle" || recs[0].Score != 40 || recs[0].PlayTime != 10*time.Second {
		t.Fatalf("records=%+v", recs)
	}
	if recs[0].MapID != "m" || recs[0].DogID != idle.ID {
		t.Fatalf("record not tagged with map and dog: %+v", recs[0])
	}
	if s.FindDog(idle.ID) != nil {
		t.Fatalf("retired dog still in session")
	}
	if _, ok := dir.Find(pIdle.Token); ok {
		t.Fatalf("retired token still bound")
	}
	if again := dir.SendIntoRetirement(10 * time.Second); len(again) != 0 {
		t.Fatalf("retired twice: %+v", again)
	}
	if dir.Len() != 2 || len(s.Dogs()) != 2 {
		t.Fatalf("len=%d dogs=%d", dir.Len(), len(s.Dogs()))
	}
	edge.Idle += time.Millisecond
	if recs := dir.SendIntoRetirement(10 * time.Second); len(recs) != 1 || recs[0].Name != "edge" {
		t.Fatalf("threshold boundary: %+v", recs)
	}
}

func TestRestoreAndExport(t *testing.T) {
	s := newSession(t, "m")
	d := s.AddDog("x", false)
	dir := NewDirectory(nil)
	tok := strings.Repeat("0f", 16)
	if err := dir.Restore(tok, s, d.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := dir.Restore(tok, s, d.ID); err == nil {
		t.Fatalf("expected duplicate token error")
	}
	if err := dir.Restore(strings.Repeat("1", 32), s, 99); err == nil {
		t.Fatalf("expected unknown dog error")
	}
	if err := dir.Restore("short", s, d.ID); err == nil {
		t.Fatalf("expected malformed token error")
	}
	snap := dir.ExportSnapshot()
	if len(snap) != 1 || snap[0].Token != tok || snap[0].MapID != "m" || snap[0].DogID != d.ID {
		t.Fatalf("snapshot=%+v", snap)
	}
}
