package lootgen

import (
	"testing"
	"time"
)

func TestGenerate_SinglePeriodHalfProbability(t *testing.T) {
	g := New(Config{Period: 5 * time.Second, Probability: 0.5})
	if got := g.Generate(5*time.Second, 0, 1); got != 1 {
		t.Fatalf("Generate=%d want 1", got)
	}
	if g.Accumulated() != 0 {
		t.Fatalf("accumulated=%v want reset", g.Accumulated())
	}
}

func TestGenerate_NoShortage(t *testing.T) {
	g := New(Config{Period: time.Second, Probability: 1})
	for _, tc := range []struct{ loot, looters int }{{0, 0}, {3, 3}, {5, 2}} {
		if got := g.Generate(10*time.Second, tc.loot, tc.looters); got != 0 {
			t.Fatalf("loot=%d looters=%d: got %d want 0", tc.loot, tc.looters, got)
		}
	}
	if g.Accumulated() != 0 {
		t.Fatalf("accumulated=%v want reset after evaluation", g.Accumulated())
	}
}

func TestGenerate_ResetsAfterEveryEvaluation(t *testing.T) {
	g := New(Config{Period: 5 * time.Second, Probability: 0.5})
	for i := 0; i < 10; i++ {
		if got := g.Generate(5*time.Second, 3, 3); got != 0 {
			t.Fatalf("no shortage: got %d", got)
		}
	}
	// 1-0.5^(0.1/5) is about 0.0138, so a shortage of 3 rounds up to one item.
	if got := g.Generate(100*time.Millisecond, 0, 3); got != 1 {
		t.Fatalf("short tick after full ground: got %d want 1", got)
	}
}

func TestGenerate_RestoredTimeCountsOnce(t *testing.T) {
	g := New(Config{Period: time.Second, Probability: 1})
	g.Restore(time.Second)
	if got := g.Generate(0, 0, 2); got != 2 {
		t.Fatalf("got %d want 2", got)
	}
	if g.Accumulated() != 0 {
		t.Fatalf("accumulated=%v want 0", g.Accumulated())
	}
}

func TestGenerate_NeverExceedsShortage(t *testing.T) {
	g := New(Config{Period: time.Second, Probability: 1})
	if got := g.Generate(time.Hour, 1, 4); got != 3 {
		t.Fatalf("got %d want 3", got)
	}
}

func TestGenerate_ZeroProbabilityAndZeroDelta(t *testing.T) {
	g := New(Config{Period: time.Second, Probability: 0})
	if got := g.Generate(time.Minute, 0, 10); got != 0 {
		t.Fatalf("p=0: got %d", got)
	}
	g = New(Config{Period: time.Second, Probability: 0.5})
	if got := g.Generate(0, 0, 10); got != 0 {
		t.Fatalf("delta=0: got %d", got)
	}
}

func TestGenerate_ProbabilityClamped(t *testing.T) {
	g := New(Config{Period: time.Second, Probability: 7})
	if got := g.Generate(time.Second, 0, 2); got != 2 {
		t.Fatalf("got %d want 2", got)
	}
	g = New(Config{Period: time.Second, Probability: -3})
	if got := g.Generate(time.Second, 0, 2); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}
