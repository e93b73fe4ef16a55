package tuning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("got %+v want defaults", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := `
tick_period: 50ms
randomize_spawn_points: true
dog_retirement_time: 15s
loot_generator:
  period: 2s
  probability: 0.25
default_bag_capacity: 5
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickPeriod != 50*time.Millisecond || !got.RandomizeSpawnPoints || got.RetirementTime != 15*time.Second {
		t.Fatalf("unexpected tuning: %+v", got)
	}
	if got.LootGenerator.Period != 2*time.Second || got.LootGenerator.Probability != 0.25 {
		t.Fatalf("loot generator: %+v", got.LootGenerator)
	}
	if got.DefaultBagCapacity != 5 || got.DefaultDogSpeed != 1 || got.DBPoolSize != 4 {
		t.Fatalf("defaults not kept: %+v", got)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Tuning){
		"negative tick":     func(t *Tuning) { t.TickPeriod = -1 },
		"zero retirement":   func(t *Tuning) { t.RetirementTime = 0 },
		"zero loot period":  func(t *Tuning) { t.LootGenerator.Period = 0 },
		"probability > 1":   func(t *Tuning) { t.LootGenerator.Probability = 1.5 },
		"zero speed":        func(t *Tuning) { t.DefaultDogSpeed = 0 },
		"zero pool":         func(t *Tuning) { t.DBPoolSize = 0 },
		"negative capacity": func(t *Tuning) { t.DefaultBagCapacity = -1 },
	}
	for name, mutate := range tests {
		tu := Defaults()
		mutate(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestWatchAppliesRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("dog_retirement_time: 10s\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Tuning, 8)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, nil, func(t Tuning) { got <- t }) }()

	// Rewrite until the watcher is registered and reports the change.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case tu := <-got:
			// A read can race a truncating write; wait for the full file.
			if tu.RetirementTime != 20*time.Second {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("dog_retirement_time: 20s\n"), 0o644); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}

func TestLoadShippedTuning(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("shipped tuning invalid: %v", err)
	}
	if got.LootGenerator.Period != 5*time.Second || got.RetirementTime != time.Minute {
		t.Fatalf("tuning=%+v", got)
	}
}
