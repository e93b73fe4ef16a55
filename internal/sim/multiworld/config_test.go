package multiworld

import (
	"testing"
	"time"

	"lootdogs.ai/internal/sim/tuning"
	"lootdogs.ai/internal/sim/world/logic/lootgen"
)

func TestConfigFromTuning(t *testing.T) {
	tu := tuning.Defaults()
	tu.RandomizeSpawnPoints = true
	cfg := ConfigFromTuning(tu)
	if cfg.Loot != (lootgen.Config{Period: 5 * time.Second, Probability: 0.5}) {
		t.Fatalf("loot=%+v", cfg.Loot)
	}
	if !cfg.RandomizeSpawn || cfg.RetirementTime != time.Minute || cfg.DefaultBagCapacity != 3 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{Loot: lootgen.Config{Period: time.Second, Probability: 0.1}}
	cfg.Normalize()
	if cfg.DefaultDogSpeed != 1 || cfg.DefaultBagCapacity != 3 || cfg.RetirementTime != time.Minute {
		t.Fatalf("cfg=%+v", cfg)
	}
	bad := Config{Loot: lootgen.Config{Period: 0, Probability: 0.1}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected zero period error")
	}
	bad = Config{Loot: lootgen.Config{Period: time.Second, Probability: 2}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected probability error")
	}
}
