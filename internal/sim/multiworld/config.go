package multiworld

import (
	"fmt"
	"time"

	"lootdogs.ai/internal/sim/tuning"
	"lootdogs.ai/internal/sim/world"
	"lootdogs.ai/internal/sim/world/logic/lootgen"
)

// Config holds the settings shared by every session of the registry.
type Config struct {
	Loot           lootgen.Config
	RetirementTime time.Duration
	RandomizeSpawn bool

	DefaultDogSpeed    float64
	DefaultBagCapacity int
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		Loot: lootgen.Config{
			Period:      t.LootGenerator.Period,
			Probability: t.LootGenerator.Probability,
		},
		RetirementTime:     t.RetirementTime,
		RandomizeSpawn:     t.RandomizeSpawnPoints,
		DefaultDogSpeed:    t.DefaultDogSpeed,
		DefaultBagCapacity: t.DefaultBagCapacity,
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.DefaultDogSpeed <= 0 {
		c.DefaultDogSpeed = world.DefaultDogSpeed
	}
	if c.DefaultBagCapacity <= 0 {
		c.DefaultBagCapacity = world.DefaultBagCapacity
	}
	if c.RetirementTime <= 0 {
		c.RetirementTime = time.Minute
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.Loot.Period <= 0 {
		return fmt.Errorf("loot period must be > 0")
	}
	if c.Loot.Probability < 0 || c.Loot.Probability > 1 {
		return fmt.Errorf("loot probability must be in [0, 1]")
	}
	return nil
}
