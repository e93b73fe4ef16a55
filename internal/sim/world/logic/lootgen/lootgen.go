package lootgen

import (
	"math"
	"time"

	"lootdogs.ai/internal/sim/world/logic/mathx"
)

// Config describes the spawn model: during every Period each missing item
// appears with Probability.
type Config struct {
	Period      time.Duration `json:"period" yaml:"period"`
	Probability float64       `json:"probability" yaml:"probability"`
}

// Generator accumulates time between spawns. It is not safe for concurrent use.
type Generator struct {
	cfg             Config
	timeWithoutLoot time.Duration
}

func New(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

func (g *Generator) Config() Config { return g.cfg }

// SetConfig swaps the spawn model; the accumulated time is kept.
func (g *Generator) SetConfig(cfg Config) { g.cfg = cfg }

// Accumulated is the time not yet consumed by an evaluation. It is zero
// after every Generate call and non-zero only after Restore.
func (g *Generator) Accumulated() time.Duration { return g.timeWithoutLoot }

// Restore sets the accumulated time (snapshot restore).
func (g *Generator) Restore(acc time.Duration) {
	if acc < 0 {
		acc = 0
	}
	g.timeWithoutLoot = acc
}

// Generate returns how many items to add after delta elapsed, given the
// current number of items on the ground and the number of looters. Every
// call consumes the accumulated time, whether or not anything spawns.
func (g *Generator) Generate(delta time.Duration, lootCount, looterCount int) int {
	if delta > 0 {
		g.timeWithoutLoot += delta
	}
	elapsed := g.timeWithoutLoot
	g.timeWithoutLoot = 0

	shortage := looterCount - lootCount
	if shortage <= 0 || g.cfg.Period <= 0 {
		return 0
	}
	ratio := float64(elapsed) / float64(g.cfg.Period)
	p := mathx.Clamp01(g.cfg.Probability)
	chance := mathx.Clamp01(1 - math.Pow(1-p, ratio))
	n := int(math.Ceil(chance * float64(shortage)))
	if n > shortage {
		n = shortage
	}
	return n
}
