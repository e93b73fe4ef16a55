package world

import (
	"time"

	"lootdogs.ai/internal/sim/world/logic/mathx"
)

const (
	DogRadius    = 0.3
	LootRadius   = 0.0
	OfficeRadius = 0.25

	DefaultBagCapacity = 3
	DefaultDogSpeed    = 1.0
)

// Direction is a movement command and also the facing of a dog.
type Direction string

const (
	DirUp    Direction = "U"
	DirDown  Direction = "D"
	DirLeft  Direction = "L"
	DirRight Direction = "R"
	DirStop  Direction = ""
)

func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case DirUp, DirDown, DirLeft, DirRight, DirStop:
		return d, true
	default:
		return DirStop, false
	}
}

// Velocity returns the velocity for moving in d at speed. Y grows downwards.
func (d Direction) Velocity(speed float64) mathx.Vec2 {
	switch d {
	case DirUp:
		return mathx.Vec2{Y: -speed}
	case DirDown:
		return mathx.Vec2{Y: speed}
	case DirLeft:
		return mathx.Vec2{X: -speed}
	case DirRight:
		return mathx.Vec2{X: speed}
	default:
		return mathx.Vec2{}
	}
}

type Loot struct {
	ID       uint64
	Type     int
	Value    int
	Pos      mathx.Vec2
	Captured bool
}

// Dog is owned by exactly one Session.
type Dog struct {
	ID      uint64
	Name    string
	Pos     mathx.Vec2
	PrevPos mathx.Vec2
	Speed   mathx.Vec2
	Facing  Direction
	Score   int

	PlayTime time.Duration
	Idle     time.Duration

	bag    []Loot
	bagCap int
}

func NewDog(id uint64, name string, pos mathx.Vec2, bagCapacity int) *Dog {
	return &Dog{
		ID:      id,
		Name:    name,
		Pos:     pos,
		PrevPos: pos,
		Facing:  DirUp,
		bagCap:  bagCapacity,
	}
}

func (d *Dog) BagCapacity() int { return d.bagCap }

// Bag returns a copy of the carried items in pickup order.
func (d *Dog) Bag() []Loot {
	out := make([]Loot, len(d.bag))
	copy(out, d.bag)
	return out
}

func (d *Dog) BagFull() bool { return len(d.bag) >= d.bagCap }

// AddLoot puts l into the bag. A full bag is left unchanged and false is
// returned.
func (d *Dog) AddLoot(l Loot) bool {
	if d.BagFull() {
		return false
	}
	l.Captured = true
	d.bag = append(d.bag, l)
	return true
}

// DepositBag banks the bag's value into the score and empties it.
func (d *Dog) DepositBag() int {
	sum := 0
	for _, l := range d.bag {
		sum += l.Value
	}
	d.Score += sum
	d.bag = d.bag[:0]
	return sum
}

// Steer applies a movement command. Stop keeps the current facing and does
// not count as activity.
func (d *Dog) Steer(dir Direction, speed float64) {
	d.Speed = dir.Velocity(speed)
	if dir == DirStop {
		return
	}
	d.Facing = dir
	d.Idle = 0
}
