package tuning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// TickPeriod drives automatic ticks; 0 means ticks only arrive through
	// the tick endpoint.
	TickPeriod           time.Duration `yaml:"tick_period"`
	RandomizeSpawnPoints bool          `yaml:"randomize_spawn_points"`
	SavePeriod           time.Duration `yaml:"save_period"`

	RetirementTime time.Duration `yaml:"dog_retirement_time"`
	LootGenerator  LootGenerator `yaml:"loot_generator"`

	DefaultDogSpeed    float64 `yaml:"default_dog_speed"`
	DefaultBagCapacity int     `yaml:"default_bag_capacity"`

	DBPoolSize int `yaml:"db_pool_size"`
}

type LootGenerator struct {
	Period      time.Duration `yaml:"period"`
	Probability float64       `yaml:"probability"`
}

func Defaults() Tuning {
	return Tuning{
		RetirementTime: time.Minute,
		LootGenerator: LootGenerator{
			Period:      5 * time.Second,
			Probability: 0.5,
		},
		DefaultDogSpeed:    1,
		DefaultBagCapacity: 3,
		DBPoolSize:         4,
	}
}

// Load reads tuning.yaml on top of Defaults. A missing file or empty path
// yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickPeriod < 0 {
		return fmt.Errorf("tick_period must be >= 0")
	}
	if t.SavePeriod < 0 {
		return fmt.Errorf("save_period must be >= 0")
	}
	if t.RetirementTime <= 0 {
		return fmt.Errorf("dog_retirement_time must be > 0")
	}
	if t.LootGenerator.Period <= 0 {
		return fmt.Errorf("loot_generator.period must be > 0")
	}
	if t.LootGenerator.Probability < 0 || t.LootGenerator.Probability > 1 {
		return fmt.Errorf("loot_generator.probability must be in [0, 1]")
	}
	if t.DefaultDogSpeed <= 0 {
		return fmt.Errorf("default_dog_speed must be > 0")
	}
	if t.DefaultBagCapacity < 0 {
		return fmt.Errorf("default_bag_capacity must be >= 0")
	}
	if t.DBPoolSize <= 0 {
		return fmt.Errorf("db_pool_size must be > 0")
	}
	return nil
}

// Watch reloads path whenever it is written or replaced and passes every
// valid result to apply. Invalid files are logged and skipped. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, path string, logger *log.Logger, apply func(Tuning)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors and deploy tools replace files by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	name := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			t, err := Load(path)
			if err != nil {
				if logger != nil {
					logger.Printf("tuning reload: %v", err)
				}
				continue
			}
			apply(t)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("tuning watch: %v", err)
			}
		}
	}
}
