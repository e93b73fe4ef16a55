package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	SavedAt  int64  `json:"saved_at_unix_ms"`
	Sessions int    `json:"sessions"`
	Players  int    `json:"players"`
	MapsHash string `json:"maps_digest,omitempty"`
}

// SnapshotV1 is the whole persisted game state.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Sessions []SessionV1 `json:"sessions"`
	Players  []PlayerV1  `json:"players"`
}

type SessionV1 struct {
	MapID    string `json:"map_id"`
	NextDog  uint64 `json:"next_dog"`
	NextLoot uint64 `json:"next_loot"`

	// Time accumulated by the loot generator since it last produced items.
	LootAccumulatedMS int64 `json:"loot_accumulated_ms"`

	Dogs []DogV1  `json:"dogs"`
	Loot []LootV1 `json:"loot"`
}

type DogV1 struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Pos         [2]float64 `json:"pos"`
	PrevPos     [2]float64 `json:"prev_pos"`
	Speed       [2]float64 `json:"speed"`
	Dir         string     `json:"dir"`
	Bag         []LootV1   `json:"bag"`
	BagCapacity int        `json:"bag_capacity"`
	Score       int        `json:"score"`
	PlayTimeMS  int64      `json:"play_time_ms"`
	IdleMS      int64      `json:"idle_ms"`
}

type LootV1 struct {
	ID    uint64     `json:"id"`
	Type  int        `json:"type"`
	Value int        `json:"value"`
	Pos   [2]float64 `json:"pos"`
}

type PlayerV1 struct {
	Token string `json:"token"`
	MapID string `json:"map_id"`
	DogID uint64 `json:"dog_id"`
}

// WriteSnapshot writes to a temporary file next to path and renames it into
// place, so a crash never leaves a truncated state file behind.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is informational; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
