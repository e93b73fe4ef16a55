package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lootdogs.ai/internal/persistence/leaderboard"
	persistlog "lootdogs.ai/internal/persistence/log"
	"lootdogs.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "records":
			recordsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin records|snapshot|events|state|save [flags]")
	os.Exit(2)
}

func recordsCmd(args []string) {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "leaderboard sqlite path (default: <data>/leaderboard.sqlite)")
	offset := fs.Int("start", 0, "first row")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "leaderboard.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	store, err := leaderboard.Open(path, 1, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recs, err := store.List(ctx, *offset, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for i, r := range recs {
		printJSON(recordRow{
			Rank:     *offset + i + 1,
			Name:     r.Name,
			Score:    r.Score,
			PlayTime: r.PlayTime.Seconds(),
		})
	}
}

type recordRow struct {
	Rank     int     `json:"rank"`
	Name     string  `json:"name"`
	Score    int     `json:"score"`
	PlayTime float64 `json:"play_time_s"`
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("file", "", "snapshot file (required)")
	headerOnly := fs.Bool("header", false, "print only the header")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	if *headerOnly {
		h, err := snapshot.ReadHeader(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type sessionSummary struct {
	MapID      string `json:"map_id"`
	Dogs       int    `json:"dogs"`
	Loot       int    `json:"loot"`
	Carried    int    `json:"carried"`
	TotalScore int    `json:"total_score"`
	TopDog     string `json:"top_dog,omitempty"`
}

type snapshotSummary struct {
	Header   snapshot.Header  `json:"header"`
	Sessions []sessionSummary `json:"sessions"`
	Orphans  int              `json:"orphan_players"`
}

// summarize counts per-session contents and players whose dog is missing.
func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	out := snapshotSummary{Header: snap.Header}
	dogs := map[string]map[uint64]bool{}
	for _, s := range snap.Sessions {
		sum := sessionSummary{MapID: s.MapID, Dogs: len(s.Dogs), Loot: len(s.Loot)}
		best := -1
		ids := map[uint64]bool{}
		for _, d := range s.Dogs {
			ids[d.ID] = true
			sum.Carried += len(d.Bag)
			sum.TotalScore += d.Score
			if d.Score > best {
				best = d.Score
				sum.TopDog = d.Name
			}
		}
		dogs[s.MapID] = ids
		out.Sessions = append(out.Sessions, sum)
	}
	sort.Slice(out.Sessions, func(i, j int) bool { return out.Sessions[i].MapID < out.Sessions[j].MapID })
	for _, p := range snap.Players {
		if !dogs[p.MapID][p.DogID] {
			out.Orphans++
		}
	}
	return out
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "only this event kind (join, retire, snapshot)")
	mapID := fs.String("map", "", "only events of this map")
	_ = fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		var err error
		files, err = eventFiles(filepath.Join(*dataDir, "events"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e persistlog.Event
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if *kind != "" && e.Kind != *kind {
				return nil
			}
			if *mapID != "" && e.MapID != *mapID {
				return nil
			}
			fmt.Println(string(line))
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read events:", err)
			os.Exit(1)
		}
	}
}

// eventFiles lists hourly event logs oldest first.
func eventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
