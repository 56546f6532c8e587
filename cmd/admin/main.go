package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "avatarsim.ai/internal/persistence/log"
	"avatarsim.ai/internal/persistence/snapshot"
	"avatarsim.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "cmd":
			commandCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the saved snapshots, newest last.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "saves")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".snap.zst") {
			fmt.Println(filepath.Join(dir, e.Name()))
		}
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	full := fs.Bool("full", false, "print the whole snapshot as JSON")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path, _ = snapshot.Latest(filepath.Join(*dataDir, "saves"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshots found")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if *full {
		printJSON(snap)
		return
	}
	fmt.Printf("snapshot v%d seq=%d saved=%s mode=%s board=%.0fx%.0f avatars=%d objects=%d obstacles=%d conversations=%d\n",
		snap.Header.Version, snap.Header.Seq, snap.Header.SavedAt.Format("2006-01-02T15:04:05Z07:00"),
		snap.Settings.Mode, snap.Settings.BoardSize.Width, snap.Settings.BoardSize.Height,
		len(snap.Avatars), len(snap.Objects), len(snap.Obstacles), len(snap.Conversations))
	if _, err := snapshot.Restore(snap, world.DefaultParams(), snap.Header.SavedAt); err != nil {
		fmt.Fprintln(os.Stderr, "snapshot would not restore:", err)
		os.Exit(1)
	}
}

// eventsCmd prints archived event log entries, optionally filtered.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	avatar := fs.String("avatar", "", "only entries about this avatar")
	level := fs.String("level", "", "minimum level (debug, info, warning, error)")
	after := fs.Uint64("after", 0, "only entries with seq > after")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadEvents(filepath.Join(*dataDir, "events"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	minRank := levelRank(world.Level(*level))
	for _, e := range filterEvents(entries, *avatar, minRank, *after) {
		printJSON(e)
	}
}

func filterEvents(entries []world.LogEntry, avatar string, minRank int, after uint64) []world.LogEntry {
	var out []world.LogEntry
	for _, e := range entries {
		if e.Seq <= after {
			continue
		}
		if avatar != "" && e.AvatarID != avatar {
			continue
		}
		if levelRank(e.Level) < minRank {
			continue
		}
		out = append(out, e)
	}
	return out
}

func levelRank(l world.Level) int {
	switch l {
	case world.LevelInfo:
		return 1
	case world.LevelWarning:
		return 2
	case world.LevelError:
		return 3
	default:
		return 0
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
