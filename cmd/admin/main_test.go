package main

import (
	"testing"

	"avatarsim.ai/internal/sim/world"
)

func TestFilterEvents(t *testing.T) {
	entries := []world.LogEntry{
		{Seq: 1, Level: world.LevelDebug, AvatarID: "a"},
		{Seq: 2, Level: world.LevelInfo, AvatarID: "b"},
		{Seq: 3, Level: world.LevelWarning, AvatarID: "a"},
		{Seq: 4, Level: world.LevelError},
	}

	if got := filterEvents(entries, "", 0, 0); len(got) != 4 {
		t.Fatalf("unfiltered=%d", len(got))
	}
	if got := filterEvents(entries, "a", 0, 0); len(got) != 2 || got[1].Seq != 3 {
		t.Fatalf("avatar filter=%+v", got)
	}
	if got := filterEvents(entries, "", levelRank(world.LevelWarning), 0); len(got) != 2 || got[0].Seq != 3 {
		t.Fatalf("level filter=%+v", got)
	}
	if got := filterEvents(entries, "", 0, 2); len(got) != 2 || got[0].Seq != 3 {
		t.Fatalf("after filter=%+v", got)
	}
}
