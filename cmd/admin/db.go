package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"avatarsim.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	avatar := fs.String("avatar", "", "avatar filter (conversations)")
	conv := fs.String("conversation", "", "conversation id (messages)")
	after := fs.Uint64("after", 0, "seq cursor (events)")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "history.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rows []any
	switch q {
	case "saves":
		rs, err := idx.Saves(ctx, *limit)
		exitOn(err)
		for _, r := range rs {
			rows = append(rows, r)
		}
	case "events":
		rs, err := idx.Events(ctx, *after, *limit)
		exitOn(err)
		for _, r := range rs {
			rows = append(rows, r)
		}
	case "conversations":
		rs, err := idx.Conversations(ctx, *avatar, *limit)
		exitOn(err)
		for _, r := range rs {
			rows = append(rows, r)
		}
	case "messages":
		if *conv == "" {
			fmt.Fprintln(os.Stderr, "missing -conversation")
			os.Exit(2)
		}
		rs, err := idx.Messages(ctx, *conv)
		exitOn(err)
		for _, r := range rs {
			rows = append(rows, r)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (saves, events, conversations, messages)\n", q)
		os.Exit(2)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}
