package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"avatarsim.ai/internal/sim/world"
)

const eventPrefix = "events"

// EventArchive is a store commit hook that appends every new event log
// entry to hourly JSONL files. Writes happen on a background goroutine;
// when it falls behind, batches are dropped and counted.
type EventArchive struct {
	w   *JSONLZstdWriter
	log *zap.Logger

	mu     sync.Mutex
	closed bool
	ch     chan []world.LogEntry
	done   chan struct{}
	once   sync.Once

	dropped atomic.Uint64
	written atomic.Uint64
}

func NewEventArchive(dir string, logger *zap.Logger) *EventArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &EventArchive{
		w:    NewJSONLZstdWriter(dir, eventPrefix),
		log:  logger.Named("archive"),
		ch:   make(chan []world.LogEntry, 1024),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *EventArchive) Commit(prev, next *world.World) {
	var after uint64
	if prev != nil {
		after = prev.LogSeq
	}
	entries := next.LogAfter(after)
	if len(entries) == 0 {
		return
	}
	batch := append([]world.LogEntry(nil), entries...)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- batch:
	default:
		a.dropped.Add(uint64(len(batch)))
	}
}

func (a *EventArchive) loop() {
	defer close(a.done)
	for batch := range a.ch {
		for _, e := range batch {
			if err := a.w.Write(e); err != nil {
				a.log.Error("write event", zap.Error(err))
				continue
			}
			a.written.Add(1)
		}
		if len(a.ch) == 0 {
			if err := a.w.Flush(); err != nil {
				a.log.Warn("flush events", zap.Error(err))
			}
		}
	}
}

// Stats reports entries written and dropped so far.
func (a *EventArchive) Stats() (written, dropped uint64) {
	return a.written.Load(), a.dropped.Load()
}

// Close drains pending batches and closes the current file.
func (a *EventArchive) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		<-a.done
		err = a.w.Close()
		if d := a.dropped.Load(); d > 0 {
			a.log.Warn("event archive dropped entries", zap.Uint64("dropped", d))
		}
	})
	return err
}

// ReadEvents returns every archived entry under dir in file order.
func ReadEvents(dir string) ([]world.LogEntry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), eventPrefix+"-") && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []world.LogEntry
	for _, n := range names {
		err := ReadJSONL(filepath.Join(dir, n), func(line []byte) error {
			var e world.LogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
