package main

import (
	"fmt"
	"net/http"

	"avatarsim.ai/internal/persistence/indexdb"
	persistlog "avatarsim.ai/internal/persistence/log"
	"avatarsim.ai/internal/sim/clock"
	"avatarsim.ai/internal/sim/schedule"
	"avatarsim.ai/internal/sim/world"
)

type metricsSources struct {
	store   *world.Store
	clock   *clock.Clock
	sched   *schedule.Scheduler
	archive *persistlog.EventArchive
	index   *indexdb.SQLiteIndex
}

func metricsHandler(src metricsSources) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		w := src.store.Snapshot()
		active := 0
		for i := range w.Conversations {
			if w.Conversations[i].Active() {
				active++
			}
		}
		running := 0
		if w.Running {
			running = 1
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP avatarsim_world_version Published world version.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_world_version counter\n")
		fmt.Fprintf(rw, "avatarsim_world_version %d\n", w.Version)

		fmt.Fprintf(rw, "# HELP avatarsim_world_running Whether the simulation clock is running.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_world_running gauge\n")
		fmt.Fprintf(rw, "avatarsim_world_running{mode=%q} %d\n", string(w.Settings.Mode), running)

		fmt.Fprintf(rw, "# HELP avatarsim_world_entities Current number of entities by kind.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_world_entities gauge\n")
		fmt.Fprintf(rw, "avatarsim_world_entities{kind=%q} %d\n", "avatar", len(w.Avatars))
		fmt.Fprintf(rw, "avatarsim_world_entities{kind=%q} %d\n", "object", len(w.Objects))
		fmt.Fprintf(rw, "avatarsim_world_entities{kind=%q} %d\n", "obstacle", len(w.Obstacles))

		fmt.Fprintf(rw, "# HELP avatarsim_conversations_active Active conversations.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_conversations_active gauge\n")
		fmt.Fprintf(rw, "avatarsim_conversations_active %d\n", active)

		fmt.Fprintf(rw, "# HELP avatarsim_event_log_seq Sequence number of the newest event log entry.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_event_log_seq counter\n")
		fmt.Fprintf(rw, "avatarsim_event_log_seq %d\n", w.LogSeq)

		fmt.Fprintf(rw, "# HELP avatarsim_clock_ticks_total Clock ticks run.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_clock_ticks_total counter\n")
		fmt.Fprintf(rw, "avatarsim_clock_ticks_total %d\n", src.clock.Ticks())

		decisions, failures := src.sched.Stats()
		fmt.Fprintf(rw, "# HELP avatarsim_decisions_total Decision cycles run.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_decisions_total counter\n")
		fmt.Fprintf(rw, "avatarsim_decisions_total %d\n", decisions)
		fmt.Fprintf(rw, "# HELP avatarsim_decision_failures_total Decision cycles that fell back to idle.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_decision_failures_total counter\n")
		fmt.Fprintf(rw, "avatarsim_decision_failures_total %d\n", failures)

		written, dropped := src.archive.Stats()
		fmt.Fprintf(rw, "# HELP avatarsim_archive_entries_total Event log entries by archive outcome.\n")
		fmt.Fprintf(rw, "# TYPE avatarsim_archive_entries_total counter\n")
		fmt.Fprintf(rw, "avatarsim_archive_entries_total{outcome=%q} %d\n", "written", written)
		fmt.Fprintf(rw, "avatarsim_archive_entries_total{outcome=%q} %d\n", "dropped", dropped)

		writeIndexMetrics(rw, src.index)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP avatarsim_index_queue_depth Current history index queue depth.\n")
	fmt.Fprintf(rw, "# TYPE avatarsim_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "avatarsim_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP avatarsim_index_queue_capacity History index queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE avatarsim_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "avatarsim_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP avatarsim_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE avatarsim_index_dropped_total counter\n")
	fmt.Fprintf(rw, "avatarsim_index_dropped_total{kind=%q} %d\n", "event", s.DropEventTotal)
	fmt.Fprintf(rw, "avatarsim_index_dropped_total{kind=%q} %d\n", "conversation", s.DropConversationTotal)
	fmt.Fprintf(rw, "avatarsim_index_dropped_total{kind=%q} %d\n", "save", s.DropSaveTotal)
}
