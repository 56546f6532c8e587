package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"avatarsim.ai/internal/sim/world"
)

// Recorder is told about every snapshot written.
type Recorder interface {
	RecordSave(path string, snap SnapshotV1)
}

type SaverConfig struct {
	Dir      string
	Interval time.Duration
	// Retain is how many snapshots to keep; 0 keeps all.
	Retain int
}

// Saver periodically writes the store's projection when it changed since the
// last save.
type Saver struct {
	store *world.Store
	cfg   SaverConfig
	rec   Recorder
	log   *zap.Logger

	mu        sync.Mutex
	seq       uint64
	lastSaved uint64
	saved     bool
}

func NewSaver(store *world.Store, cfg SaverConfig, rec Recorder) *Saver {
	_, seq := Latest(cfg.Dir)
	return &Saver{store: store, cfg: cfg, rec: rec, log: store.Logger().Named("snapshot"), seq: seq}
}

// Run autosaves every Interval until ctx is done, then writes a final
// snapshot if anything changed.
func (s *Saver) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		<-ctx.Done()
		_, _ = s.saveIfChanged()
		return ctx.Err()
	}
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := s.saveIfChanged(); err != nil {
				s.log.Error("final save", zap.Error(err))
			}
			return ctx.Err()
		case <-t.C:
			if _, err := s.saveIfChanged(); err != nil {
				s.log.Error("autosave", zap.Error(err))
			}
		}
	}
}

func (s *Saver) saveIfChanged() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.store.Snapshot()
	if s.saved && w.Version == s.lastSaved {
		return "", nil
	}
	return s.saveLocked(w)
}

// Save writes a snapshot now and returns its path.
func (s *Saver) Save() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(s.store.Snapshot())
}

func (s *Saver) saveLocked(w *world.World) (string, error) {
	snap := Project(w)
	s.seq++
	snap.Header.Seq = s.seq
	snap.Header.SavedAt = s.store.Now().UTC()
	path := PathFor(s.cfg.Dir, s.seq)
	if err := WriteSnapshot(path, snap); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	s.saved, s.lastSaved = true, w.Version
	s.log.Info("snapshot saved", zap.String("path", path), zap.Uint64("version", w.Version))
	if s.rec != nil {
		s.rec.RecordSave(path, snap)
	}
	if removed, err := Prune(s.cfg.Dir, s.cfg.Retain); err != nil {
		s.log.Warn("prune snapshots", zap.Error(err))
	} else if len(removed) > 0 {
		s.log.Debug("pruned snapshots", zap.Strings("paths", removed))
	}
	return path, nil
}

// Resume loads the world to start from: explicit when set, otherwise the
// newest snapshot in dir when latest is true. It returns a nil world when
// there is nothing to resume or the snapshot is unusable; err reports the
// latter so callers can start fresh and surface a warning.
func Resume(log *zap.Logger, p world.Params, dir, explicit string, latest bool, now time.Time) (*world.World, string, error) {
	path := explicit
	if path == "" && latest {
		path, _ = Latest(dir)
	}
	if path == "" {
		return nil, "", nil
	}
	snap, err := ReadSnapshot(path)
	if err == nil {
		var w *world.World
		if w, err = Restore(snap, p, now); err == nil {
			log.Info("resumed from snapshot", zap.String("path", path), zap.Int("avatars", len(w.Avatars)))
			return w, path, nil
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot not found, starting fresh", zap.String("path", path))
	} else {
		log.Warn("snapshot unusable, starting fresh", zap.String("path", path), zap.Error(err))
	}
	return nil, path, fmt.Errorf("resume %s: %w", path, err)
}
