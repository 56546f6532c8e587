package world

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CommitHook observes every published version. Hooks run under the store
// lock and must not block; slow consumers should queue and return.
type CommitHook interface {
	Commit(prev, next *World)
}

type CommitFunc func(prev, next *World)

func (f CommitFunc) Commit(prev, next *World) { f(prev, next) }

// Store is the single source of truth. Readers get immutable versions via
// Snapshot; writers derive the next version from the latest one via Update.
type Store struct {
	params Params
	log    *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cur   *World
	rng   *rand.Rand
	hooks []CommitHook

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
}

type StoreOption func(*Store)

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRand(r *rand.Rand) StoreOption {
	return func(s *Store) {
		if r != nil {
			s.rng = r
		}
	}
}

func WithHooks(h ...CommitHook) StoreOption {
	return func(s *Store) { s.hooks = append(s.hooks, h...) }
}

// NewStore wraps initial (a fresh default world when nil).
func NewStore(params Params, initial *World, opts ...StoreOption) *Store {
	s := &Store{
		params:   params,
		log:      zap.NewNop(),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		watchers: map[chan struct{}]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	if initial == nil {
		initial = params.NewWorld(s.now(), s.rng)
	} else {
		initial = initial.Clone()
	}
	initial.SetLogCapacity(params.LogCapacity)
	s.cur = initial
	return s
}

func (s *Store) Params() Params      { return s.params }
func (s *Store) Now() time.Time      { return s.now() }
func (s *Store) Logger() *zap.Logger { return s.log }

// AddHook registers h for subsequent commits.
func (s *Store) AddHook(h CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Snapshot returns the latest published version. The result must be treated
// as read-only.
func (s *Store) Snapshot() *World {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update applies fn to a private copy of the latest version and publishes
// it. When fn returns an error nothing is published.
func (s *Store) Update(fn func(w *World) error) (*World, error) {
	s.mu.Lock()
	next := s.cur.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return s.cur, err
	}
	prev := s.cur
	next.Version = prev.Version + 1
	s.cur = next
	for _, h := range s.hooks {
		h.Commit(prev, next)
	}
	s.mu.Unlock()
	s.notify()
	return next, nil
}

// UpdateRand is Update with access to the store's random source.
func (s *Store) UpdateRand(fn func(w *World, rng *rand.Rand) error) (*World, error) {
	return s.Update(func(w *World) error { return fn(w, s.rng) })
}

// Replace publishes w wholesale, e.g. after a reset or restore. The event
// log sequence continues from the current version so archive consumers see
// monotonic entries.
func (s *Store) Replace(w *World) *World {
	return s.mustUpdate(func(cur *World) {
		seq := cur.LogSeq
		log := cur.Log
		*cur = *w.Clone()
		cur.LogSeq = seq
		cur.Log = log
		cur.SetLogCapacity(s.params.LogCapacity)
		for _, e := range w.Log {
			cur.AddLog(e.Time, e.Level, e.AvatarID, "%s", e.Message)
		}
	})
}

func (s *Store) mustUpdate(fn func(w *World)) *World {
	w, _ := s.Update(func(w *World) error {
		fn(w)
		return nil
	})
	return w
}

// Watch returns a channel that receives a signal after commits. Signals
// coalesce; receivers should re-read Snapshot.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()
	return ch, func() {
		s.watchMu.Lock()
		delete(s.watchers, ch)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
