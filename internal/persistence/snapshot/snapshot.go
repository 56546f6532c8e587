package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/world"
)

const (
	Version = 1
	// RestoredEyesightAngle replaces any persisted cone width on restore.
	RestoredEyesightAngle = 180.0

	ext = ".snap.zst"
)

var ErrInvalid = errors.New("invalid snapshot")

type Header struct {
	Version int       `json:"version"`
	Seq     uint64    `json:"seq"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotV1 is the persisted projection of a world: configuration and
// entities only. Runtime fields, the event log and the running flag are not
// part of it.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Settings      world.SimulationSettings `json:"settings"`
	Avatars       []AvatarV1               `json:"avatars"`
	Objects       []world.ArenaObject      `json:"objects"`
	Obstacles     []world.Obstacle         `json:"obstacles"`
	Conversations []world.Conversation     `json:"conversations"`
}

type AvatarV1 struct {
	ID          string               `json:"id"`
	Position    geom.Vec2            `json:"position"`
	Orientation float64              `json:"orientation"`
	Settings    world.AvatarSettings `json:"settings"`
	Color       string               `json:"color"`
}

// Project captures the persistable part of w.
func Project(w *world.World) SnapshotV1 {
	c := w.Clone()
	s := SnapshotV1{
		Header:        Header{Version: Version},
		Settings:      c.Settings,
		Avatars:       make([]AvatarV1, 0, len(c.Avatars)),
		Objects:       c.Objects,
		Obstacles:     c.Obstacles,
		Conversations: c.Conversations,
	}
	for _, a := range c.Avatars {
		s.Avatars = append(s.Avatars, AvatarV1{
			ID:          a.ID,
			Position:    a.Position,
			Orientation: a.Orientation,
			Settings:    a.Settings,
			Color:       a.Color,
		})
	}
	return s
}

// Restore rebuilds a paused world from snap. Missing ids and colors are
// regenerated, eyesight cones are reset to RestoredEyesightAngle, every
// avatar is eligible for a decision at now, and conversations that were
// active when saved are closed.
func Restore(snap SnapshotV1, p world.Params, now time.Time) (*world.World, error) {
	if snap.Header.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrInvalid, snap.Header.Version)
	}
	if len(snap.Avatars) < world.MinAvatars {
		return nil, fmt.Errorf("%w: %d avatars", ErrInvalid, len(snap.Avatars))
	}
	settings := snap.Settings
	if settings.BoardSize.Width <= 0 || settings.BoardSize.Height <= 0 {
		return nil, fmt.Errorf("%w: board %vx%v", ErrInvalid, settings.BoardSize.Width, settings.BoardSize.Height)
	}
	if settings.Mode != world.ModeTurnBased && settings.Mode != world.ModeTimeBased {
		settings.Mode = p.Settings.Mode
	}
	if settings.TurnDurationMs <= 0 {
		settings.TurnDurationMs = p.Settings.TurnDurationMs
	}
	if settings.Speed <= 0 {
		settings.Speed = p.Settings.Speed
	}

	w := &world.World{
		Settings:      settings,
		Avatars:       make([]world.Avatar, 0, len(snap.Avatars)),
		Objects:       []world.ArenaObject{},
		Obstacles:     []world.Obstacle{},
		Conversations: []world.Conversation{},
		Log:           []world.LogEntry{},
	}
	w.SetLogCapacity(p.LogCapacity)

	seen := map[string]bool{}
	fresh := func(id string) string {
		if id == "" || seen[id] {
			id = world.NewID()
		}
		seen[id] = true
		return id
	}
	for i, sa := range snap.Avatars {
		if !sa.Position.IsFinite() {
			return nil, fmt.Errorf("%w: avatar %q position", ErrInvalid, sa.ID)
		}
		color := sa.Color
		if color == "" {
			color = world.ColorFor(i)
		}
		a := p.NewAvatar(geom.ClampToBounds(sa.Position, settings.BoardSize), sa.Orientation, color, now)
		a.ID = fresh(sa.ID)
		a.Settings = sa.Settings
		if a.Settings.Provider == "" {
			a.Settings.Provider = p.Avatar.Provider
		}
		if a.Settings.Model == "" {
			a.Settings.Model = p.Avatar.Model
		}
		if a.Settings.RateLimitMs <= 0 {
			a.Settings.RateLimitMs = p.Avatar.RateLimitMs
		}
		if a.Settings.Eyesight.Radius <= 0 {
			a.Settings.Eyesight.Radius = p.Avatar.Eyesight.Radius
		}
		a.Settings.Eyesight.Angle = RestoredEyesightAngle
		w.Avatars = append(w.Avatars, a)
	}
	for _, o := range snap.Objects {
		o.ID = fresh(o.ID)
		o.Kind = world.KindObject
		o.Position = geom.ClampToBounds(o.Position, settings.BoardSize)
		w.Objects = append(w.Objects, o)
	}
	for _, o := range snap.Obstacles {
		if o.Size.Width <= 0 || o.Size.Height <= 0 {
			continue
		}
		o.ID = fresh(o.ID)
		o.Kind = world.KindObstacle
		o.Position = geom.ClampToBounds(o.Position, settings.BoardSize)
		w.Obstacles = append(w.Obstacles, o)
	}
	for _, c := range snap.Conversations {
		if c.ID == "" {
			c.ID = world.NewID()
		}
		if c.Active() {
			t := now
			c.EndedAt = &t
		}
		w.Conversations = append(w.Conversations, c)
	}
	w.AddLog(now, world.LevelInfo, "", "world restored with %d avatars", len(w.Avatars))
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return w, nil
}

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
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
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

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for humans and tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("%w: header: %v", ErrInvalid, err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// PathFor is the file name of save seq under dir.
func PathFor(dir string, seq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", seq, ext))
}

type file struct {
	seq  uint64
	path string
}

func list(dir string) []file {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []file
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ext), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, file{seq: seq, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Latest returns the newest snapshot in dir and its seq, or "" when there is
// none.
func Latest(dir string) (string, uint64) {
	fs := list(dir)
	if len(fs) == 0 {
		return "", 0
	}
	last := fs[len(fs)-1]
	return last.path, last.seq
}

// Prune deletes all but the newest keep snapshots in dir.
func Prune(dir string, keep int) ([]string, error) {
	fs := list(dir)
	if keep <= 0 || len(fs) <= keep {
		return nil, nil
	}
	var removed []string
	for _, f := range fs[:len(fs)-keep] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, f.path)
	}
	return removed, nil
}
