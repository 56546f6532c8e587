package world

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"avatarsim.ai/internal/sim/geom"
)

// Presentation-layer mutations. Each one is a single Update and leaves an
// entry in the event log.

func (s *Store) AddAvatar() (Avatar, error) {
	var out Avatar
	_, err := s.UpdateRand(func(w *World, rng *rand.Rand) error {
		now := s.now()
		pos := s.params.SpawnPoint(w, rng)
		out = s.params.NewAvatar(pos, float64(rng.IntN(12)*30), ColorFor(len(w.Avatars)), now)
		w.Avatars = append(w.Avatars, out)
		w.AddLog(now, LevelInfo, out.ID, "avatar added at (%.0f, %.0f)", pos.X, pos.Y)
		return nil
	})
	return out, err
}

func (s *Store) RemoveAvatar(id string) error {
	_, err := s.Update(func(w *World) error {
		now := s.now()
		if err := w.RemoveAvatar(id, now); err != nil {
			return err
		}
		w.AddLog(now, LevelInfo, id, "avatar removed")
		return nil
	})
	return err
}

func (s *Store) UpdateAvatarSettings(id string, settings AvatarSettings) (Avatar, error) {
	var out Avatar
	_, err := s.Update(func(w *World) error {
		a := w.Avatar(id)
		if a == nil {
			return fmt.Errorf("avatar %s: %w", id, ErrNotFound)
		}
		if settings.RateLimitMs < 0 || settings.Eyesight.Radius < 0 || settings.Eyesight.Angle < 0 || settings.Eyesight.Angle > 360 {
			return fmt.Errorf("avatar settings: %w", ErrBadRequest)
		}
		if strings.TrimSpace(settings.Provider) == "" {
			settings.Provider = a.Settings.Provider
		}
		if strings.TrimSpace(settings.Model) == "" {
			settings.Model = a.Settings.Model
		}
		a.Settings = settings
		out = *a
		w.AddLog(s.now(), LevelInfo, id, "settings updated (provider=%s model=%s)", settings.Provider, settings.Model)
		return nil
	})
	return out, err
}

// MoveEntity places an avatar, object or obstacle at pos (clamped to the
// board). Avatars may also be re-oriented.
func (s *Store) MoveEntity(id string, pos geom.Vec2, orientation *float64) error {
	_, err := s.Update(func(w *World) error {
		if !pos.IsFinite() {
			return fmt.Errorf("position: %w", ErrBadRequest)
		}
		pos = geom.ClampToBounds(pos, w.Settings.BoardSize)
		switch {
		case w.Avatar(id) != nil:
			a := w.Avatar(id)
			a.Position = pos
			if orientation != nil {
				a.Orientation = geom.NormalizeDegrees(*orientation)
			}
		case w.Object(id) != nil:
			w.Object(id).Position = pos
		case w.Obstacle(id) != nil:
			w.Obstacle(id).Position = pos
		default:
			return fmt.Errorf("entity %s: %w", id, ErrNotFound)
		}
		w.AddLog(s.now(), LevelDebug, "", "entity %s moved to (%.0f, %.0f)", id, pos.X, pos.Y)
		return nil
	})
	return err
}

func (s *Store) AddObject(pos geom.Vec2, description string) (ArenaObject, error) {
	var out ArenaObject
	_, err := s.Update(func(w *World) error {
		if !pos.IsFinite() {
			return fmt.Errorf("position: %w", ErrBadRequest)
		}
		out = ArenaObject{
			ID:          NewID(),
			Kind:        KindObject,
			Position:    geom.ClampToBounds(pos, w.Settings.BoardSize),
			Description: strings.TrimSpace(description),
		}
		w.Objects = append(w.Objects, out)
		w.AddLog(s.now(), LevelInfo, "", "object %s added", out.ID)
		return nil
	})
	return out, err
}

func (s *Store) EditObject(id, description string) error {
	_, err := s.Update(func(w *World) error {
		o := w.Object(id)
		if o == nil {
			return fmt.Errorf("object %s: %w", id, ErrNotFound)
		}
		o.Description = strings.TrimSpace(description)
		w.AddLog(s.now(), LevelInfo, "", "object %s description updated", id)
		return nil
	})
	return err
}

func (s *Store) RemoveObject(id string) error {
	_, err := s.Update(func(w *World) error {
		for i := range w.Objects {
			if w.Objects[i].ID == id {
				w.Objects = append(w.Objects[:i:i], w.Objects[i+1:]...)
				w.AddLog(s.now(), LevelInfo, "", "object %s removed", id)
				return nil
			}
		}
		return fmt.Errorf("object %s: %w", id, ErrNotFound)
	})
	return err
}

func (s *Store) AddObstacle(pos geom.Vec2, size geom.Size) (Obstacle, error) {
	var out Obstacle
	_, err := s.Update(func(w *World) error {
		if !pos.IsFinite() || size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("obstacle geometry: %w", ErrBadRequest)
		}
		out = Obstacle{
			ID:       NewID(),
			Kind:     KindObstacle,
			Position: geom.ClampToBounds(pos, w.Settings.BoardSize),
			Size:     size,
		}
		w.Obstacles = append(w.Obstacles, out)
		w.AddLog(s.now(), LevelInfo, "", "obstacle %s added", out.ID)
		return nil
	})
	return out, err
}

func (s *Store) RemoveObstacle(id string) error {
	_, err := s.Update(func(w *World) error {
		for i := range w.Obstacles {
			if w.Obstacles[i].ID == id {
				w.Obstacles = append(w.Obstacles[:i:i], w.Obstacles[i+1:]...)
				w.AddLog(s.now(), LevelInfo, "", "obstacle %s removed", id)
				return nil
			}
		}
		return fmt.Errorf("obstacle %s: %w", id, ErrNotFound)
	})
	return err
}

func (s *Store) ResizeBoard(size geom.Size) error {
	_, err := s.Update(func(w *World) error {
		if size.Width <= 0 || size.Height <= 0 || !(geom.Vec2{X: size.Width, Y: size.Height}).IsFinite() {
			return fmt.Errorf("board size: %w", ErrBadRequest)
		}
		if w.Settings.BoardSize.Equal(size) {
			return nil
		}
		before := len(w.Obstacles)
		w.Resize(size)
		w.AddLog(s.now(), LevelInfo, "", "board resized to %.0fx%.0f (%d obstacles dropped)", size.Width, size.Height, before-len(w.Obstacles))
		return nil
	})
	return err
}

func (s *Store) UpdateSimulationSettings(settings SimulationSettings) error {
	_, err := s.Update(func(w *World) error {
		switch settings.Mode {
		case ModeTurnBased, ModeTimeBased:
		case "":
			settings.Mode = w.Settings.Mode
		default:
			return fmt.Errorf("mode %q: %w", settings.Mode, ErrBadRequest)
		}
		if settings.TurnDurationMs <= 0 {
			settings.TurnDurationMs = w.Settings.TurnDurationMs
		}
		if settings.Speed <= 0 {
			settings.Speed = w.Settings.Speed
		}
		if settings.BoardSize.Width <= 0 || settings.BoardSize.Height <= 0 {
			settings.BoardSize = w.Settings.BoardSize
		}
		if !settings.BoardSize.Equal(w.Settings.BoardSize) {
			w.Resize(settings.BoardSize)
		}
		w.Settings = settings
		w.AddLog(s.now(), LevelInfo, "", "simulation settings updated (mode=%s turn=%dms speed=%.2f)", settings.Mode, settings.TurnDurationMs, settings.Speed)
		return nil
	})
	return err
}

// SetRunning starts or pauses the clock. It reports the resulting state.
func (s *Store) SetRunning(running bool) bool {
	w := s.mustUpdate(func(w *World) { s.setRunning(w, running) })
	return w.Running
}

func (s *Store) ToggleRunning() bool {
	w := s.mustUpdate(func(w *World) { s.setRunning(w, !w.Running) })
	return w.Running
}

func (s *Store) setRunning(w *World, running bool) {
	if w.Running == running {
		return
	}
	w.Running = running
	if running {
		w.AddLog(s.now(), LevelInfo, "", "simulation started")
	} else {
		w.AddLog(s.now(), LevelInfo, "", "simulation paused")
	}
}

// Reset replaces the world with a fresh default world, paused.
func (s *Store) Reset() *World {
	var fresh *World
	s.mu.Lock()
	fresh = s.params.NewWorld(s.now(), s.rng)
	s.mu.Unlock()
	fresh.Log = nil
	fresh.AddLog(s.now(), LevelInfo, "", "world reset")
	return s.Replace(fresh)
}
