package ws

import (
	"errors"
	"fmt"

	"avatarsim.ai/internal/protocol"
	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/world"
)

var (
	errBadArgs  = errors.New("bad arguments")
	errConflict = errors.New("conflict")
)

type idArgs struct {
	ID string `json:"id"`
}

type avatarSettingsArgs struct {
	ID       string               `json:"id"`
	Settings world.AvatarSettings `json:"settings"`
}

type moveArgs struct {
	ID          string    `json:"id"`
	Position    geom.Vec2 `json:"position"`
	Orientation *float64  `json:"orientation,omitempty"`
}

type objectArgs struct {
	ID          string    `json:"id"`
	Position    geom.Vec2 `json:"position"`
	Description string    `json:"description"`
}

type obstacleArgs struct {
	Position geom.Vec2 `json:"position"`
	Size     geom.Size `json:"size"`
}

type runningArgs struct {
	Running *bool `json:"running"`
}

type simSettingsArgs struct {
	Settings world.SimulationSettings `json:"settings"`
}

type savedResult struct {
	Path string `json:"path"`
}

type runningResult struct {
	Running bool `json:"running"`
}

// Exec applies one presentation command to the store. The result, when not
// nil, is echoed in the ACK.
func (s *Server) Exec(cmd protocol.CmdMsg) (any, error) {
	decode := func(v any) error {
		if err := cmd.DecodeArgs(v); err != nil {
			return fmt.Errorf("%w: %v", errBadArgs, err)
		}
		return nil
	}
	requireID := func(id string) error {
		if id == "" {
			return fmt.Errorf("%s: %w: id is required", cmd.Cmd, errBadArgs)
		}
		return nil
	}

	switch cmd.Cmd {
	case protocol.CmdAddAvatar:
		return s.store.AddAvatar()

	case protocol.CmdRemoveAvatar, protocol.CmdRemoveObject, protocol.CmdRemoveObstacle:
		var a idArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		switch cmd.Cmd {
		case protocol.CmdRemoveAvatar:
			return nil, s.store.RemoveAvatar(a.ID)
		case protocol.CmdRemoveObject:
			return nil, s.store.RemoveObject(a.ID)
		default:
			return nil, s.store.RemoveObstacle(a.ID)
		}

	case protocol.CmdUpdateAvatarSettings:
		var a avatarSettingsArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return s.store.UpdateAvatarSettings(a.ID, a.Settings)

	case protocol.CmdMoveEntity:
		var a moveArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return nil, s.store.MoveEntity(a.ID, a.Position, a.Orientation)

	case protocol.CmdAddObject:
		var a objectArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return s.store.AddObject(a.Position, a.Description)

	case protocol.CmdEditObject:
		var a objectArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		if err := requireID(a.ID); err != nil {
			return nil, err
		}
		return nil, s.store.EditObject(a.ID, a.Description)

	case protocol.CmdAddObstacle:
		var a obstacleArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return s.store.AddObstacle(a.Position, a.Size)

	case protocol.CmdResizeBoard:
		var size geom.Size
		if err := decode(&size); err != nil {
			return nil, err
		}
		return nil, s.store.ResizeBoard(size)

	case protocol.CmdSetRunning:
		var a runningArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		if a.Running == nil {
			return nil, fmt.Errorf("%s: %w: running is required", cmd.Cmd, errBadArgs)
		}
		return runningResult{Running: s.store.SetRunning(*a.Running)}, nil

	case protocol.CmdToggleRunning:
		return runningResult{Running: s.store.ToggleRunning()}, nil

	case protocol.CmdReset:
		s.store.Reset()
		return nil, nil

	case protocol.CmdUpdateSimSettings:
		var a simSettingsArgs
		if err := decode(&a); err != nil {
			return nil, err
		}
		return nil, s.store.UpdateSimulationSettings(a.Settings)

	case protocol.CmdSave:
		if s.saver == nil {
			return nil, fmt.Errorf("save: %w: persistence disabled", errConflict)
		}
		path, err := s.saver.Save()
		if err != nil {
			return nil, err
		}
		return savedResult{Path: path}, nil
	}
	return nil, fmt.Errorf("command %q: %w", cmd.Cmd, errBadArgs)
}
