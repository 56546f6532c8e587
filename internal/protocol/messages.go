package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Commands accepted in CMD messages.
const (
	CmdAddAvatar            = "ADD_AVATAR"
	CmdRemoveAvatar         = "REMOVE_AVATAR"
	CmdUpdateAvatarSettings = "UPDATE_AVATAR_SETTINGS"
	CmdMoveEntity           = "MOVE_ENTITY"
	CmdAddObject            = "ADD_OBJECT"
	CmdRemoveObject         = "REMOVE_OBJECT"
	CmdEditObject           = "EDIT_OBJECT"
	CmdAddObstacle          = "ADD_OBSTACLE"
	CmdRemoveObstacle       = "REMOVE_OBSTACLE"
	CmdResizeBoard          = "RESIZE_BOARD"
	CmdSetRunning           = "SET_RUNNING"
	CmdToggleRunning        = "TOGGLE_RUNNING"
	CmdReset                = "RESET"
	CmdUpdateSimSettings    = "UPDATE_SIM_SETTINGS"
	CmdSave                 = "SAVE"
)

// WORLD (server -> client): the full world, sent on connect and after
// commits. Intermediate versions may be skipped.
type WorldMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Version         uint64 `json:"version"`
	World           any    `json:"world"`
}

// ACK (server -> client): a command was applied.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	Result          any    `json:"result,omitempty"`
}

// ERROR (server -> client).
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// CMD (client -> server).
type CmdMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version,omitempty"`
	ID              string          `json:"id"`
	Cmd             string          `json:"cmd"`
	Args            json.RawMessage `json:"args,omitempty"`
}

func NewAck(ref string, result any) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, Ref: ref, Result: result}
}

func NewError(ref, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Ref: ref, Code: code, Message: msg}
}

const cmdSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "id", "cmd"],
  "properties": {
    "type": {"const": "CMD"},
    "protocol_version": {"type": "string"},
    "id": {"type": "string", "minLength": 1, "maxLength": 128},
    "cmd": {"enum": [
      "ADD_AVATAR", "REMOVE_AVATAR", "UPDATE_AVATAR_SETTINGS", "MOVE_ENTITY",
      "ADD_OBJECT", "REMOVE_OBJECT", "EDIT_OBJECT", "ADD_OBSTACLE", "REMOVE_OBSTACLE",
      "RESIZE_BOARD", "SET_RUNNING", "TOGGLE_RUNNING", "RESET", "UPDATE_SIM_SETTINGS", "SAVE"
    ]},
    "args": {"type": "object"}
  }
}`

var cmdValidator = jsonschema.MustCompileString("mem://cmd.schema.json", cmdSchema)

// ErrInvalidCmd wraps every DecodeCmd failure.
var ErrInvalidCmd = errors.New("invalid command")

// DecodeCmd validates a CMD envelope against its schema and decodes it. The
// id is returned even for invalid commands when it could be read, so the
// error can reference it.
func DecodeCmd(b []byte) (CmdMsg, error) {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return CmdMsg{}, fmt.Errorf("%w: %v", ErrInvalidCmd, err)
	}
	var m CmdMsg
	_ = json.Unmarshal(b, &m)
	if err := cmdValidator.Validate(raw); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidCmd, err)
	}
	if m.ProtocolVersion != "" && m.ProtocolVersion != Version {
		return m, fmt.Errorf("%w: unsupported protocol_version %q", ErrInvalidCmd, m.ProtocolVersion)
	}
	return m, nil
}

// DecodeArgs unmarshals the command arguments into v; missing args decode
// as an empty object.
func (m CmdMsg) DecodeArgs(v any) error {
	if len(m.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Args, v); err != nil {
		return fmt.Errorf("%s args: %w", m.Cmd, err)
	}
	return nil
}
