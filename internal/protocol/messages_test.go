package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeCmd(t *testing.T) {
	m, err := DecodeCmd([]byte(`{"type":"CMD","protocol_version":"1.0","id":"c1","cmd":"REMOVE_AVATAR","args":{"id":"a1"}}`))
	if err != nil {
		t.Fatalf("DecodeCmd: %v", err)
	}
	var args struct {
		ID string `json:"id"`
	}
	if err := m.DecodeArgs(&args); err != nil || args.ID != "a1" || m.ID != "c1" || m.Cmd != CmdRemoveAvatar {
		t.Fatalf("decoded=%+v args=%+v err=%v", m, args, err)
	}

	noArgs, err := DecodeCmd([]byte(`{"type":"CMD","id":"c2","cmd":"TOGGLE_RUNNING"}`))
	if err != nil {
		t.Fatalf("DecodeCmd without args: %v", err)
	}
	if err := noArgs.DecodeArgs(&args); err != nil {
		t.Fatalf("DecodeArgs on empty args: %v", err)
	}
}

func TestDecodeCmd_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"unknown command": `{"type":"CMD","id":"c1","cmd":"FLY"}`,
		"missing id":      `{"type":"CMD","cmd":"RESET"}`,
		"wrong type":      `{"type":"WORLD","id":"c1","cmd":"RESET"}`,
		"args not object": `{"type":"CMD","id":"c1","cmd":"RESET","args":[1]}`,
		"old version":     `{"type":"CMD","protocol_version":"0.9","id":"c1","cmd":"RESET"}`,
	}
	for name, in := range cases {
		m, err := DecodeCmd([]byte(in))
		if !errors.Is(err, ErrInvalidCmd) {
			t.Fatalf("%s: expected ErrInvalidCmd, got %v", name, err)
		}
		if name == "unknown command" && m.ID != "c1" {
			t.Fatalf("%s: id not recovered: %+v", name, m)
		}
	}
}

func TestMessages_CarryTypeAndVersion(t *testing.T) {
	b, _ := json.Marshal(NewError("c1", ErrNotFound, "avatar x: not found"))
	base, err := DecodeBase(b)
	if err != nil || base.Type != TypeError || base.ProtocolVersion != Version {
		t.Fatalf("base=%+v err=%v", base, err)
	}
	b, _ = json.Marshal(NewAck("c1", nil))
	if base, _ = DecodeBase(b); base.Type != TypeAck {
		t.Fatalf("ack base=%+v", base)
	}
}
