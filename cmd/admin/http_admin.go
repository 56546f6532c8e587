package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"avatarsim.ai/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	saved := fs.Bool("saved", false, "print the persistence projection instead of the live world")
	_ = fs.Parse(args)

	path := "/v1/world"
	if *saved {
		path = "/v1/saved"
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + path
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// commandCmd sends one presentation command over the websocket and prints
// the server's reply, e.g. `admin cmd SAVE` or
// `admin cmd -args '{"running":true}' SET_RUNNING`.
func commandCmd(args []string) {
	fs := flag.NewFlagSet("cmd", flag.ExitOnError)
	url := fs.String("url", "ws://127.0.0.1:8080/v1/ws", "ws url")
	rawArgs := fs.String("args", "", "command arguments as a JSON object")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin cmd [-url ws://...] [-args JSON] COMMAND")
		os.Exit(2)
	}

	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("admin-%d", time.Now().UnixNano()),
		Cmd:             strings.ToUpper(fs.Arg(0)),
	}
	if *rawArgs != "" {
		if !json.Valid([]byte(*rawArgs)) {
			fmt.Fprintln(os.Stderr, "-args is not valid JSON")
			os.Exit(2)
		}
		msg.Args = json.RawMessage(*rawArgs)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()
	if err := conn.WriteJSON(msg); err != nil {
		fmt.Fprintln(os.Stderr, "send:", err)
		os.Exit(1)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		var reply struct {
			Type string `json:"type"`
			Ref  string `json:"ref"`
		}
		if err := json.Unmarshal(b, &reply); err != nil || reply.Ref != msg.ID {
			continue
		}
		fmt.Println(string(b))
		if reply.Type == protocol.TypeError {
			os.Exit(1)
		}
		return
	}
}
