// Copyright 2026 The Mcvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rpc implements the interactive operator protocol: JSON messages
// over a WebSocket, one session per connection.
//
// Every message is an object whose "$" member names its type.  A fresh
// session must log in first:
//
//	{"$": "login", "user": "admin", "pass": "secret"}
//
// A failed login is answered with a notify, and the client may try again
// (subject to a per-host rate limit).  Any other message before a
// successful login ends the session.  After
// login the client may send
//
//	start, stop, kill    {"server"}
//	cmd                  {"server", "cmd"}
//	snapCreate           {"server", "world"}
//	snapRestore          {"server", "world", "snapshot"}
//	snapDelete           {"server", "snapshot"}
//	rescan, crash        {}
//
// and receives
//
//	login                login accepted
//	servers              {"list": name -> instance, "acl": capabilities}
//	pushConsole          {"server", "line"}
//	notify               {"text"}
//	kill                 {"error"}, after which the connection is closed
package rpc

import (
	"github.com/gdamore/mcvisor"
)

// Message types.
const (
	TypeLogin       = "login"
	TypeStart       = "start"
	TypeStop        = "stop"
	TypeKill        = "kill"
	TypeCommand     = "cmd"
	TypeSnapCreate  = "snapCreate"
	TypeSnapRestore = "snapRestore"
	TypeSnapDelete  = "snapDelete"
	TypeRescan      = "rescan"
	TypeCrash       = "crash"

	TypeNotify      = "notify"
	TypeServers     = "servers"
	TypePushConsole = "pushConsole"
)

// Message is the envelope of every frame, in both directions.
type Message struct {
	Type     string                          `json:"$"`
	User     string                          `json:"user,omitempty"`
	Pass     string                          `json:"pass,omitempty"`
	Server   string                          `json:"server,omitempty"`
	Cmd      string                          `json:"cmd,omitempty"`
	World    string                          `json:"world,omitempty"`
	Snapshot string                          `json:"snapshot,omitempty"`
	Text     string                          `json:"text,omitempty"`
	Line     string                          `json:"line,omitempty"`
	Error    string                          `json:"error,omitempty"`
	List     map[string]mcvisor.InstanceView `json:"list,omitempty"`
	ACL      map[string]bool                 `json:"acl,omitempty"`
}

// request translates an instance action message.  It returns false for
// types that are not instance actions.
func (msg *Message) request() (mcvisor.Request, bool) {
	req := mcvisor.Request{Target: msg.Server}
	switch msg.Type {
	case TypeStart:
		req.Action = mcvisor.ActionStart
	case TypeStop:
		req.Action = mcvisor.ActionStop
	case TypeKill:
		req.Action = mcvisor.ActionKill
	case TypeCommand:
		req.Action = mcvisor.ActionCommand
		req.Args = []string{msg.Cmd}
	case TypeSnapCreate:
		req.Action = mcvisor.ActionSnapshotCreate
		req.Args = []string{msg.World}
	case TypeSnapRestore:
		req.Action = mcvisor.ActionSnapshotRestore
		req.Args = []string{msg.World, msg.Snapshot}
	case TypeSnapDelete:
		req.Action = mcvisor.ActionSnapshotDelete
		req.Args = []string{msg.Snapshot}
	case TypeRescan:
		req = mcvisor.Request{Action: mcvisor.ActionRescan}
	default:
		return req, false
	}
	return req, true
}
