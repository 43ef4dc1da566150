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

package rpc

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gdamore/mcvisor"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// session is one connected operator.  The reader runs on the HTTP handler
// goroutine, and a writer goroutine owns all writes to the connection.
// Registry events arrive on arbitrary goroutines (with the registry lock
// held) and are only queued.
type session struct {
	id      string
	h       *Handler
	conn    *websocket.Conn
	login   *rate.Limiter
	logger  logrus.FieldLogger
	out     chan *Message
	dirty   chan struct{}
	killc   chan string
	done    chan struct{}
	closer  sync.Once
	lock    sync.Mutex
	user    string
	console map[string]bool
}

func newSession(h *Handler, conn *websocket.Conn, login *rate.Limiter) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		h:      h,
		conn:   conn,
		login:  login,
		logger: h.logger.WithField("session", id),
		out:    make(chan *Message, outQueue),
		dirty:  make(chan struct{}, 1),
		killc:  make(chan string, 1),
		done:   make(chan struct{}),
	}
}

func (s *session) identity() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.user
}

func (s *session) event(ev mcvisor.Event) {
	switch ev.Kind {
	case mcvisor.EventStatus:
		s.markDirty()
	case mcvisor.EventConsole:
		// Instances the last refresh did not know about are queued, and
		// the writer decides whether they may be seen.
		s.lock.Lock()
		allowed, known := s.console[ev.Instance]
		ok := s.user != "" && (allowed || !known)
		s.lock.Unlock()
		if ok {
			s.send(&Message{Type: TypePushConsole, Server: ev.Instance, Line: ev.Line})
		}
	}
}

// canSee reports whether the user may follow the console of name.  It
// calls into the registry, so it must not be called from event.
func (s *session) canSee(name string) bool {
	s.lock.Lock()
	user := s.user
	allowed, known := s.console[name]
	s.lock.Unlock()
	if known || user == "" {
		return allowed
	}
	allowed = s.h.m.CanSeeConsole(user, name)
	s.lock.Lock()
	if s.console == nil {
		s.console = make(map[string]bool)
	}
	s.console[name] = allowed
	s.lock.Unlock()
	return allowed
}

func (s *session) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *session) send(msg *Message) {
	select {
	case <-s.done:
	case s.out <- msg:
	default:
		s.logger.Warn("output queue full, dropping message")
	}
}

func (s *session) notify(text string) {
	s.send(&Message{Type: TypeNotify, Text: text})
}

// kill ends the session after telling the peer why.
func (s *session) kill(reason string) {
	select {
	case s.killc <- reason:
	default:
	}
}

func (s *session) close() {
	s.closer.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) write(msg *Message) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

// refresh sends the current views, and remembers which consoles the
// user may follow.
func (s *session) refresh() error {
	user := s.identity()
	if user == "" {
		return nil
	}
	m := s.h.m
	views := m.Views(user)
	caps := m.Capabilities(user)
	console := make(map[string]bool, len(views))
	for name := range views {
		console[name] = m.CanSeeConsole(user, name)
	}
	s.lock.Lock()
	s.console = console
	s.lock.Unlock()
	return s.write(&Message{Type: TypeServers, List: views, ACL: caps})
}

func (s *session) writer() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var e error
		select {
		case <-s.done:
			return
		case reason := <-s.killc:
			s.write(&Message{Type: TypeKill, Error: reason})
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
				time.Now().Add(writeTimeout))
			s.close()
			return
		case <-s.dirty:
			e = s.refresh()
		case msg := <-s.out:
			if msg.Type == TypePushConsole && !s.canSee(msg.Server) {
				continue
			}
			if e = s.write(msg); e == nil && msg.Type == TypeLogin {
				e = s.refresh()
			}
		case <-ping.C:
			e = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		}
		if e != nil {
			s.logger.WithError(e).Debug("write failed")
			s.close()
			return
		}
	}
}

func (s *session) reader() {
	s.conn.SetReadLimit(maxMessage)
	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, b, e := s.conn.ReadMessage()
		if e != nil {
			if websocket.IsUnexpectedCloseError(e, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(e).Debug("read failed")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg Message
		if e := json.Unmarshal(b, &msg); e != nil {
			s.notify("malformed message")
			continue
		}
		if !s.handle(&msg) {
			// Give the writer a chance to deliver the kill notice.
			select {
			case <-s.done:
			case <-time.After(writeTimeout):
			}
			return
		}
	}
}

func describe(e error) string {
	if errors.Is(e, mcvisor.ErrDenied) {
		return mcvisor.ErrDenied.Error()
	}
	return e.Error()
}

// handle processes one message, and reports whether the session goes on.
func (s *session) handle(msg *Message) bool {
	if msg.Type == TypeLogin {
		return s.handleLogin(msg)
	}
	user := s.identity()
	if user == "" {
		s.kill("not logged in")
		return false
	}

	if msg.Type == TypeCrash {
		if e := s.h.m.Authorize(user, mcvisor.ActionDebug, ""); e != nil {
			s.notify(describe(e))
			return true
		}
		s.h.Crash()
		return true
	}

	req, ok := msg.request()
	if !ok {
		s.notify("unknown request " + msg.Type)
		return true
	}
	if e := s.h.m.Perform(user, req, s.notify); e != nil {
		s.notify(describe(e))
	} else if req.Action == mcvisor.ActionRescan {
		s.notify("Rescan complete")
	}
	return true
}

func (s *session) handleLogin(msg *Message) bool {
	if s.identity() != "" {
		s.notify("already logged in")
		return true
	}
	if !s.login.Allow() {
		s.kill("too many login attempts")
		return false
	}
	id, e := s.h.m.Login(msg.User, msg.Pass)
	if e != nil {
		s.logger.WithError(e).WithField("user", msg.User).Warn("login failed")
		s.notify("invalid username or password")
		return true
	}

	s.lock.Lock()
	s.user = id.Name
	s.lock.Unlock()
	if old := s.h.bind(s); old != nil {
		old.kill("connected from a different location")
	}
	s.logger.WithField("user", id.Name).Info("logged in")
	s.send(&Message{Type: TypeLogin})
	return true
}
