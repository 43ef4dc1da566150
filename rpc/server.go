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
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gdamore/mcvisor"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 2 * pingInterval
	writeTimeout = 10 * time.Second
	maxMessage   = 64 * 1024
	outQueue     = 256

	// LoginRate and LoginBurst throttle login attempts per remote host.
	LoginRate  = rate.Limit(1)
	LoginBurst = 5
)

// Handler wraps a Registry, accepting operator sessions over WebSocket.
type Handler struct {
	m        *mcvisor.Registry
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
	metrics  *mcvisor.Metrics
	users    map[string]*session
	all      map[*session]bool
	limiters map[string]*rate.Limiter
	lock     sync.Mutex

	// Crash is run by an authorized crash request.  The default
	// interrupts every server and exits with status 1.
	Crash func()
}

// NewHandler returns a Handler serving m.  The metrics may be nil.
func NewHandler(m *mcvisor.Registry, logger logrus.FieldLogger, metrics *mcvisor.Metrics) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		m:        m,
		logger:   logger.WithField("transport", "rpc"),
		metrics:  metrics,
		users:    make(map[string]*session),
		all:      make(map[*session]bool),
		limiters: make(map[string]*rate.Limiter),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	h.Crash = func() {
		h.logger.Error("crash requested, interrupting all servers")
		m.Interrupt()
		os.Exit(1)
	}
	return h
}

func (h *Handler) limiter(r *http.Request) *rate.Limiter {
	host, _, e := net.SplitHostPort(r.RemoteAddr)
	if e != nil {
		host = r.RemoteAddr
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(LoginRate, LoginBurst)
		h.limiters[host] = l
	}
	return l
}

// bind records s as the session of its user, and returns the session it
// replaces, if any.
func (h *Handler) bind(s *session) *session {
	h.lock.Lock()
	defer h.lock.Unlock()
	old := h.users[s.user]
	h.users[s.user] = s
	if old == s {
		return nil
	}
	return old
}

func (h *Handler) add(s *session) {
	h.lock.Lock()
	h.all[s] = true
	h.lock.Unlock()
	h.metrics.SessionOpened()
}

func (h *Handler) remove(s *session) {
	h.lock.Lock()
	if s.user != "" && h.users[s.user] == s {
		delete(h.users, s.user)
	}
	delete(h.all, s)
	h.lock.Unlock()
	h.metrics.SessionClosed()
}

// Sessions returns the number of connected sessions.
func (h *Handler) Sessions() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.all)
}

// Shutdown ends every session with the given reason.
func (h *Handler) Shutdown(reason string) {
	h.lock.Lock()
	all := make([]*session, 0, len(h.all))
	for s := range h.all {
		all = append(all, s)
	}
	h.lock.Unlock()
	for _, s := range all {
		s.kill(reason)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, e := h.upgrader.Upgrade(w, r, nil)
	if e != nil {
		// The upgrader already replied.
		h.logger.WithError(e).Debug("websocket upgrade failed")
		return
	}
	s := newSession(h, conn, h.limiter(r))
	h.add(s)
	s.logger.WithField("remote", r.RemoteAddr).Info("session opened")

	unsub := h.m.Subscribe(s.event)
	go s.writer()
	s.reader()

	unsub()
	s.close()
	h.remove(s)
	s.logger.Info("session closed")
}
