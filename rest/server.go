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

package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gdamore/mcvisor"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Handler wraps a Registry, adding http.Handler functionality.
type Handler struct {
	m      *mcvisor.Registry
	r      *mux.Router
	logger logrus.FieldLogger
}

type authedFunc func(w http.ResponseWriter, r *http.Request, user string)

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func (h *Handler) auth(fn authedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			if id, e := h.m.Login(user, pass); e == nil {
				fn(w, r, id.Name)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="mcvisor"`)
		h.writeError(w, &Error{http.StatusUnauthorized, "authentication required"})
	}
}

// pollArgs returns the Etag a long poll is waiting on, and for how long.
func pollArgs(r *http.Request) (int64, time.Duration, bool) {
	old, ok := parseEtag(r.Header.Get(PollEtagHeader))
	if !ok {
		return 0, 0, false
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs <= 0 {
		return 0, 0, false
	}
	wait := time.Duration(secs) * time.Second
	if wait > MaxPoll {
		wait = MaxPoll
	}
	return old, wait, true
}

// await waits (if asked to) for the serial to change, and then handles
// If-None-Match.  It returns false if the response was already written.
func (h *Handler) await(w http.ResponseWriter, r *http.Request, cur int64, watch func(int64, time.Duration) int64) (int64, bool) {
	if old, wait, ok := pollArgs(r); ok && old == cur {
		cur = watch(old, wait)
	}
	etag := formatEtag(cur)
	w.Header().Set("Etag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return cur, false
	}
	return cur, true
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request, user string) {
	if _, ok := h.await(w, r, h.m.Serial(), h.m.WatchSerial); !ok {
		return
	}
	i := h.m.GetInfo()
	h.writeJson(w, &RegistryInfo{
		Root:       i.Root,
		Serial:     i.Serial,
		Instances:  i.Instances,
		CreateTime: i.CreateTime,
		UpdateTime: i.UpdateTime,
	})
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request, user string) {
	if _, ok := h.await(w, r, h.m.Serial(), h.m.WatchSerial); !ok {
		return
	}
	insts := h.m.Instances()
	l := make([]string, 0, len(insts))
	for _, i := range insts {
		l = append(l, i.Name())
	}
	sort.Strings(l)
	h.writeJson(w, l)
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request, user string) {
	name := mux.Vars(r)["name"]
	if _, ok := h.await(w, r, h.m.Serial(), h.m.WatchSerial); !ok {
		return
	}
	v, e := h.m.InstanceView(user, name)
	if e != nil {
		h.writeError(w, NewError(e))
		return
	}
	h.writeJson(w, v)
}

func (h *Handler) getCapabilities(w http.ResponseWriter, r *http.Request, user string) {
	h.writeJson(w, h.m.Capabilities(user))
}

func (h *Handler) notifier(user string) mcvisor.Notifier {
	log := h.logger.WithField("user", user)
	return func(text string) {
		log.Info(text)
	}
}

func (h *Handler) perform(w http.ResponseWriter, user string, req mcvisor.Request) {
	if e := h.m.Perform(user, req, h.notifier(user)); e != nil {
		h.writeError(w, NewError(e))
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	b, e := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if e == nil {
		e = json.Unmarshal(b, v)
	}
	if e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, "malformed request: " + e.Error()})
		return false
	}
	return true
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, user string) {
	vars := mux.Vars(r)
	h.perform(w, user, mcvisor.Request{Action: vars["action"], Target: vars["name"]})
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request, user string) {
	var req CommandRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.perform(w, user, mcvisor.Request{
		Action: mcvisor.ActionCommand,
		Target: mux.Vars(r)["name"],
		Args:   []string{req.Command},
	})
}

func (h *Handler) createSnapshot(w http.ResponseWriter, r *http.Request, user string) {
	var req SnapshotRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.perform(w, user, mcvisor.Request{
		Action: mcvisor.ActionSnapshotCreate,
		Target: mux.Vars(r)["name"],
		Args:   []string{req.World},
	})
}

func (h *Handler) restoreSnapshot(w http.ResponseWriter, r *http.Request, user string) {
	var req SnapshotRequest
	if !h.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	h.perform(w, user, mcvisor.Request{
		Action: mcvisor.ActionSnapshotRestore,
		Target: vars["name"],
		Args:   []string{req.World, vars["snapshot"]},
	})
}

func (h *Handler) deleteSnapshot(w http.ResponseWriter, r *http.Request, user string) {
	vars := mux.Vars(r)
	h.perform(w, user, mcvisor.Request{
		Action: mcvisor.ActionSnapshotDelete,
		Target: vars["name"],
		Args:   []string{vars["snapshot"]},
	})
}

func (h *Handler) rescan(w http.ResponseWriter, r *http.Request, user string) {
	h.perform(w, user, mcvisor.Request{Action: mcvisor.ActionRescan})
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request, user string) {
	if e := h.m.Authorize(user, mcvisor.ActionDebug, ""); e != nil {
		h.writeError(w, NewError(e))
		return
	}
	_, id := h.m.GetLog(0)
	if _, ok := h.await(w, r, id, h.m.WatchLog); !ok {
		return
	}
	recs, _ := h.m.GetLog(0)
	h.writeJson(w, recs)
}

func (h *Handler) getConsole(w http.ResponseWriter, r *http.Request, user string) {
	v, e := h.m.InstanceView(user, mux.Vars(r)["name"])
	if e == nil && !h.m.CanSeeConsole(user, v.Name) {
		e = mcvisor.ErrDenied
	}
	if e != nil {
		h.writeError(w, NewError(e))
		return
	}
	h.writeJson(w, v.Backlog)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// NewHandler returns a Handler serving m.  Paths are relative; mount it
// under a prefix with http.StripPrefix.
func NewHandler(m *mcvisor.Registry, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := mux.NewRouter()
	h := &Handler{m: m, r: r, logger: logger.WithField("transport", "rest")}
	r.HandleFunc("/", h.auth(h.getInfo)).Methods("GET")
	r.HandleFunc("/capabilities", h.auth(h.getCapabilities)).Methods("GET")
	r.HandleFunc("/log", h.auth(h.getLog)).Methods("GET")
	r.HandleFunc("/rescan", h.auth(h.rescan)).Methods("POST")
	r.HandleFunc("/instances", h.auth(h.listInstances)).Methods("GET")
	r.HandleFunc("/instances/{name}", h.auth(h.getInstance)).Methods("GET")
	r.HandleFunc("/instances/{name}/console", h.auth(h.getConsole)).Methods("GET")
	r.HandleFunc("/instances/{name}/{action:start|stop|kill}", h.auth(h.lifecycle)).Methods("POST")
	r.HandleFunc("/instances/{name}/command", h.auth(h.command)).Methods("POST")
	r.HandleFunc("/instances/{name}/snapshots", h.auth(h.createSnapshot)).Methods("POST")
	r.HandleFunc("/instances/{name}/snapshots/{snapshot}/restore", h.auth(h.restoreSnapshot)).Methods("POST")
	r.HandleFunc("/instances/{name}/snapshots/{snapshot}", h.auth(h.deleteSnapshot)).Methods("DELETE")
	return h
}
