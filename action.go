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

package mcvisor

import (
	"errors"
)

// Request is an operator action against one instance.  Args depend on the
// action, and are also what permission rules see after the target:
//
//	command           [cmd]
//	snapshot_create   [world]
//	snapshot_restore  [world, snapshot]
//	snapshot_delete   [snapshot]
//
// The rescan action has no target.
type Request struct {
	Action string
	Target string
	Args   []string
}

func (r Request) arg(n int) (string, error) {
	if n >= len(r.Args) || r.Args[n] == "" {
		return "", ErrBadRequest
	}
	return r.Args[n], nil
}

func outcome(e error) string {
	switch {
	case e == nil:
		return "ok"
	case errors.Is(e, ErrDenied):
		return "denied"
	}
	return "failed"
}

// Perform authorizes and carries out a request on behalf of user.  A
// missing target is reported exactly like a denial.
func (m *Registry) Perform(user string, req Request, notify Notifier) (err error) {
	defer func() {
		m.cfg.Metrics.Action(req.Action, outcome(err))
		if err != nil {
			m.logger.WithError(err).WithField("user", user).
				WithField("instance", req.Target).Infof("%s refused", req.Action)
		}
	}()

	if req.Action == ActionRescan {
		if e := m.Authorize(user, ActionRescan, ""); e != nil {
			return e
		}
		return m.Rescan()
	}

	if e := m.Authorize(user, req.Action, req.Target, req.Args...); e != nil {
		return e
	}
	inst, ok := m.Instance(req.Target)
	if !ok {
		return ErrNoInstance
	}

	switch req.Action {
	case ActionStart:
		return inst.Start()
	case ActionStop:
		return inst.Stop()
	case ActionKill:
		return inst.Kill(notify)
	case ActionCommand:
		cmd, e := req.arg(0)
		if e != nil {
			return e
		}
		return inst.Execute(cmd)
	case ActionSnapshotCreate:
		world, e := req.arg(0)
		if e != nil {
			return e
		}
		return inst.CreateSnapshot(world, notify)
	case ActionSnapshotRestore:
		world, e := req.arg(0)
		if e != nil {
			return e
		}
		snap, e := req.arg(1)
		if e != nil {
			return e
		}
		return inst.RestoreSnapshot(world, snap, notify)
	case ActionSnapshotDelete:
		snap, e := req.arg(0)
		if e != nil {
			return e
		}
		return inst.DeleteSnapshot(snap, notify)
	}
	return ErrBadRequest
}
