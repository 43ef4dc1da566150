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
	"time"
)

// InstanceView is what an operator gets to see of an instance.  The
// backlog and snapshot list are masked according to the operator's
// permissions.
type InstanceView struct {
	Name       string     `json:"name"`
	Engine     string     `json:"engine"`
	Jar        string     `json:"jar"`
	Status     Status     `json:"status"`
	Players    int        `json:"players"`
	Port       int        `json:"port"`
	Uptime     string     `json:"uptime"`
	Reason     string     `json:"reason"`
	TimeStamp  time.Time  `json:"tstamp"`
	Scripted   bool       `json:"scripted"`
	Worlds     []string   `json:"worlds"`
	Snapshots  []string   `json:"snapshots"`
	Properties Properties `json:"properties"`
	Backlog    []string   `json:"backlog"`
}

var snapshotActions = []string{
	ActionSnapshotCreate, ActionSnapshotRestore, ActionSnapshotDelete,
}

func (i *Instance) view() InstanceView {
	v := InstanceView{
		Name:       i.name,
		Engine:     i.engine,
		Jar:        i.jar,
		Status:     i.status(),
		Players:    i.players,
		Port:       i.port,
		Uptime:     "Off",
		Reason:     i.reason,
		TimeStamp:  i.stamp,
		Scripted:   i.scripted,
		Worlds:     append([]string{}, i.worlds...),
		Snapshots:  append([]string{}, i.snapshots...),
		Properties: i.properties.clone(),
		Backlog:    i.backlog.Lines(),
	}
	if !i.started.IsZero() {
		v.Uptime = time.Since(i.started).Truncate(time.Second).String()
	}
	if v.Properties == nil {
		v.Properties = Properties{}
	}
	return v
}

// allowed evaluates a permission, treating errors as a denial.  Call with
// lock held.
func (m *Registry) allowed(user, action, target string, view RegistryView) bool {
	ok, e := m.perms.Resolve(user, action, target, nil, view)
	if e != nil {
		m.logger.WithError(e).WithField("user", user).Debug("permission check failed")
		return false
	}
	return ok
}

func (m *Registry) maskedView(user string, i *Instance, view RegistryView) InstanceView {
	v := i.view()
	if !m.allowed(user, ActionConsole, i.name, view) {
		v.Backlog = []string{}
	}
	snaps := false
	for _, a := range snapshotActions {
		if m.allowed(user, a, i.name, view) {
			snaps = true
			break
		}
	}
	if !snaps {
		v.Snapshots = []string{}
	}
	return v
}

// Views returns every instance as seen by user.
func (m *Registry) Views(user string) map[string]InstanceView {
	m.lock()
	defer m.unlock()
	view := m.view()
	rv := make(map[string]InstanceView, len(m.instances))
	for name, i := range m.instances {
		rv[name] = m.maskedView(user, i, view)
	}
	return rv
}

// InstanceView returns one instance as seen by user.  A missing instance
// is reported as ErrNoInstance.
func (m *Registry) InstanceView(user, name string) (InstanceView, error) {
	m.lock()
	defer m.unlock()
	i, ok := m.instances[name]
	if !ok {
		return InstanceView{}, ErrNoInstance
	}
	return m.maskedView(user, i, m.view()), nil
}

// CanSeeConsole reports whether user may read the console of the named
// instance.
func (m *Registry) CanSeeConsole(user, name string) bool {
	m.lock()
	defer m.unlock()
	return m.allowed(user, ActionConsole, name, m.view())
}
