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
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/mcvisor/archive"
)

var snapshotRe = regexp.MustCompile(`^(.+)-snapshot-(\d+)` + regexp.QuoteMeta(archive.Ext) + `$`)

// SnapshotName returns the archive name of a snapshot of world taken at t.
func SnapshotName(world string, t time.Time) string {
	return fmt.Sprintf("%s-snapshot-%d%s", world, t.UnixMilli(), archive.Ext)
}

// ParseSnapshotName is the inverse of SnapshotName.
func ParseSnapshotName(name string) (world string, t time.Time, ok bool) {
	m := snapshotRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	ms, e := strconv.ParseInt(m[2], 10, 64)
	if e != nil {
		return "", time.Time{}, false
	}
	return m[1], time.UnixMilli(ms), true
}

// plainName reports whether n can safely be used as a single path
// component.
func plainName(n string) bool {
	return n != "" && n != "." && n != ".." && !strings.ContainsAny(n, `/\`) &&
		filepath.Base(n) == n
}

func (i *Instance) hasSnapshot(name string) bool {
	for _, s := range i.snapshots {
		if s == name {
			return true
		}
	}
	return false
}

// Snapshots returns the archive names, sorted.
func (i *Instance) Snapshots() []string {
	i.reg.lock()
	defer i.reg.unlock()
	return append([]string{}, i.snapshots...)
}

// Worlds returns the world directories.
func (i *Instance) Worlds() []string {
	i.reg.lock()
	defer i.reg.unlock()
	return append([]string{}, i.worlds...)
}

// CreateSnapshot archives a world.  If the server is running, it is first
// asked to flush the world to disk, and autosave is disabled until the
// archive is complete.  The instance is Busy meanwhile.  CreateSnapshot
// returns once the work has begun; the outcome is reported to notify.
func (i *Instance) CreateSnapshot(world string, notify Notifier) error {
	i.reg.lock()
	defer i.reg.unlock()

	if i.engine == "" {
		return ErrNoEngine
	}
	if i.exclusive || i.state == stateStarting || i.state == stateStopping {
		return ErrBusy
	}
	if !plainName(world) {
		return resourceErr("no such world %q", world)
	}
	if st, e := os.Stat(filepath.Join(i.dir, world)); e != nil || !st.IsDir() {
		return resourceErr("no such world %q", world)
	}

	i.exclusive = true
	i.setReason("Creating snapshot of " + world)
	i.reg.changed()

	name := SnapshotName(world, time.Now())
	run := func() {
		go i.archiveWorld(world, name, notify)
	}
	p := i.proc
	if p == nil {
		run()
		return nil
	}

	notify.notify("Server is running, disabling autosave...")
	i.flushAbort = run
	i.flushWatch = func(line string) {
		if !reSaved.MatchString(line) {
			return
		}
		i.flushWatch = nil
		i.flushAbort = nil
		i.write(p, "save-off")
		run()
	}
	i.write(p, "save-all")
	return nil
}

func (i *Instance) archiveWorld(world, name string, notify Notifier) {
	notify.notify("Creating snapshot...")
	dst := filepath.Join(i.dir, snapshotDir, name)
	e := archive.Create(dst, i.dir, world, func(entry string) {
		notify.notify("adding: " + entry)
	})

	i.reg.lock()
	defer i.reg.unlock()
	i.exclusive = false
	if p := i.proc; p != nil {
		i.write(p, "save-on")
	}
	if se := i.scanSnapshots(); se != nil {
		i.logger.WithError(se).Warn("cannot rescan snapshots")
	}
	if e != nil {
		i.logger.WithError(e).Warn("snapshot failed")
		i.setReason("Snapshot failed")
		notify.notify("Snapshot failed: " + e.Error())
	} else {
		i.setReason("Created snapshot " + name)
		notify.notify("Snapshot created!")
	}
	i.reg.changed()
}

// DeleteSnapshot removes a snapshot archive.  It is allowed in any state,
// except while the archive is being restored.
func (i *Instance) DeleteSnapshot(name string, notify Notifier) error {
	i.reg.lock()
	defer i.reg.unlock()

	if !plainName(name) || !i.hasSnapshot(name) {
		return resourceErr("no such snapshot %q", name)
	}
	if i.exclusive && i.exclusiveOn == name {
		return ErrBusy
	}
	if e := os.Remove(filepath.Join(i.dir, snapshotDir, name)); e != nil {
		return resourceErr("%v", e)
	}
	if e := i.scanSnapshots(); e != nil {
		i.logger.WithError(e).Warn("cannot rescan snapshots")
	}
	i.logger.WithField("snapshot", name).Info("Deleted snapshot")
	i.reg.changed()
	notify.notify("Snapshot deleted!")
	return nil
}

// RestoreSnapshot replaces a world with the contents of a snapshot.  The
// server must be stopped.  Like CreateSnapshot it returns once the work
// has begun, and the instance is Busy until it finishes.
func (i *Instance) RestoreSnapshot(world, name string, notify Notifier) error {
	i.reg.lock()
	defer i.reg.unlock()

	if i.engine == "" {
		return ErrNoEngine
	}
	if i.exclusive {
		return ErrBusy
	}
	if i.state != stateStopped || i.proc != nil {
		return ErrNotStopped
	}
	if e := i.restoreTarget(world); e != nil {
		return e
	}
	if !plainName(name) || !i.hasSnapshot(name) {
		return resourceErr("no such snapshot %q", name)
	}

	i.exclusive = true
	i.exclusiveOn = name
	i.setReason("Restoring " + name)
	i.reg.changed()
	go i.restoreWorld(world, name, notify)
	return nil
}

// restoreTarget checks that world may be replaced: either nothing by that
// name exists yet, or it is a world directory holding level.dat.
func (i *Instance) restoreTarget(world string) error {
	if !plainName(world) || world == snapshotDir {
		return resourceErr("bad world name %q", world)
	}
	dir := filepath.Join(i.dir, world)
	st, e := os.Stat(dir)
	if os.IsNotExist(e) {
		return nil
	}
	if e != nil {
		return resourceErr("%v", e)
	}
	if !st.IsDir() {
		return resourceErr("%q is not a world", world)
	}
	if _, e := os.Stat(filepath.Join(dir, "level.dat")); e != nil {
		return resourceErr("%q is not a world", world)
	}
	return nil
}

func (i *Instance) restoreWorld(world, name string, notify Notifier) {
	progress := func(line string) {
		notify.notify(line)
		i.reg.lock()
		i.log(line)
		i.reg.unlock()
	}
	progress(fmt.Sprintf("Restoring %s into %s...", name, world))

	e := os.RemoveAll(filepath.Join(i.dir, world))
	if e == nil {
		src := filepath.Join(i.dir, snapshotDir, name)
		e = archive.Extract(src, i.dir, world, func(entry string) {
			progress("inflating: " + entry)
		})
	}

	i.reg.lock()
	defer i.reg.unlock()
	i.exclusive = false
	i.exclusiveOn = ""
	if se := i.scanSnapshots(); se != nil {
		i.logger.WithError(se).Warn("cannot rescan snapshots")
	}
	if e != nil {
		i.logger.WithError(e).Warn("restore failed")
		i.setReason("Restore failed")
		notify.notify("Restore failed: " + e.Error())
	} else {
		i.setReason("Restored " + name)
		notify.notify("Snapshot restored!")
	}
	i.reg.changed()
}
