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
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls a Registry.  Zero durations take their defaults.
type Config struct {
	// Root is the directory holding one subdirectory per instance.
	Root string

	// Permissions is the permission file reloaded by Rescan.  It may be
	// empty, in which case Rescan only scans instances.
	Permissions string

	// Java is the runtime used to launch server jars.
	Java string

	// JavaArgs are passed before "-jar".
	JavaArgs []string

	// Spawner starts server processes.  Defaults to ExecSpawner.
	Spawner Spawner

	// Logger receives operator-facing log messages.
	Logger logrus.FieldLogger

	// Metrics, when not nil, is kept up to date with instance state.
	Metrics *Metrics

	StopDelay          time.Duration
	KillInterruptAfter time.Duration
	KillTerminateAfter time.Duration
	PollDebounce       time.Duration
	BroadcastInterval  time.Duration
	QuietGrace         time.Duration
	QuietTimeout       time.Duration
}

func (c *Config) setDefaults() {
	dur := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	dur(&c.StopDelay, 10*time.Second)
	dur(&c.KillInterruptAfter, 10*time.Second)
	dur(&c.KillTerminateAfter, 5*time.Second)
	dur(&c.PollDebounce, time.Second)
	dur(&c.BroadcastInterval, 5*time.Second)
	dur(&c.QuietGrace, 50*time.Millisecond)
	dur(&c.QuietTimeout, 5*time.Second)
	if c.Root == "" {
		c.Root = "."
	}
	if c.Java == "" {
		c.Java = "java"
	}
	if c.Spawner == nil {
		c.Spawner = ExecSpawner
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Registry owns every instance under a root directory, along with the
// permission configuration.  A single lock covers the registry and all of
// its instances; every callback from processes, timers and sessions takes
// it for one turn.
type Registry struct {
	cfg        Config
	instances  map[string]*Instance
	perms      *PermissionConfig
	hub        Hub
	log        *Log
	logger     logrus.FieldLogger
	pollTimer  *time.Timer
	done       chan struct{}
	shutdown   bool
	serial     int64
	listSerial int64
	createTime time.Time
	updateTime time.Time
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool
}

// RegistryInfo is top-level information about a Registry.
type RegistryInfo struct {
	Root       string
	Serial     int64
	Instances  int
	UpdateTime time.Time
	CreateTime time.Time
}

// NewRegistry returns a registry for cfg.Root.  It has no instances until
// Scan is called.  A background goroutine broadcasts the status
// periodically until Shutdown.
func NewRegistry(cfg Config) *Registry {
	cfg.setDefaults()
	// The serial starts at the current time in nanoseconds, so that
	// clients caching by serial notice a restart.
	m := &Registry{
		cfg:        cfg,
		instances:  make(map[string]*Instance),
		perms:      NewPermissionConfig(nil),
		log:        NewLog(MaxLogRecords),
		logger:     cfg.Logger,
		done:       make(chan struct{}),
		serial:     time.Now().UnixNano(),
		createTime: time.Now(),
		cvs:        make(map[*sync.Cond]bool),
	}
	m.updateTime = m.createTime
	go m.broadcaster()
	return m
}

func (m *Registry) lock() {
	m.mx.Lock()
}

func (m *Registry) unlock() {
	m.mx.Unlock()
}

func (m *Registry) wakeUp() {
	// NB: If the lock is not held here, then there is a risk
	// that the woken goroutines won't see the updated serial.
	for cv := range m.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers.  Call with lock
// held.
func (m *Registry) bumpSerial() int64 {
	m.updateTime = time.Now()
	m.serial++
	m.wakeUp()
	return m.serial
}

// changed records that visible state may have changed, and publishes a
// status event.  Call with lock held.
func (m *Registry) changed() {
	m.bumpSerial()
	if mt := m.cfg.Metrics; mt != nil {
		mt.setInstances(len(m.instances))
		for _, i := range m.instances {
			mt.observe(i)
		}
	}
	m.hub.Publish(Event{Kind: EventStatus})
}

func (m *Registry) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&m.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			m.lock()
			expired = true
			cv.Broadcast()
			m.unlock()
		})
	} else {
		expired = true
	}

	m.lock()
	m.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(m.cvs, cv)
	m.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// WatchSerial waits for the global serial to move away from old, or for
// expire to elapse, and returns the serial.  An expire of zero polls.
func (m *Registry) WatchSerial(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.serial, expire)
}

// WatchInstances is like WatchSerial, but only wakes for changes to the
// set of instances.
func (m *Registry) WatchInstances(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.listSerial, expire)
}

// Serial returns the global serial, which changes whenever any visible
// state does.
func (m *Registry) Serial() int64 {
	m.lock()
	defer m.unlock()
	return m.serial
}

// GetInfo returns a consistent summary of the registry.
func (m *Registry) GetInfo() *RegistryInfo {
	m.lock()
	defer m.unlock()
	return &RegistryInfo{
		Root:       m.cfg.Root,
		Serial:     m.serial,
		Instances:  len(m.instances),
		CreateTime: m.createTime,
		UpdateTime: m.updateTime,
	}
}

// Root returns the instance root directory.
func (m *Registry) Root() string {
	return m.cfg.Root
}

// Log returns the registry event log.  It is an io.Writer, suitable as a
// logger output.
func (m *Registry) Log() *Log {
	return m.log
}

// GetLog returns records of the event log newer than lastid.
func (m *Registry) GetLog(lastid int64) ([]LogRecord, int64) {
	return m.log.GetRecords(lastid)
}

// WatchLog waits for the event log to change.
func (m *Registry) WatchLog(old int64, expire time.Duration) int64 {
	return m.log.Watch(old, expire)
}

// Scan reconciles the registry with the root directory.  New directories
// become instances, known ones are rescanned, and instances whose
// directory went away are interrupted and dropped.
func (m *Registry) Scan() error {
	m.lock()
	defer m.unlock()

	entries, e := os.ReadDir(m.cfg.Root)
	if e != nil {
		return resourceErr("scanning %s: %v", m.cfg.Root, e)
	}

	seen := make(map[string]bool, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		if !ent.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		seen[name] = true

		if inst, ok := m.instances[name]; ok {
			if inst.engine == "" {
				// Metadata-only instances are reclassified, in case
				// a jar showed up.
				if ni, e := newInstance(m, name); e == nil && ni.engine != "" {
					m.instances[name] = ni
					m.listSerial = m.bumpSerial()
				}
				continue
			}
			if e := inst.rescan(); e != nil {
				inst.logger.WithError(e).Warn("rescan failed")
			}
			continue
		}

		inst, e := newInstance(m, name)
		if e != nil {
			m.logger.WithError(e).WithField("instance", name).Warn("cannot load instance")
			continue
		}
		m.instances[name] = inst
		m.listSerial = m.bumpSerial()
	}

	for name, inst := range m.instances {
		if seen[name] {
			continue
		}
		inst.detach()
		delete(m.instances, name)
		if mt := m.cfg.Metrics; mt != nil {
			mt.forget(name)
		}
		m.listSerial = m.bumpSerial()
	}
	m.changed()
	return nil
}

// Instance looks up an instance by name.
func (m *Registry) Instance(name string) (*Instance, bool) {
	m.lock()
	defer m.unlock()
	i, ok := m.instances[name]
	return i, ok
}

// Instances returns every instance, ordered by name.
func (m *Registry) Instances() []*Instance {
	m.lock()
	defer m.unlock()
	return m.sorted()
}

func (m *Registry) sorted() []*Instance {
	rv := make([]*Instance, 0, len(m.instances))
	for _, i := range m.instances {
		rv = append(rv, i)
	}
	sort.Slice(rv, func(a, b int) bool { return rv[a].name < rv[b].name })
	return rv
}

// portConflict returns the name of another active instance configured for
// the same port as i, if there is one.
func (m *Registry) portConflict(i *Instance) string {
	for _, o := range m.sorted() {
		if o == i || o.engine == "" {
			continue
		}
		if o.port == i.port && (o.status() != Stopped || o.proc != nil) {
			return o.name
		}
	}
	return ""
}

func (m *Registry) view() RegistryView {
	view := make(RegistryView, len(m.instances))
	for name, i := range m.instances {
		view[name] = i.info()
	}
	return view
}

// View returns a snapshot of every instance, as seen by permission rules.
func (m *Registry) View() RegistryView {
	m.lock()
	defer m.unlock()
	return m.view()
}

// Subscribe registers fn for events.  See Subscriber for the rules fn must
// follow.
func (m *Registry) Subscribe(fn Subscriber) func() {
	return m.hub.Subscribe(fn)
}

// Broadcast publishes a status event, prompting subscribers to refresh.
func (m *Registry) Broadcast() {
	m.lock()
	m.hub.Publish(Event{Kind: EventStatus})
	m.unlock()
}

func (m *Registry) broadcaster() {
	t := time.NewTicker(m.cfg.BroadcastInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.Broadcast()
		case <-m.done:
			return
		}
	}
}

// requestOnlineCheck schedules PollOnline, coalescing requests that arrive
// within the debounce window.  Call with lock held.
func (m *Registry) requestOnlineCheck() {
	if m.shutdown {
		return
	}
	if m.pollTimer != nil {
		m.pollTimer.Stop()
	}
	m.pollTimer = time.AfterFunc(m.cfg.PollDebounce, m.PollOnline)
}

// PollOnline asks every running instance for its player count.
func (m *Registry) PollOnline() {
	m.lock()
	defer m.unlock()
	m.pollTimer = nil
	for _, i := range m.sorted() {
		i.checkOnline()
	}
}

// Permissions returns the active permission configuration.
func (m *Registry) Permissions() *PermissionConfig {
	m.lock()
	defer m.unlock()
	return m.perms
}

// SetPermissions replaces the permission configuration.
func (m *Registry) SetPermissions(c *PermissionConfig) {
	m.lock()
	m.perms = c
	m.changed()
	m.unlock()
}

// LoadPermissions reads path and installs it.  On error the previous
// configuration stays in place.
func (m *Registry) LoadPermissions(path string) error {
	c, e := LoadPermissions(path)
	if e != nil {
		m.logger.WithError(e).Error("cannot load permissions")
		return e
	}
	m.SetPermissions(c)
	m.logger.WithField("path", path).Info("Loaded permissions")
	return nil
}

// Rescan reloads the permission file, if one is configured, and then
// scans the root directory.  The scan runs even if the permissions could
// not be loaded.
func (m *Registry) Rescan() error {
	var perr error
	if path := m.cfg.Permissions; path != "" {
		perr = m.LoadPermissions(path)
	}
	return errors.Join(perr, m.Scan())
}

// Login checks the credentials of a user.
func (m *Registry) Login(name, secret string) (Identity, error) {
	m.lock()
	users := m.perms.Users
	m.unlock()

	id, ok := users.Lookup(name)
	if !ok {
		return Identity{}, ErrUnknownUser
	}
	if !id.CheckSecret(secret) {
		return Identity{}, ErrBadSecret
	}
	return id, nil
}

func (m *Registry) authorize(user, action, target string, args []string) error {
	allow, e := m.perms.Resolve(user, action, target, args, m.view())
	if e != nil {
		m.logger.WithError(e).WithField("user", user).Warn("permission check failed")
		if !errors.Is(e, ErrDenied) {
			e = fmt.Errorf("%w: %v", ErrDenied, e)
		}
		return e
	}
	if !allow {
		return ErrDenied
	}
	return nil
}

// Authorize reports whether user may perform action against target.  The
// result is nil, or an error wrapping ErrDenied.
func (m *Registry) Authorize(user, action, target string, args ...string) error {
	m.lock()
	defer m.unlock()
	return m.authorize(user, action, target, args)
}

// Capabilities returns the permission summary of user, with every rule
// coerced to a boolean.
func (m *Registry) Capabilities(user string) map[string]bool {
	m.lock()
	defer m.unlock()
	caps, e := m.perms.Capabilities(user)
	if e != nil {
		m.logger.WithError(e).WithField("user", user).Warn("cannot compute capabilities")
	}
	return caps
}

// Interrupt sends an interrupt to every attached process.  It is used when
// the supervisor itself is going down abnormally.
func (m *Registry) Interrupt() {
	m.lock()
	defer m.unlock()
	for _, i := range m.instances {
		if p := i.proc; p != nil {
			if e := p.Signal(os.Interrupt); e != nil {
				i.logger.WithError(e).Warn("Failed sending SIGINT")
			}
		}
	}
}

// Shutdown stops background activity, interrupts every attached process
// and unloads extension hooks.  The registry must not be used afterwards.
func (m *Registry) Shutdown() {
	m.lock()
	if m.shutdown {
		m.unlock()
		return
	}
	m.shutdown = true
	close(m.done)
	if m.pollTimer != nil {
		m.pollTimer.Stop()
		m.pollTimer = nil
	}
	for _, i := range m.instances {
		i.detach()
	}
	m.unlock()
	m.logger.WithField("root", m.cfg.Root).Info("*** Registry shut down ***")
}
