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
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the externally visible state of an instance.
type Status int

const (
	Stopped Status = 0
	Busy    Status = 1
	Running Status = 2
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Busy:
		return "busy"
	case Running:
		return "running"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

type lifecycle int

const (
	stateStopped lifecycle = iota
	stateStarting
	stateRunning
	stateStopping
)

// Engine names, by the operator list format found next to the jar.
const (
	EngineJSON    = "JSON"
	EngineClassic = "Classic"
)

// DefaultPort is what a server listens on without a server-port property.
const DefaultPort = 25565

const snapshotDir = "snapshots"

// Notifier receives progress messages of an operation.  It may be called
// from any goroutine, including with the registry lock held, so it must
// not block.  A nil Notifier discards messages.
type Notifier func(text string)

func (n Notifier) notify(text string) {
	if n != nil {
		n(text)
	}
}

var (
	reJoinLeave = regexp.MustCompile(`(joined|left) the game`)
	reDone      = regexp.MustCompile(`Done \(.*?\)!`)
	reSaved     = regexp.MustCompile(`\]: Saved the (world|game)`)
	rePlayers   = regexp.MustCompile(`\]: There are (\d+)(?:/| of a max(?: of)? )\d+ players online`)
)

// Instance is one managed server.  It moves through the following states.
// The exclusive flag, held by snapshot operations, is orthogonal; while it
// is set the instance reports Busy and refuses other maintenance.
//
//	            Start
//	 +---------+ ----> +----------+  "Done (..)!"  +---------+
//	 | Stopped |       | Starting | -------------> | Running |
//	 +---------+       +----------+                +---------+
//	      ^                 |                           |
//	      |  onStopped      | exit                 Stop | exit
//	      |                 v                           v
//	      |            +----------+                     |
//	      +----------- | Stopping | <-------------------+
//	                   +----------+
//
// Starting and Stopping are both reported as Busy.
//
// Instance methods take the registry lock, so they are safe for
// concurrent use.
type Instance struct {
	reg         *Registry
	name        string
	dir         string
	engine      string
	jar         string
	state       lifecycle
	exclusive   bool
	exclusiveOn string
	port        int
	started     time.Time
	players     int
	properties  Properties
	snapshots   []string
	worlds      []string
	backlog     *Log
	proc        Process
	hooks       Hooks
	scripted    bool
	quiet       bool
	pollWatch   func(string)
	pollGen     int
	flushWatch  func(string)
	flushAbort  func()
	stopTimer   *time.Timer
	killTimer   *time.Timer
	reason      string
	stamp       time.Time
	logger      logrus.FieldLogger
}

// newInstance classifies and loads the instance directory name under the
// registry root.  Call with the registry lock held.
func newInstance(m *Registry, name string) (*Instance, error) {
	i := &Instance{
		reg:     m,
		name:    name,
		dir:     filepath.Join(m.cfg.Root, name),
		backlog: NewLog(BacklogSize),
		hooks:   noHooks{},
		logger:  m.logger.WithField("instance", name),
	}

	entries, e := os.ReadDir(i.dir)
	if e != nil {
		return nil, resourceErr("%v", e)
	}
	var jars []string
	ops := map[string]bool{}
	for _, ent := range entries {
		switch {
		case ent.IsDir():
		case strings.HasSuffix(ent.Name(), ".jar"):
			jars = append(jars, ent.Name())
		case ent.Name() == "ops.json", ent.Name() == "ops.txt":
			ops[ent.Name()] = true
		}
	}
	if len(jars) == 1 {
		switch {
		case ops["ops.json"]:
			i.engine = EngineJSON
		case ops["ops.txt"]:
			i.engine = EngineClassic
		}
	}
	if i.engine == "" {
		i.setReason("No runnable engine")
		return i, nil
	}
	i.jar = jars[0]

	if e := i.scanProperties(); e != nil {
		return nil, e
	}
	if e := i.scanSnapshots(); e != nil {
		return nil, e
	}
	i.scanScripts()
	i.setReason("Added instance")
	return i, nil
}

func (i *Instance) setReason(r string) {
	i.reason = r
	i.stamp = time.Now()
	i.logger.Info(r)
}

func (i *Instance) scanProperties() error {
	props, e := LoadProperties(filepath.Join(i.dir, "server.properties"))
	if e != nil {
		return e
	}
	i.properties = props
	if i.port = props.Port(); i.port == 0 {
		i.port = DefaultPort
	}
	return nil
}

// scanSnapshots reads the snapshot directory, creating it if needed, and
// the list of worlds (directories holding a level.dat).
func (i *Instance) scanSnapshots() error {
	sdir := filepath.Join(i.dir, snapshotDir)
	entries, e := os.ReadDir(sdir)
	if os.IsNotExist(e) {
		if e = os.MkdirAll(sdir, 0755); e != nil {
			return resourceErr("%v", e)
		}
		entries = nil
	} else if e != nil {
		return resourceErr("%v", e)
	}
	snaps := make([]string, 0, len(entries))
	for _, ent := range entries {
		if ent.Type().IsRegular() && !strings.HasSuffix(ent.Name(), ".part") {
			snaps = append(snaps, ent.Name())
		}
	}
	sort.Strings(snaps)
	i.snapshots = snaps

	entries, e = os.ReadDir(i.dir)
	if e != nil {
		return resourceErr("%v", e)
	}
	worlds := []string{}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		if _, e := os.Stat(filepath.Join(i.dir, ent.Name(), "level.dat")); e == nil {
			worlds = append(worlds, ent.Name())
		}
	}
	i.worlds = worlds
	return nil
}

// scanScripts (re)installs the extension hooks.
func (i *Instance) scanScripts() {
	i.hooks.Unload()
	i.hooks = noHooks{}
	i.scripted = false

	path := filepath.Join(i.dir, ScriptFile)
	if _, e := os.Stat(path); e == nil {
		if h, e := loadScriptHooks(path, i); e != nil {
			i.logger.WithError(e).Warn("cannot load extension script")
		} else {
			i.hooks = h
			i.scripted = true
		}
	}
	i.hooks.Load()
}

// Name returns the instance name, which is its directory name.
func (i *Instance) Name() string {
	return i.name
}

// Dir returns the instance directory.
func (i *Instance) Dir() string {
	return i.dir
}

// Engine returns the detected engine, or "" for metadata-only instances.
func (i *Instance) Engine() string {
	return i.engine
}

func (i *Instance) status() Status {
	switch {
	case i.exclusive, i.state == stateStarting, i.state == stateStopping:
		return Busy
	case i.state == stateRunning:
		return Running
	}
	return Stopped
}

// Status returns the visible status.
func (i *Instance) Status() Status {
	i.reg.lock()
	defer i.reg.unlock()
	return i.status()
}

// Reason returns the most recent status message, and when it was recorded.
func (i *Instance) Reason() (string, time.Time) {
	i.reg.lock()
	defer i.reg.unlock()
	return i.reason, i.stamp
}

func (i *Instance) info() InstanceInfo {
	return InstanceInfo{
		Name:       i.name,
		Engine:     i.engine,
		Status:     i.status(),
		Port:       i.port,
		Players:    i.players,
		Snapshots:  append([]string{}, i.snapshots...),
		Worlds:     append([]string{}, i.worlds...),
		Properties: i.properties.clone(),
	}
}

// Info returns a copy of the rule-visible state.
func (i *Instance) Info() InstanceInfo {
	i.reg.lock()
	defer i.reg.unlock()
	return i.info()
}

// Backlog returns the recent console lines.
func (i *Instance) Backlog() []string {
	return i.backlog.Lines()
}

// Uptime returns how long the process has been attached, or zero.
func (i *Instance) Uptime() time.Duration {
	i.reg.lock()
	defer i.reg.unlock()
	if i.started.IsZero() {
		return 0
	}
	return time.Since(i.started)
}

// Start launches the server.  It fails unless the instance is stopped, and
// if another active instance is configured for the same port.
func (i *Instance) Start() error {
	i.reg.lock()
	defer i.reg.unlock()
	return i.start()
}

func (i *Instance) start() error {
	if i.engine == "" {
		return ErrNoEngine
	}
	if i.state != stateStopped || i.exclusive {
		return stateErr("server %q cannot be started right now", i.name)
	}
	if other := i.reg.portConflict(i); other != "" {
		return stateErr("port %d of server %q conflicts with server %q", i.port, i.name, other)
	}
	i.state = stateStarting
	i.setReason("Starting")
	i.reg.changed()

	var err error
	i.hooks.Start(func() {
		err = i.spawn()
	})
	return err
}

func (i *Instance) spawn() error {
	if i.state != stateStarting || i.proc != nil {
		return nil
	}
	cfg := &i.reg.cfg
	argv := append([]string{cfg.Java}, cfg.JavaArgs...)
	argv = append(argv, "-jar", i.jar)

	var p Process
	out := func(line string) {
		i.reg.lock()
		if i.proc == p {
			i.handleLine(line)
		}
		i.reg.unlock()
	}
	exit := func(e error) {
		i.reg.lock()
		i.exited(p, e)
		i.reg.unlock()
	}

	p, e := cfg.Spawner(SpawnSpec{Dir: i.dir, Argv: argv}, out, exit)
	if e != nil {
		i.state = stateStopped
		i.setReason("Failed to start: " + e.Error())
		i.reg.changed()
		if !errors.Is(e, ErrResource) {
			e = resourceErr("%v", e)
		}
		return e
	}
	i.proc = p
	i.started = time.Now()
	i.players = 0
	i.logger.WithField("pid", p.Pid()).Info("Process started")
	i.reg.changed()
	return nil
}

func (i *Instance) handleLine(line string) {
	if i.state == stateRunning && reJoinLeave.MatchString(line) {
		i.reg.requestOnlineCheck()
	}
	if i.state == stateStarting && reDone.MatchString(line) {
		i.state = stateRunning
		i.setReason("Running")
		i.reg.changed()
		i.hooks.Ready()
	}
	i.hooks.Log(line)
	i.log(line)
}

// log records a console line.  Internal observers always see it; the
// backlog and subscribers only when not in quiet mode.
func (i *Instance) log(line string) {
	if w := i.flushWatch; w != nil {
		w(line)
	}
	if w := i.pollWatch; w != nil {
		w(line)
	}
	if i.quiet {
		return
	}
	i.backlog.Append(line)
	i.reg.hub.Publish(Event{Kind: EventConsole, Instance: i.name, Line: line})
}

func (i *Instance) write(p Process, line string) {
	if e := p.WriteLine(line); e != nil {
		i.logger.WithError(e).Warnf("cannot send %q", line)
	}
}

func (i *Instance) cancelTimers() {
	if i.stopTimer != nil {
		i.stopTimer.Stop()
		i.stopTimer = nil
	}
	if i.killTimer != nil {
		i.killTimer.Stop()
		i.killTimer = nil
	}
}

func (i *Instance) exited(p Process, err error) {
	if i.proc != p {
		return
	}
	i.proc = nil
	i.cancelTimers()
	i.quiet = false
	i.pollWatch = nil
	if abort := i.flushAbort; abort != nil {
		// The world can no longer change; archive it as it is.
		i.flushWatch = nil
		i.flushAbort = nil
		abort()
	}
	if err != nil {
		i.logger.WithError(err).Info("Process exited")
	} else {
		i.logger.Info("Process exited cleanly")
	}
	i.state = stateStopping
	i.reg.changed()

	i.hooks.Stopped(func() {
		if i.proc != nil || i.state != stateStopping {
			return
		}
		i.state = stateStopped
		i.started = time.Time{}
		i.players = 0
		i.setReason("Stopped")
		i.reg.changed()
	})
}

// Stop shuts the server down gracefully: players are warned, and the stop
// command follows after the configured delay.
func (i *Instance) Stop() error {
	i.reg.lock()
	defer i.reg.unlock()

	if i.engine == "" {
		return ErrNoEngine
	}
	if i.proc == nil || i.state != stateRunning || i.exclusive {
		return ErrNotStoppable
	}
	p := i.proc
	i.state = stateStopping
	i.setReason("Stopping")
	i.reg.changed()

	i.hooks.Stop(func() {
		if i.proc != p {
			return
		}
		delay := i.reg.cfg.StopDelay
		i.write(p, fmt.Sprintf("say Stopping server in %v", delay))
		i.stopTimer = time.AfterFunc(delay, func() {
			i.reg.lock()
			defer i.reg.unlock()
			if i.proc == p {
				i.write(p, "stop")
			}
		})
	})
	return nil
}

// Kill stops the server forcefully.  The stop command is sent at once;
// if the process is still around after KillInterruptAfter it is
// interrupted, and after a further KillTerminateAfter it is killed.
// Each step is reported to notify.  Kill does not change the status by
// itself; that happens when the process exits.
func (i *Instance) Kill(notify Notifier) error {
	i.reg.lock()
	defer i.reg.unlock()

	if i.engine == "" {
		return ErrNoEngine
	}
	p := i.proc
	if p == nil {
		if i.state == stateStarting {
			// A start hook never let the process spawn.
			i.state = stateStopped
			i.setReason("Start aborted")
			i.reg.changed()
			notify.notify("Start aborted")
			return nil
		}
		return ErrNotActive
	}

	notify.notify("Stopping...")
	i.write(p, "stop")
	if i.killTimer != nil {
		// Escalation already pending.
		return nil
	}
	if i.stopTimer != nil {
		i.stopTimer.Stop()
		i.stopTimer = nil
	}

	cfg := &i.reg.cfg
	i.killTimer = time.AfterFunc(cfg.KillInterruptAfter, func() {
		i.reg.lock()
		defer i.reg.unlock()
		if i.proc != p {
			return
		}
		notify.notify("Sending SIGINT...")
		if e := p.Signal(os.Interrupt); e != nil {
			i.logger.WithError(e).Warn("Failed sending SIGINT")
		}
		i.killTimer = time.AfterFunc(cfg.KillTerminateAfter, func() {
			i.reg.lock()
			defer i.reg.unlock()
			if i.proc != p {
				return
			}
			notify.notify("Killing with SIGKILL!")
			if e := p.Signal(os.Kill); e != nil {
				i.logger.WithError(e).Warn("Failed sending SIGKILL")
			}
		})
	})
	return nil
}

// Execute sends a console command to a running server.
func (i *Instance) Execute(cmd string) error {
	i.reg.lock()
	defer i.reg.unlock()
	return i.execute(cmd)
}

func (i *Instance) execute(cmd string) error {
	if i.proc == nil || i.state != stateRunning || i.exclusive {
		return ErrNotStoppable
	}
	cmd = strings.NewReplacer("\r", " ", "\n", " ").Replace(cmd)
	i.log(cmd)
	if e := i.proc.WriteLine(cmd); e != nil {
		return resourceErr("sending command: %v", e)
	}
	return nil
}

// CheckOnline asks a running server how many players are online.  The
// exchange is kept out of the console log.
func (i *Instance) CheckOnline() {
	i.reg.lock()
	defer i.reg.unlock()
	i.checkOnline()
}

func (i *Instance) checkOnline() {
	if i.state != stateRunning || i.proc == nil || i.exclusive || i.pollWatch != nil {
		return
	}
	cfg := &i.reg.cfg
	i.pollGen++
	gen := i.pollGen
	matched := false
	i.quiet = true
	i.pollWatch = func(line string) {
		if matched {
			return
		}
		if m := rePlayers.FindStringSubmatch(line); m != nil {
			matched = true
			i.players, _ = strconv.Atoi(m[1])
			// The player names follow on the next line; stay quiet
			// a little longer to swallow them too.
			time.AfterFunc(cfg.QuietGrace, func() {
				i.reg.lock()
				i.endPoll(gen)
				i.reg.unlock()
			})
		}
	}
	time.AfterFunc(cfg.QuietTimeout, func() {
		i.reg.lock()
		i.endPoll(gen)
		i.reg.unlock()
	})
	if e := i.proc.WriteLine("list"); e != nil {
		i.endPoll(gen)
	}
}

func (i *Instance) endPoll(gen int) {
	if i.pollGen != gen || i.pollWatch == nil {
		return
	}
	i.pollWatch = nil
	i.quiet = false
	i.reg.changed()
}

// Rescan re-reads snapshots, worlds and the extension script, and the
// properties of a stopped server.  It does not affect the status.
func (i *Instance) Rescan() error {
	i.reg.lock()
	defer i.reg.unlock()
	e := i.rescan()
	i.reg.changed()
	return e
}

func (i *Instance) rescan() error {
	if i.engine == "" {
		return nil
	}
	e := i.scanSnapshots()
	i.scanScripts()
	if i.state == stateStopped && !i.exclusive {
		if pe := i.scanProperties(); pe != nil {
			i.logger.WithError(pe).Warn("keeping previous properties")
		}
	}
	return e
}

// detach is called when the instance directory went away.  Any attached
// process is interrupted.
func (i *Instance) detach() {
	i.cancelTimers()
	if p := i.proc; p != nil {
		if e := p.Signal(os.Interrupt); e != nil {
			i.logger.WithError(e).Warn("Failed sending SIGINT")
		}
	}
	i.hooks.Unload()
	i.hooks = noHooks{}
	i.setReason("Removed instance")
}
