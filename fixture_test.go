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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeProc stands in for a server process.  Tests feed it output with
// Print and end it with Exit; those must be called without the registry
// lock held.
type fakeProc struct {
	spec  SpawnSpec
	out   func(string)
	exit  func(error)
	lines []string
	sigs  []os.Signal
	lock  sync.Mutex
}

func (p *fakeProc) WriteLine(line string) error {
	p.lock.Lock()
	p.lines = append(p.lines, line)
	p.lock.Unlock()
	return nil
}

func (p *fakeProc) Signal(sig os.Signal) error {
	p.lock.Lock()
	p.sigs = append(p.sigs, sig)
	p.lock.Unlock()
	return nil
}

func (p *fakeProc) Pid() int {
	return 4242
}

func (p *fakeProc) Lines() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string{}, p.lines...)
}

func (p *fakeProc) Signals() []os.Signal {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]os.Signal{}, p.sigs...)
}

func (p *fakeProc) Wrote(line string) bool {
	for _, l := range p.Lines() {
		if l == line {
			return true
		}
	}
	return false
}

func (p *fakeProc) Print(line string) {
	p.out(line)
}

func (p *fakeProc) Exit(e error) {
	p.exit(e)
}

type fakeSpawner struct {
	procs []*fakeProc
	fail  error
	lock  sync.Mutex
}

func (s *fakeSpawner) Spawn(spec SpawnSpec, out func(string), exit func(error)) (Process, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	p := &fakeProc{spec: spec, out: out, exit: exit}
	s.procs = append(s.procs, p)
	return p, nil
}

// Last returns the most recently spawned process.
func (s *fakeSpawner) Last() *fakeProc {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

func (s *fakeSpawner) Count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.procs)
}

// notes collects Notifier messages.
type notes struct {
	texts []string
	lock  sync.Mutex
}

func (n *notes) Notify(text string) {
	n.lock.Lock()
	n.texts = append(n.texts, text)
	n.lock.Unlock()
}

func (n *notes) Has(text string) bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, t := range n.texts {
		if t == text {
			return true
		}
	}
	return false
}

func (n *notes) Count(text string) int {
	n.lock.Lock()
	defer n.lock.Unlock()
	c := 0
	for _, t := range n.texts {
		if t == text {
			c++
		}
	}
	return c
}

// eventually polls cond for up to two seconds.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func writeFile(t *testing.T, path, content string) {
	if e := os.MkdirAll(filepath.Dir(path), 0755); e != nil {
		t.Fatal(e)
	}
	if e := os.WriteFile(path, []byte(content), 0644); e != nil {
		t.Fatal(e)
	}
}

// makeServer lays out a runnable instance with one world.
func makeServer(t *testing.T, root, name, ops string, props ...string) {
	dir := filepath.Join(root, name)
	writeFile(t, filepath.Join(dir, "server.jar"), "jar")
	writeFile(t, filepath.Join(dir, ops), "[]")
	writeFile(t, filepath.Join(dir, "server.properties"),
		"#Minecraft server properties\n"+strings.Join(props, "\n")+"\n")
	writeFile(t, filepath.Join(dir, "world", "level.dat"), "level")
	writeFile(t, filepath.Join(dir, "world", "region", "r.0.0.mca"), "region")
}

// makeRoot returns a root with these instances:
//
//	alpha  JSON engine, port 25570
//	beta   Classic engine, port 25570
//	gamma  JSON engine, no port property
//	notes  no engine
func makeRoot(t *testing.T) string {
	root := t.TempDir()
	makeServer(t, root, "alpha", "ops.json", "server-port=25570", "level-name=world")
	makeServer(t, root, "beta", "ops.txt", "server-port=25570")
	makeServer(t, root, "gamma", "ops.json", "max-players=5")
	writeFile(t, filepath.Join(root, "notes", "README"), "nothing to run")
	writeFile(t, filepath.Join(root, ".trash", "server.jar"), "jar")
	return root
}

const testPermissions = `
users:
  admin: ["admin:password", "admin2:secret2"]
  guest: ["guest:guest"]
acl:
  $$: { start: false, stop: false }
  $guest:
    start: { deny: ["beta"] }
    console: true
  $admin:
    extends: $guest
    start: true
    stop: true
    kill: true
    command: true
    snapshot_create: true
    snapshot_restore: true
    snapshot_delete: true
    rescan: true
    debug: true
  admin2: { kill: false, console: false }
`

func testConfig(root string, sp *fakeSpawner, logger logrus.FieldLogger) Config {
	return Config{
		Root:               root,
		Java:               "java",
		JavaArgs:           []string{"-Xmx1G"},
		Spawner:            sp.Spawn,
		Logger:             logger,
		StopDelay:          20 * time.Millisecond,
		KillInterruptAfter: 30 * time.Millisecond,
		KillTerminateAfter: 30 * time.Millisecond,
		PollDebounce:       10 * time.Millisecond,
		BroadcastInterval:  time.Hour,
		QuietGrace:         10 * time.Millisecond,
		QuietTimeout:       200 * time.Millisecond,
	}
}

// newTestRegistry returns a scanned registry over makeRoot, with
// testPermissions installed.
func newTestRegistry(t *testing.T) (*Registry, *fakeSpawner, string) {
	root := makeRoot(t)
	sp := &fakeSpawner{}
	logger, _ := test.NewNullLogger()
	m := NewRegistry(testConfig(root, sp, logger))
	c, e := ParsePermissions(strings.NewReader(testPermissions))
	if e != nil {
		t.Fatal(e)
	}
	m.SetPermissions(c)
	if e := m.Scan(); e != nil {
		t.Fatal(e)
	}
	return m, sp, root
}

// running starts the named instance and takes it to Running.
func running(t *testing.T, m *Registry, sp *fakeSpawner, name string) (*Instance, *fakeProc) {
	inst, ok := m.Instance(name)
	if !ok {
		t.Fatalf("no instance %s", name)
	}
	if e := inst.Start(); e != nil {
		t.Fatal(e)
	}
	p := sp.Last()
	p.Print("[12:00:00] [Server thread/INFO]: Done (1.234s)! For help, type \"help\"")
	if inst.Status() != Running {
		t.Fatalf("%s is %v", name, inst.Status())
	}
	return inst, p
}
