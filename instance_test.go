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
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestInstanceStart(t *testing.T) {
	Convey("Starting an instance", t, func() {
		m, sp, root := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := m.Instance("alpha")
		So(alpha.Status(), ShouldEqual, Stopped)

		e := alpha.Start()
		So(e, ShouldBeNil)
		So(alpha.Status(), ShouldEqual, Busy)

		p := sp.Last()
		So(p, ShouldNotBeNil)
		So(p.spec.Dir, ShouldEqual, filepath.Join(root, "alpha"))
		So(p.spec.Argv, ShouldResemble, []string{"java", "-Xmx1G", "-jar", "server.jar"})
		So(alpha.Uptime(), ShouldBeGreaterThan, 0)

		Convey("Output before Done keeps it busy", func() {
			p.Print("[12:00:00] [Server thread/INFO]: Preparing level \"world\"")
			So(alpha.Status(), ShouldEqual, Busy)
			So(alpha.Backlog(), ShouldContain, "[12:00:00] [Server thread/INFO]: Preparing level \"world\"")
		})

		Convey("Done makes it running", func() {
			p.Print("[12:00:00] [Server thread/INFO]: Done (3.5s)! For help, type \"help\"")
			So(alpha.Status(), ShouldEqual, Running)
			r, _ := alpha.Reason()
			So(r, ShouldEqual, "Running")
		})

		Convey("A second start is refused", func() {
			e := alpha.Start()
			So(errors.Is(e, ErrStateConflict), ShouldBeTrue)
			So(sp.Count(), ShouldEqual, 1)
		})

		Convey("Another server on the same port is refused", func() {
			beta, _ := m.Instance("beta")
			e := beta.Start()
			So(errors.Is(e, ErrStateConflict), ShouldBeTrue)
			So(e.Error(), ShouldContainSubstring, "alpha")
			So(beta.Status(), ShouldEqual, Stopped)
		})

		Convey("A server on another port may start", func() {
			gamma, _ := m.Instance("gamma")
			So(gamma.Start(), ShouldBeNil)
			So(sp.Count(), ShouldEqual, 2)
		})

		Convey("Exit while starting returns to stopped", func() {
			p.Exit(errors.New("exit status 1"))
			So(alpha.Status(), ShouldEqual, Stopped)
			So(alpha.Uptime(), ShouldEqual, 0)

			Convey("And the port is free again", func() {
				beta, _ := m.Instance("beta")
				So(beta.Start(), ShouldBeNil)
			})
		})
	})

	Convey("A stopped server under maintenance holds its port", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := m.Instance("alpha")
		beta, _ := m.Instance("beta")

		// As if a snapshot restore were in flight.
		m.lock()
		alpha.exclusive = true
		alpha.exclusiveOn = "world-snapshot-1.tar.zst"
		m.unlock()
		So(alpha.Status(), ShouldEqual, Busy)

		e := beta.Start()
		So(errors.Is(e, ErrStateConflict), ShouldBeTrue)
		So(e.Error(), ShouldContainSubstring, "alpha")
		So(sp.Count(), ShouldEqual, 0)

		m.lock()
		alpha.exclusive = false
		alpha.exclusiveOn = ""
		m.unlock()
		So(beta.Start(), ShouldBeNil)
	})

	Convey("Instances without an engine cannot start", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		notes, ok := m.Instance("notes")
		So(ok, ShouldBeTrue)
		So(notes.Engine(), ShouldEqual, "")
		So(notes.Start(), ShouldEqual, ErrNoEngine)
		So(notes.Stop(), ShouldEqual, ErrNoEngine)
		So(notes.Kill(nil), ShouldEqual, ErrNoEngine)
		So(sp.Count(), ShouldEqual, 0)
	})

	Convey("A spawn failure is reported", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)
		sp.fail = errors.New("no java here")

		alpha, _ := m.Instance("alpha")
		e := alpha.Start()
		So(errors.Is(e, ErrResource), ShouldBeTrue)
		So(alpha.Status(), ShouldEqual, Stopped)
		r, _ := alpha.Reason()
		So(r, ShouldContainSubstring, "no java here")
	})
}

func TestInstanceStop(t *testing.T) {
	Convey("Stopping a running instance", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, p := running(t, m, sp, "alpha")
		So(alpha.Stop(), ShouldBeNil)
		So(alpha.Status(), ShouldEqual, Busy)
		So(p.Wrote("say Stopping server in 20ms"), ShouldBeTrue)

		So(eventually(func() bool { return p.Wrote("stop") }), ShouldBeTrue)

		Convey("Stop again is refused", func() {
			So(errors.Is(alpha.Stop(), ErrStateConflict), ShouldBeTrue)
		})

		Convey("The exit completes it", func() {
			p.Exit(nil)
			So(alpha.Status(), ShouldEqual, Stopped)
			r, _ := alpha.Reason()
			So(r, ShouldEqual, "Stopped")
		})
	})

	Convey("Stopping a stopped instance is refused", t, func() {
		m, _, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := m.Instance("alpha")
		So(alpha.Stop(), ShouldEqual, ErrNotStoppable)
	})

	Convey("Stopping a starting instance is refused", t, func() {
		m, _, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := m.Instance("alpha")
		So(alpha.Start(), ShouldBeNil)
		So(alpha.Stop(), ShouldEqual, ErrNotStoppable)
	})
}

func TestInstanceKill(t *testing.T) {
	Convey("Killing a running instance", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, p := running(t, m, sp, "alpha")
		n := &notes{}
		So(alpha.Kill(n.Notify), ShouldBeNil)
		So(n.Has("Stopping..."), ShouldBeTrue)
		So(p.Wrote("stop"), ShouldBeTrue)

		Convey("Escalates to SIGINT and then SIGKILL", func() {
			So(eventually(func() bool { return len(p.Signals()) == 2 }), ShouldBeTrue)
			So(p.Signals(), ShouldResemble, []os.Signal{os.Interrupt, os.Kill})
			So(n.Has("Sending SIGINT..."), ShouldBeTrue)
			So(n.Has("Killing with SIGKILL!"), ShouldBeTrue)
		})

		Convey("A second kill does not signal twice", func() {
			So(alpha.Kill(n.Notify), ShouldBeNil)
			So(n.Count("Stopping..."), ShouldEqual, 2)
			So(eventually(func() bool { return len(p.Signals()) == 2 }), ShouldBeTrue)
			time.Sleep(100 * time.Millisecond)
			So(len(p.Signals()), ShouldEqual, 2)
		})

		Convey("Exit cancels the escalation", func() {
			p.Exit(nil)
			So(alpha.Status(), ShouldEqual, Stopped)
			time.Sleep(100 * time.Millisecond)
			So(p.Signals(), ShouldBeEmpty)
		})
	})

	Convey("Kill preempts a pending stop", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		m.cfg.StopDelay = time.Hour
		alpha, p := running(t, m, sp, "alpha")
		So(alpha.Stop(), ShouldBeNil)
		So(alpha.Kill(nil), ShouldBeNil)
		So(p.Wrote("stop"), ShouldBeTrue)
		So(eventually(func() bool { return len(p.Signals()) == 2 }), ShouldBeTrue)
	})

	Convey("Killing a stopped instance is refused", t, func() {
		m, _, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := m.Instance("alpha")
		So(alpha.Kill(nil), ShouldEqual, ErrNotActive)
	})
}

func TestInstanceExecute(t *testing.T) {
	Convey("Console commands", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := m.Instance("alpha")
		So(alpha.Execute("say hi"), ShouldEqual, ErrNotStoppable)

		alpha, p := running(t, m, sp, "alpha")

		Convey("Are written as one line", func() {
			So(alpha.Execute("say hi\nop me"), ShouldBeNil)
			So(p.Wrote("say hi op me"), ShouldBeTrue)
			So(alpha.Backlog(), ShouldContain, "say hi op me")
		})

		Convey("Are published to subscribers", func() {
			got := make(chan Event, 10)
			unsub := m.Subscribe(func(ev Event) {
				if ev.Kind == EventConsole {
					got <- ev
				}
			})
			defer unsub()

			p.Print("[12:00:01] [Server thread/INFO]: hello")
			ev := <-got
			So(ev.Instance, ShouldEqual, "alpha")
			So(ev.Line, ShouldEqual, "[12:00:01] [Server thread/INFO]: hello")
		})
	})
}

func TestInstanceOnline(t *testing.T) {
	Convey("Checking who is online", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		m.lock()
		m.cfg.QuietGrace = 100 * time.Millisecond
		m.unlock()

		alpha, p := running(t, m, sp, "alpha")
		quiet := func() bool {
			m.lock()
			defer m.unlock()
			return alpha.quiet
		}

		alpha.CheckOnline()
		So(p.Wrote("list"), ShouldBeTrue)
		So(quiet(), ShouldBeTrue)

		p.Print("[12:00:02] [Server thread/INFO]: There are 3 of a max of 20 players online: ")
		p.Print("[12:00:02] [Server thread/INFO]: Alex, Steve, Herobrine")
		So(alpha.Info().Players, ShouldEqual, 3)

		Convey("The exchange stays out of the backlog", func() {
			for _, l := range alpha.Backlog() {
				So(l, ShouldNotContainSubstring, "players online")
				So(l, ShouldNotContainSubstring, "Herobrine")
			}
		})

		Convey("Quiet mode ends shortly after", func() {
			So(eventually(func() bool { return !quiet() }), ShouldBeTrue)
			p.Print("[12:00:03] [Server thread/INFO]: after")
			So(alpha.Backlog(), ShouldContain, "[12:00:03] [Server thread/INFO]: after")
		})
	})

	Convey("The short list format is understood", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, p := running(t, m, sp, "alpha")
		alpha.CheckOnline()
		p.Print("[12:00:02] [Server thread/INFO]: There are 7/20 players online:")
		So(alpha.Info().Players, ShouldEqual, 7)
	})

	Convey("Quiet mode times out without an answer", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		alpha, _ := running(t, m, sp, "alpha")
		alpha.CheckOnline()
		So(eventually(func() bool {
			m.lock()
			defer m.unlock()
			return !alpha.quiet
		}), ShouldBeTrue)
	})

	Convey("Joining players trigger a poll", t, func() {
		m, sp, _ := newTestRegistry(t)
		Reset(m.Shutdown)

		_, p := running(t, m, sp, "alpha")
		So(p.Wrote("list"), ShouldBeFalse)
		p.Print("[12:00:04] [Server thread/INFO]: Steve joined the game")
		So(eventually(func() bool { return p.Wrote("list") }), ShouldBeTrue)
	})
}

func TestInstanceRescan(t *testing.T) {
	Convey("Rescanning a stopped instance rereads its properties", t, func() {
		m, _, root := newTestRegistry(t)
		Reset(m.Shutdown)

		gamma, _ := m.Instance("gamma")
		So(gamma.Info().Port, ShouldEqual, DefaultPort)

		writeFile(t, filepath.Join(root, "gamma", "server.properties"), "server-port=25599\n")
		writeFile(t, filepath.Join(root, "gamma", "nether", "level.dat"), "level")
		So(gamma.Rescan(), ShouldBeNil)
		So(gamma.Info().Port, ShouldEqual, 25599)
		So(gamma.Worlds(), ShouldResemble, []string{"nether", "world"})
	})

	Convey("Rescanning a running instance keeps its properties", t, func() {
		m, sp, root := newTestRegistry(t)
		Reset(m.Shutdown)

		gamma, _ := running(t, m, sp, "gamma")
		writeFile(t, filepath.Join(root, "gamma", "server.properties"), "server-port=25599\n")
		So(gamma.Rescan(), ShouldBeNil)
		So(gamma.Info().Port, ShouldEqual, DefaultPort)
		So(gamma.Status(), ShouldEqual, Running)
	})
}
