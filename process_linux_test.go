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

//go:build linux

package mcvisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const orphanEnv = "MCVISOR_ORPHAN_PIDFILE"

// TestOrphanHelper is not a test on its own.  Run as a child of
// TestDeathSignal, it starts a server, records its pid, and then dies
// abruptly.
func TestOrphanHelper(t *testing.T) {
	path := os.Getenv(orphanEnv)
	if path == "" {
		t.Skip("only run from TestDeathSignal")
	}
	p, e := ExecSpawner(SpawnSpec{
		Dir:  os.TempDir(),
		Argv: []string{"/bin/sleep", "30"},
	}, func(string) {}, func(error) {})
	if e != nil {
		os.Exit(2)
	}
	if e := os.WriteFile(path, []byte(strconv.Itoa(p.Pid())), 0644); e != nil {
		os.Exit(2)
	}
	os.Exit(3)
}

// alive reports whether pid exists and is not a zombie.
func alive(pid int) bool {
	if syscall.Kill(pid, 0) != nil {
		return false
	}
	b, e := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if e != nil {
		return false
	}
	stat := string(b)
	fields := strings.Fields(stat[strings.LastIndex(stat, ")")+1:])
	return len(fields) > 0 && fields[0] != "Z"
}

func TestDeathSignal(t *testing.T) {
	Convey("Spawned servers are interrupted when the supervisor dies", t, func() {
		c := newCapture()
		p, e := ExecSpawner(SpawnSpec{
			Dir:  t.TempDir(),
			Argv: []string{"/bin/sh", fakeServer(t)},
		}, c.out, c.exit)
		So(e, ShouldBeNil)
		cmd := p.(*execProcess).cmd
		So(cmd.SysProcAttr, ShouldNotBeNil)
		So(cmd.SysProcAttr.Pdeathsig, ShouldEqual, syscall.SIGINT)
		So(p.WriteLine("stop"), ShouldBeNil)
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
			So("timeout", ShouldBeEmpty)
		}

		pidfile := filepath.Join(t.TempDir(), "pid")
		helper := exec.Command(os.Args[0], "-test.run=^TestOrphanHelper$")
		helper.Env = append(os.Environ(), orphanEnv+"="+pidfile)
		e = helper.Run()
		So(e, ShouldNotBeNil)

		b, e := os.ReadFile(pidfile)
		So(e, ShouldBeNil)
		pid, e := strconv.Atoi(string(b))
		So(e, ShouldBeNil)

		deadline := time.Now().Add(5 * time.Second)
		for alive(pid) && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		So(alive(pid), ShouldBeFalse)
	})
}
