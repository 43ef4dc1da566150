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
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/mcvisor"
	"github.com/sirupsen/logrus/hooks/test"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeProc struct {
	lines []string
	lock  sync.Mutex
}

func (p *fakeProc) WriteLine(line string) error {
	p.lock.Lock()
	p.lines = append(p.lines, line)
	p.lock.Unlock()
	return nil
}

func (p *fakeProc) Signal(os.Signal) error { return nil }
func (p *fakeProc) Pid() int               { return 1 }

const perms = `
users:
  admin: ["admin:password", "admin2:secret2"]
  guest: ["guest:guest"]
acl:
  $guest:
    start: { deny: [beta] }
    console: true
  $admin:
    extends: $guest
    start: true
    stop: true
    command: true
    rescan: true
    debug: true
  admin2: { console: false }
`

func writeFile(t *testing.T, path, content string) {
	if e := os.MkdirAll(filepath.Dir(path), 0755); e != nil {
		t.Fatal(e)
	}
	if e := os.WriteFile(path, []byte(content), 0644); e != nil {
		t.Fatal(e)
	}
}

// setup serves a registry with two instances, alpha and beta, that share
// a port.
func setup(t *testing.T) (*mcvisor.Registry, *httptest.Server, string) {
	root := t.TempDir()
	for _, name := range []string{"alpha", "beta"} {
		dir := filepath.Join(root, name)
		writeFile(t, filepath.Join(dir, "server.jar"), "jar")
		writeFile(t, filepath.Join(dir, "ops.json"), "[]")
		writeFile(t, filepath.Join(dir, "server.properties"), "server-port=25570\n")
		writeFile(t, filepath.Join(dir, "world", "level.dat"), "level")
	}
	broken := filepath.Join(t.TempDir(), "permissions.yaml")
	writeFile(t, broken, "users: [")

	logger, _ := test.NewNullLogger()
	m := mcvisor.NewRegistry(mcvisor.Config{
		Root:        root,
		Permissions: broken,
		Logger:      logger,
		Spawner: func(spec mcvisor.SpawnSpec, out func(string), exit func(error)) (mcvisor.Process, error) {
			return &fakeProc{}, nil
		},
		BroadcastInterval: time.Hour,
	})
	c, e := mcvisor.ParsePermissions(strings.NewReader(perms))
	if e != nil {
		t.Fatal(e)
	}
	m.SetPermissions(c)
	if e := m.Scan(); e != nil {
		t.Fatal(e)
	}
	srv := httptest.NewServer(http.StripPrefix("/api", NewHandler(m, logger)))
	return m, srv, srv.URL + "/api"
}

func client(base, user, pass string) *Client {
	c := NewClient(nil, base)
	c.SetAuth(user, pass)
	return c
}

func code(e error) int {
	if re, ok := e.(*Error); ok {
		return re.Code
	}
	return 0
}

func TestServer(t *testing.T) {
	Convey("A REST server", t, func() {
		m, srv, base := setup(t)
		Reset(func() {
			srv.Close()
			m.Shutdown()
		})
		admin := client(base, "admin", "password")
		guest := client(base, "guest", "guest")

		Convey("Requires authentication", func() {
			res, e := http.Get(base + "/instances")
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusUnauthorized)
			So(res.Header.Get("WWW-Authenticate"), ShouldContainSubstring, "Basic")

			_, e = client(base, "admin", "wrong").Info()
			So(code(e), ShouldEqual, http.StatusUnauthorized)
			_, e = client(base, "nobody", "password").Instances()
			So(code(e), ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Describes the registry", func() {
			info, e := admin.Info()
			So(e, ShouldBeNil)
			So(info.Instances, ShouldEqual, 2)
			So(info.Serial, ShouldEqual, m.Serial())

			names, e := guest.Instances()
			So(e, ShouldBeNil)
			So(names, ShouldResemble, []string{"alpha", "beta"})

			v, e := guest.GetInstance("alpha")
			So(e, ShouldBeNil)
			So(v.Name, ShouldEqual, "alpha")
			So(v.Status, ShouldEqual, mcvisor.Stopped)
			So(v.Port, ShouldEqual, 25570)
			So(v.Worlds, ShouldResemble, []string{"world"})

			_, e = guest.GetInstance("nope")
			So(code(e), ShouldEqual, http.StatusForbidden)
			So(e.Error(), ShouldEqual, "permission denied")
		})

		Convey("Reports capabilities", func() {
			caps, e := guest.Capabilities()
			So(e, ShouldBeNil)
			So(caps[mcvisor.ActionStart], ShouldBeTrue)
			So(caps[mcvisor.ActionConsole], ShouldBeTrue)
			So(caps[mcvisor.ActionStop], ShouldBeFalse)
		})

		Convey("Maps errors onto statuses", func() {
			e := guest.StartInstance("beta")
			So(code(e), ShouldEqual, http.StatusForbidden)
			e = guest.StopInstance("alpha")
			So(code(e), ShouldEqual, http.StatusForbidden)

			So(admin.StartInstance("alpha"), ShouldBeNil)
			v, e := admin.GetInstance("alpha")
			So(e, ShouldBeNil)
			So(v.Status, ShouldEqual, mcvisor.Busy)

			e = admin.StartInstance("beta")
			So(code(e), ShouldEqual, http.StatusConflict)
			e = admin.Command("beta", "say hi")
			So(code(e), ShouldEqual, http.StatusConflict)

			e = admin.Rescan()
			So(code(e), ShouldEqual, http.StatusUnprocessableEntity)
			e = guest.Rescan()
			So(code(e), ShouldEqual, http.StatusForbidden)
		})

		Convey("Refuses malformed bodies", func() {
			req, _ := http.NewRequest("POST", base+"/instances/alpha/command", strings.NewReader("{"))
			req.SetBasicAuth("admin", "password")
			res, e := http.DefaultClient.Do(req)
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Guards the console and the log", func() {
			lines, e := guest.Console("alpha")
			So(e, ShouldBeNil)
			So(lines, ShouldBeEmpty)
			_, e = client(base, "admin2", "secret2").Console("alpha")
			So(code(e), ShouldEqual, http.StatusForbidden)

			_, e = guest.GetLog()
			So(code(e), ShouldEqual, http.StatusForbidden)
			m.Log().Append("hello")
			l, e := admin.GetLog()
			So(e, ShouldBeNil)
			So(len(l.Records), ShouldEqual, 1)
			So(l.Records[0].Text, ShouldEqual, "hello")
		})

		Convey("Supports conditional requests", func() {
			res, e := http.DefaultClient.Do(authed(base+"/", ""))
			So(e, ShouldBeNil)
			res.Body.Close()
			etag := res.Header.Get("Etag")
			So(etag, ShouldNotBeEmpty)

			res, e = http.DefaultClient.Do(authed(base+"/", etag))
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusNotModified)
		})

		Convey("Supports long polls", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			etag, e := admin.Watch(ctx, "")
			So(e, ShouldBeNil)

			go func() {
				time.Sleep(50 * time.Millisecond)
				if inst, ok := m.Instance("alpha"); ok {
					inst.Rescan()
				}
			}()
			start := time.Now()
			next, e := admin.Watch(ctx, etag)
			So(e, ShouldBeNil)
			So(next, ShouldNotEqual, etag)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 40*time.Millisecond)
		})
	})
}

func authed(url, etag string) *http.Request {
	req, _ := http.NewRequest("GET", url, nil)
	req.SetBasicAuth("admin", "password")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	return req
}

func TestStatusCode(t *testing.T) {
	Convey("Errors map to HTTP statuses", t, func() {
		So(StatusCode(nil), ShouldEqual, http.StatusOK)
		So(StatusCode(mcvisor.ErrNoInstance), ShouldEqual, http.StatusForbidden)
		So(StatusCode(mcvisor.ErrBusy), ShouldEqual, http.StatusConflict)
		So(StatusCode(mcvisor.ErrConfig), ShouldEqual, http.StatusUnprocessableEntity)
		So(StatusCode(os.ErrNotExist), ShouldEqual, http.StatusInternalServerError)
		So(NewError(mcvisor.ErrBadSecret).Message, ShouldEqual, "permission denied")

		n, ok := parseEtag(`W/"42"`)
		So(ok, ShouldBeTrue)
		So(n, ShouldEqual, 42)
		So(formatEtag(42), ShouldEqual, `"42"`)
	})
}
