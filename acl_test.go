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
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func mustParse(src string) *PermissionConfig {
	c, e := ParsePermissions(strings.NewReader(src))
	So(e, ShouldBeNil)
	return c
}

func resolve(c *PermissionConfig, user, action, target string) bool {
	ok, e := c.Resolve(user, action, target, nil, RegistryView{})
	So(e, ShouldBeNil)
	return ok
}

func TestPermissionResolve(t *testing.T) {
	Convey("Resolving permissions", t, func() {
		c := mustParse(`
users:
  admin: ["admin:password", "admin2:password"]
  guest: ["guest:guest"]
acl:
  $$: { start: false, stop: false }
  $guest: { start: { deny: ["The Big One"] } }
  $admin: { extends: $guest, start: true, stop: true, kill: true }
  admin2: { kill: false }
`)

		Convey("Users get the default, then their group, then their own", func() {
			So(resolve(c, "admin", ActionKill, "x"), ShouldBeTrue)
			So(resolve(c, "admin2", ActionKill, "x"), ShouldBeFalse)
			So(resolve(c, "admin2", ActionStop, "x"), ShouldBeTrue)
			So(resolve(c, "guest", ActionStop, "x"), ShouldBeFalse)
		})

		Convey("Predicates see the target", func() {
			So(resolve(c, "guest", ActionStart, "The Big One"), ShouldBeFalse)
			So(resolve(c, "guest", ActionStart, "Creative"), ShouldBeTrue)
			So(resolve(c, "admin", ActionStart, "The Big One"), ShouldBeTrue)
		})

		Convey("Unknown actions and users are denied", func() {
			So(resolve(c, "guest", ActionKill, "x"), ShouldBeFalse)
			So(resolve(c, "mallory", ActionStart, "x"), ShouldBeFalse)
		})

		Convey("Resolution is repeatable", func() {
			r1, _, e := c.Rules("admin2")
			So(e, ShouldBeNil)
			r2, _, _ := c.Rules("admin2")
			So(len(r1), ShouldEqual, len(r2))
			for k, v := range r1 {
				So(r2[k].String(), ShouldEqual, v.String())
			}
			So(resolve(c, "admin", ActionKill, "x"), ShouldBeTrue)
		})

		Convey("Capabilities do not run predicates", func() {
			caps, e := c.Capabilities("guest")
			So(e, ShouldBeNil)
			So(caps, ShouldResemble, map[string]bool{
				ActionStart: true,
				ActionStop:  false,
			})
		})
	})

	Convey("A group without its own entry gets the default", t, func() {
		c := mustParse(`
users:
  mods: ["mod:pw"]
acl:
  $$: { console: true }
`)
		So(resolve(c, "mod", ActionConsole, "x"), ShouldBeTrue)
		So(resolve(c, "mod", ActionStart, "x"), ShouldBeFalse)
	})

	Convey("Rules built in code", t, func() {
		users := NewUsers()
		users.Add(Identity{Name: "op", Secret: "pw", Group: "ops"})
		c := NewPermissionConfig(users)
		c.SetLayer(GroupSelector("ops"), Layer{Rules: RuleSet{
			ActionStart:          When(AllowOnly("a", "b")),
			ActionSnapshotCreate: When(MaxSnapshots(2)),
			ActionStop:           Allow(true),
		}})
		So(c.Validate(), ShouldBeNil)

		view := RegistryView{
			"a": {Name: "a", Snapshots: []string{"s1", "s2"}},
			"b": {Name: "b", Snapshots: []string{"s1"}},
		}
		ok, _ := c.Resolve("op", ActionStart, "b", nil, view)
		So(ok, ShouldBeTrue)
		ok, _ = c.Resolve("op", ActionStart, "c", nil, view)
		So(ok, ShouldBeFalse)
		ok, _ = c.Resolve("op", ActionSnapshotCreate, "a", []string{"world"}, view)
		So(ok, ShouldBeFalse)
		ok, _ = c.Resolve("op", ActionSnapshotCreate, "b", []string{"world"}, view)
		So(ok, ShouldBeTrue)
		ok, _ = c.Resolve("op", ActionSnapshotCreate, "gone", []string{"world"}, view)
		So(ok, ShouldBeFalse)
	})
}

func TestPermissionScripts(t *testing.T) {
	Convey("Script rules", t, func() {
		c := mustParse(`
users:
  staff: ["staff:pw"]
acl:
  $staff:
    start:
      script: "function (server) { return this[server].players < 5; }"
    snapshot_create:
      script: "function (server, world) { return world !== 'world_nether'; }"
    kill:
      script: "function () { throw new Error('no'); }"
    stop:
      script: "function () { for (;;) {} }"
`)
		view := RegistryView{
			"busy":  {Name: "busy", Players: 12},
			"quiet": {Name: "quiet", Players: 1},
		}

		ok, e := c.Resolve("staff", ActionStart, "quiet", nil, view)
		So(e, ShouldBeNil)
		So(ok, ShouldBeTrue)
		ok, e = c.Resolve("staff", ActionStart, "busy", nil, view)
		So(e, ShouldBeNil)
		So(ok, ShouldBeFalse)

		ok, _ = c.Resolve("staff", ActionSnapshotCreate, "quiet", []string{"world"}, view)
		So(ok, ShouldBeTrue)
		ok, _ = c.Resolve("staff", ActionSnapshotCreate, "quiet", []string{"world_nether"}, view)
		So(ok, ShouldBeFalse)

		Convey("Failures deny", func() {
			ok, e := c.Resolve("staff", ActionKill, "quiet", nil, view)
			So(ok, ShouldBeFalse)
			So(errors.Is(e, ErrDenied), ShouldBeTrue)
		})

		Convey("Runaway scripts are interrupted", func() {
			old := ScriptTimeout
			ScriptTimeout = 50 * time.Millisecond
			defer func() { ScriptTimeout = old }()
			ok, e := c.Resolve("staff", ActionStop, "quiet", nil, view)
			So(ok, ShouldBeFalse)
			So(errors.Is(e, ErrDenied), ShouldBeTrue)
		})
	})

	Convey("Scripts that do not compile are configuration errors", t, func() {
		_, e := ParsePermissions(strings.NewReader(`
acl:
  $$: { start: { script: "function (" } }
`))
		So(errors.Is(e, ErrConfig), ShouldBeTrue)

		_, e = ScriptPredicate("42")
		So(errors.Is(e, ErrConfig), ShouldBeTrue)
	})
}

func TestPermissionErrors(t *testing.T) {
	Convey("Broken permission files are refused", t, func() {
		bad := map[string]string{
			"cycle": `
acl:
  $a: { extends: $b }
  $b: { extends: $a }
`,
			"unknown extends": `
acl:
  $a: { extends: $nope }
`,
			"two rule kinds": `
acl:
  $$: { start: { allow: [a], deny: [b] } }
`,
			"bad scalar": `
acl:
  $$: { start: maybe }
`,
			"bad user": `
users:
  admin: ["nocolon"]
`,
			"not yaml": "users: [",
		}
		for name, src := range bad {
			_, e := ParsePermissions(strings.NewReader(src))
			So(e, ShouldNotBeNil)
			if !errors.Is(e, ErrConfig) {
				t.Errorf("%s: %v does not wrap ErrConfig", name, e)
			}
		}
	})

	Convey("An empty file is valid", t, func() {
		c, e := ParsePermissions(strings.NewReader(""))
		So(e, ShouldBeNil)
		So(c.Users.Groups(), ShouldBeEmpty)
	})

	Convey("A missing file is a configuration error", t, func() {
		_, e := LoadPermissions("/nonexistent/permissions.yaml")
		So(errors.Is(e, ErrConfig), ShouldBeTrue)
	})
}
