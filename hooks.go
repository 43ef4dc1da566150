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
	"sync"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"
)

// ScriptFile is the name of the optional per-instance extension script.
const ScriptFile = "scripts.js"

// Hooks lets an instance be extended around its lifecycle.  The registry
// promises to call these methods with its lock held, and never
// concurrently, so implementers need not worry about locking.  They must
// not block, however.
//
// The Start, Stop and Stopped hooks receive a done function.  The
// transition they guard does not proceed until done is called; it may be
// called before the hook returns, or later from another hook.  Calling it
// more than once has no further effect.
type Hooks interface {
	// Load is called when the hooks are installed, and Unload when they
	// are replaced or the instance goes away.
	Load()
	Unload()

	// Start runs before the process is spawned.
	Start(done func())

	// Stop runs before the stop warning is sent to the process.
	Stop(done func())

	// Stopped runs after the process has exited.
	Stopped(done func())

	// Ready is called once the server reports that it finished starting.
	Ready()

	// Log sees every console line, including quiet ones.
	Log(line string)
}

type noHooks struct{}

func (noHooks) Load()               {}
func (noHooks) Unload()             {}
func (noHooks) Start(done func())   { done() }
func (noHooks) Stop(done func())    { done() }
func (noHooks) Stopped(done func()) { done() }
func (noHooks) Ready()              {}
func (noHooks) Log(string)          {}

var hookNames = []string{
	"onLoad", "onUnload", "onStart", "onStop", "onStopped", "onReady", "onLog",
}

// scriptHooks runs hooks written in JavaScript.  The script may define
// any of the functions in hookNames, either as globals or on
// module.exports.  It sees a global "server" object:
//
//	server.name          instance name
//	server.execute(cmd)  send a console command (running servers only)
//	server.log(line)     add a line to the console log
type scriptHooks struct {
	vm     *goja.Runtime
	server *goja.Object
	fns    map[string]goja.Callable
	logger logrus.FieldLogger
}

func loadScriptHooks(path string, inst *Instance) (*scriptHooks, error) {
	src, e := os.ReadFile(path)
	if e != nil {
		return nil, resourceErr("%v", e)
	}
	vm := goja.New()
	h := &scriptHooks{
		vm:     vm,
		fns:    make(map[string]goja.Callable),
		logger: inst.logger,
	}

	h.server = vm.NewObject()
	h.server.Set("name", inst.name)
	h.server.Set("execute", func(cmd string) bool {
		return inst.execute(cmd) == nil
	})
	h.server.Set("log", func(line string) {
		inst.log(line)
	})
	vm.Set("server", h.server)

	module := vm.NewObject()
	module.Set("exports", vm.NewObject())
	vm.Set("module", module)
	vm.Set("exports", module.Get("exports"))

	e = withDeadline(vm, func() error {
		_, e := vm.RunScript(path, string(src))
		return e
	})
	if e != nil {
		return nil, configErr("%s: %v", path, e)
	}

	exports := module.Get("exports").ToObject(vm)
	for _, name := range hookNames {
		v := exports.Get(name)
		if v == nil || goja.IsUndefined(v) {
			v = vm.Get(name)
		}
		if fn, ok := goja.AssertFunction(v); ok {
			h.fns[name] = fn
		}
	}
	return h, nil
}

func (h *scriptHooks) call(name string, args ...interface{}) error {
	fn, ok := h.fns[name]
	if !ok {
		return nil
	}
	vals := make([]goja.Value, 0, len(args))
	for _, a := range args {
		vals = append(vals, h.vm.ToValue(a))
	}
	e := withDeadline(h.vm, func() error {
		_, e := fn(h.server, vals...)
		return e
	})
	if e != nil {
		h.logger.WithError(e).Warnf("%s hook failed", name)
	}
	return e
}

// callDone runs a hook that takes a done callback.  A missing hook, or one
// that throws before calling done, proceeds immediately.
func (h *scriptHooks) callDone(name string, done func()) {
	var once sync.Once
	guarded := func() { once.Do(done) }
	if _, ok := h.fns[name]; !ok {
		guarded()
		return
	}
	if e := h.call(name, guarded); e != nil {
		guarded()
	}
}

func (h *scriptHooks) Load()               { h.call("onLoad") }
func (h *scriptHooks) Unload()             { h.call("onUnload") }
func (h *scriptHooks) Start(done func())   { h.callDone("onStart", done) }
func (h *scriptHooks) Stop(done func())    { h.callDone("onStop", done) }
func (h *scriptHooks) Stopped(done func()) { h.callDone("onStopped", done) }
func (h *scriptHooks) Ready()              { h.call("onReady") }
func (h *scriptHooks) Log(line string)     { h.call("onLog", line) }
