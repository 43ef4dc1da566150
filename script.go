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
	"time"

	"github.com/dop251/goja"
)

// ScriptTimeout bounds a single evaluation of a script rule or hook.
var ScriptTimeout = time.Second

// withDeadline interrupts vm if it runs for longer than ScriptTimeout.
func withDeadline(vm *goja.Runtime, fn func() error) error {
	timer := time.AfterFunc(ScriptTimeout, func() {
		vm.Interrupt("execution timeout")
	})
	e := fn()
	timer.Stop()
	vm.ClearInterrupt()
	return e
}

func stringsToJS(s []string) []interface{} {
	rv := make([]interface{}, 0, len(s))
	for _, v := range s {
		rv = append(rv, v)
	}
	return rv
}

// jsInstance renders an instance the way scripts see it.
func jsInstance(info InstanceInfo) map[string]interface{} {
	props := make(map[string]interface{}, len(info.Properties))
	for k, v := range info.Properties {
		props[k] = v
	}
	return map[string]interface{}{
		"name":       info.Name,
		"engine":     info.Engine,
		"status":     int(info.Status),
		"port":       info.Port,
		"players":    info.Players,
		"snapshots":  stringsToJS(info.Snapshots),
		"worlds":     stringsToJS(info.Worlds),
		"properties": props,
	}
}

func jsView(view RegistryView) map[string]interface{} {
	rv := make(map[string]interface{}, len(view))
	for name, info := range view {
		rv[name] = jsInstance(info)
	}
	return rv
}

// ScriptPredicate compiles a JavaScript function expression into a
// Predicate.  The function is called with this bound to the registry view
// (instance name to instance), and with the target followed by the action
// arguments, e.g.
//
//	function (server, world) { return this[server].snapshots.length < 10; }
func ScriptPredicate(src string) (Predicate, error) {
	prog, e := goja.Compile("rule", "("+src+")", false)
	if e != nil {
		return nil, configErr("compiling rule: %v", e)
	}
	vm := goja.New()
	v, e := vm.RunProgram(prog)
	if e != nil {
		return nil, configErr("evaluating rule: %v", e)
	}
	if _, ok := goja.AssertFunction(v); !ok {
		return nil, configErr("rule is not a function")
	}

	return func(target string, args []string, view RegistryView) (bool, error) {
		// A fresh runtime per call; goja runtimes are not safe for
		// concurrent use and rules must not keep state.
		vm := goja.New()
		var res goja.Value
		e := withDeadline(vm, func() error {
			v, e := vm.RunProgram(prog)
			if e != nil {
				return e
			}
			fn, ok := goja.AssertFunction(v)
			if !ok {
				return errors.New("rule is not a function")
			}
			jsargs := make([]goja.Value, 0, len(args)+1)
			jsargs = append(jsargs, vm.ToValue(target))
			for _, a := range args {
				jsargs = append(jsargs, vm.ToValue(a))
			}
			res, e = fn(vm.ToValue(jsView(view)), jsargs...)
			return e
		})
		if e != nil {
			return false, e
		}
		return res.ToBoolean(), nil
	}, nil
}
