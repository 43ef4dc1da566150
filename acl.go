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
	"sort"
)

// DefaultSelector names the rule set everybody starts from.
const DefaultSelector = "$$"

// GroupSelector returns the selector for a group of operators.
func GroupSelector(group string) string {
	return "$" + group
}

// Action names understood by the dispatch layers.
const (
	ActionStart           = "start"
	ActionStop            = "stop"
	ActionKill            = "kill"
	ActionConsole         = "console"
	ActionCommand         = "command"
	ActionSnapshotCreate  = "snapshot_create"
	ActionSnapshotRestore = "snapshot_restore"
	ActionSnapshotDelete  = "snapshot_delete"
	ActionRescan          = "rescan"
	ActionDebug           = "debug"
)

// InstanceInfo is a point in time copy of the parts of an instance that
// rules may look at.
type InstanceInfo struct {
	Name       string
	Engine     string
	Status     Status
	Port       int
	Players    int
	Snapshots  []string
	Worlds     []string
	Properties Properties
}

// RegistryView is a consistent copy of every instance, keyed by name.
type RegistryView map[string]InstanceInfo

// Predicate decides a rule at resolution time.  The target is the name of
// the instance the action is aimed at (empty for global actions), args
// are the remaining action arguments.
type Predicate func(target string, args []string, view RegistryView) (bool, error)

// Rule is either a fixed boolean or a Predicate.
type Rule struct {
	allow bool
	pred  Predicate
	src   string
}

// Allow returns a fixed rule.
func Allow(b bool) Rule {
	return Rule{allow: b}
}

// When returns a rule decided by p.
func When(p Predicate) Rule {
	return Rule{pred: p}
}

func (r Rule) IsPredicate() bool {
	return r.pred != nil
}

// Bool coerces the rule to a boolean without evaluating it.  Predicates
// count as true.
func (r Rule) Bool() bool {
	return r.pred != nil || r.allow
}

// Eval decides the rule for a concrete action.
func (r Rule) Eval(target string, args []string, view RegistryView) (bool, error) {
	if r.pred == nil {
		return r.allow, nil
	}
	return r.pred(target, args, view)
}

func (r Rule) String() string {
	switch {
	case r.src != "":
		return r.src
	case r.pred != nil:
		return "predicate"
	}
	return fmt.Sprint(r.allow)
}

// RuleSet maps action names to rules.
type RuleSet map[string]Rule

func (rs RuleSet) clone() RuleSet {
	rv := make(RuleSet, len(rs))
	for k, v := range rs {
		rv[k] = v
	}
	return rv
}

// Layer is the entry of one selector.  If Extends is set, the named
// selector is applied first.
type Layer struct {
	Extends string
	Rules   RuleSet
}

// PermissionConfig is the complete authorization configuration: who the
// operators are, and what each selector grants.
type PermissionConfig struct {
	Users  *Users
	Layers map[string]Layer
}

func NewPermissionConfig(users *Users) *PermissionConfig {
	if users == nil {
		users = NewUsers()
	}
	return &PermissionConfig{Users: users, Layers: make(map[string]Layer)}
}

// SetLayer replaces the entry for a selector.
func (c *PermissionConfig) SetLayer(selector string, l Layer) {
	c.Layers[selector] = l
}

// chain returns the layers to apply for selector, deepest ancestor first.
// Missing selectors end the chain; a selector seen twice is an error.
func (c *PermissionConfig) chain(selector string) ([]Layer, error) {
	var stack []Layer
	seen := map[string]bool{}
	for sel := selector; sel != ""; {
		if seen[sel] {
			return nil, configErr("extends cycle through %q", sel)
		}
		seen[sel] = true
		l, ok := c.Layers[sel]
		if !ok {
			break
		}
		stack = append(stack, l)
		sel = l.Extends
	}
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	return stack, nil
}

func (c *PermissionConfig) apply(rules RuleSet, selector string) error {
	layers, e := c.chain(selector)
	if e != nil {
		return e
	}
	for _, l := range layers {
		for action, r := range l.Rules {
			rules[action] = r
		}
	}
	return nil
}

// Validate checks that every extends chain is acyclic and names an
// existing selector.
func (c *PermissionConfig) Validate() error {
	names := make([]string, 0, len(c.Layers))
	for sel := range c.Layers {
		names = append(names, sel)
	}
	sort.Strings(names)
	for _, sel := range names {
		if ext := c.Layers[sel].Extends; ext != "" {
			if _, ok := c.Layers[ext]; !ok {
				return configErr("selector %q extends unknown selector %q", sel, ext)
			}
		}
		if _, e := c.chain(sel); e != nil {
			return e
		}
	}
	return nil
}

// Rules returns the effective rule set of the named operator.  The second
// value is false if there is no such operator.
func (c *PermissionConfig) Rules(name string) (RuleSet, bool, error) {
	id, ok := c.Users.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	rules := c.Layers[DefaultSelector].Rules.clone()
	if e := c.apply(rules, GroupSelector(id.Group)); e != nil {
		return nil, true, e
	}
	if e := c.apply(rules, id.Name); e != nil {
		return nil, true, e
	}
	return rules, true, nil
}

// Resolve decides whether the named operator may perform action against
// target.  Unknown operators and unknown actions are denied.  A predicate
// that fails yields false and an error wrapping ErrDenied.
func (c *PermissionConfig) Resolve(name, action, target string, args []string, view RegistryView) (bool, error) {
	rules, ok, e := c.Rules(name)
	if !ok || e != nil {
		return false, e
	}
	r, ok := rules[action]
	if !ok {
		return false, nil
	}
	allow, e := r.Eval(target, args, view)
	if e != nil {
		return false, fmt.Errorf("%w: rule %s for %q failed: %v", ErrDenied, r, action, e)
	}
	return allow, nil
}

// Capabilities returns every action of the operator's effective rule set,
// coerced to a boolean.  Predicates are not invoked.
func (c *PermissionConfig) Capabilities(name string) (map[string]bool, error) {
	rules, ok, e := c.Rules(name)
	if !ok || e != nil {
		return map[string]bool{}, e
	}
	caps := make(map[string]bool, len(rules))
	for action, r := range rules {
		caps[action] = r.Bool()
	}
	return caps, nil
}
