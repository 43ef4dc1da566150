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
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllowOnly grants the action only against the named instances.
func AllowOnly(names ...string) Predicate {
	return func(target string, _ []string, _ RegistryView) (bool, error) {
		for _, n := range names {
			if n == target {
				return true, nil
			}
		}
		return false, nil
	}
}

// DenyOnly grants the action against every instance except the named ones.
func DenyOnly(names ...string) Predicate {
	allow := AllowOnly(names...)
	return func(target string, args []string, view RegistryView) (bool, error) {
		listed, _ := allow(target, args, view)
		return !listed, nil
	}
}

// MaxSnapshots grants the action while the target has fewer than n
// snapshots.
func MaxSnapshots(n int) Predicate {
	return func(target string, _ []string, view RegistryView) (bool, error) {
		info, ok := view[target]
		if !ok {
			return false, nil
		}
		return len(info.Snapshots) < n, nil
	}
}

// ruleSpec is the mapping form of a rule in the permission file.
type ruleSpec struct {
	Allow        []string `yaml:"allow"`
	Deny         []string `yaml:"deny"`
	MaxSnapshots *int     `yaml:"maxSnapshots"`
	Script       string   `yaml:"script"`
}

type permFile struct {
	Users yaml.Node `yaml:"users"`
	ACL   yaml.Node `yaml:"acl"`
}

func nodePos(n *yaml.Node) string {
	return fmt.Sprintf("line %d", n.Line)
}

func parseRule(n *yaml.Node) (Rule, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		var b bool
		if e := n.Decode(&b); e != nil {
			return Rule{}, configErr("%s: rule must be a boolean or a mapping", nodePos(n))
		}
		return Allow(b), nil

	case yaml.MappingNode:
		var spec ruleSpec
		if e := n.Decode(&spec); e != nil {
			return Rule{}, configErr("%s: %v", nodePos(n), e)
		}
		set := 0
		var r Rule
		if spec.Allow != nil {
			set++
			r = Rule{pred: AllowOnly(spec.Allow...), src: "allow" + fmt.Sprint(spec.Allow)}
		}
		if spec.Deny != nil {
			set++
			r = Rule{pred: DenyOnly(spec.Deny...), src: "deny" + fmt.Sprint(spec.Deny)}
		}
		if spec.MaxSnapshots != nil {
			set++
			r = Rule{pred: MaxSnapshots(*spec.MaxSnapshots), src: fmt.Sprintf("maxSnapshots(%d)", *spec.MaxSnapshots)}
		}
		if spec.Script != "" {
			set++
			p, e := ScriptPredicate(spec.Script)
			if e != nil {
				return Rule{}, fmt.Errorf("%s: %w", nodePos(n), e)
			}
			r = Rule{pred: p, src: "script"}
		}
		if set != 1 {
			return Rule{}, configErr("%s: rule needs exactly one of allow, deny, maxSnapshots, script", nodePos(n))
		}
		return r, nil
	}
	return Rule{}, configErr("%s: unexpected rule", nodePos(n))
}

func parseUsers(n *yaml.Node) (*Users, error) {
	users := NewUsers()
	if n.Kind == 0 {
		return users, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, configErr("%s: users must map groups to lists", nodePos(n))
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		group := n.Content[i].Value
		var recs []string
		if e := n.Content[i+1].Decode(&recs); e != nil {
			return nil, configErr("%s: group %q: %v", nodePos(n.Content[i+1]), group, e)
		}
		for _, rec := range recs {
			id, e := ParseUserRecord(group, rec)
			if e != nil {
				return nil, e
			}
			users.Add(id)
		}
	}
	return users, nil
}

func parseLayers(c *PermissionConfig, n *yaml.Node) error {
	if n.Kind == 0 {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return configErr("%s: acl must map selectors to rules", nodePos(n))
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		sel := n.Content[i].Value
		body := n.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return configErr("%s: selector %q must map actions to rules", nodePos(body), sel)
		}
		l := Layer{Rules: RuleSet{}}
		for j := 0; j+1 < len(body.Content); j += 2 {
			action := body.Content[j].Value
			val := body.Content[j+1]
			if action == "extends" || action == "$extends" {
				l.Extends = strings.TrimSpace(val.Value)
				continue
			}
			r, e := parseRule(val)
			if e != nil {
				return fmt.Errorf("selector %q action %q: %w", sel, action, e)
			}
			l.Rules[action] = r
		}
		c.SetLayer(sel, l)
	}
	return nil
}

// ParsePermissions reads a permission file.  The format is YAML:
//
//	users:
//	  admin: ["admin:password", "admin2:$2a$10$..."]
//	  guest: ["guest:guest"]
//	acl:
//	  $$:     { start: false, stop: false }
//	  $guest: { start: { deny: ["The Big One"] } }
//	  $admin: { extends: $guest, start: true, stop: true }
//	  admin2: { kill: false }
//
// Every error returned wraps ErrConfig.
func ParsePermissions(r io.Reader) (*PermissionConfig, error) {
	var pf permFile
	if e := yaml.NewDecoder(r).Decode(&pf); e != nil && e != io.EOF {
		return nil, configErr("%v", e)
	}
	users, e := parseUsers(&pf.Users)
	if e != nil {
		return nil, e
	}
	c := NewPermissionConfig(users)
	if e := parseLayers(c, &pf.ACL); e != nil {
		return nil, e
	}
	if e := c.Validate(); e != nil {
		return nil, e
	}
	return c, nil
}

// LoadPermissions reads a permission file from disk.
func LoadPermissions(path string) (*PermissionConfig, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, configErr("%v", e)
	}
	defer f.Close()
	return ParsePermissions(f)
}
