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
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Identity is an operator, as found in the users section of the
// permission file.
type Identity struct {
	Name   string
	Secret string
	Group  string
}

// CheckSecret compares a supplied secret against the stored one.  Stored
// secrets that look like bcrypt hashes are verified as such.
func (id Identity) CheckSecret(secret string) bool {
	if strings.HasPrefix(id.Secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(id.Secret), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(id.Secret), []byte(secret)) == 1
}

// Users holds operators grouped by named collections.  Groups keep their
// declaration order, and a lookup returns the first match.
type Users struct {
	groups  []string
	members map[string][]Identity
}

func NewUsers() *Users {
	return &Users{members: make(map[string][]Identity)}
}

// ParseUserRecord splits a "name:secret" record.
func ParseUserRecord(group, rec string) (Identity, error) {
	parts := strings.SplitN(rec, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Identity{}, configErr("bad user record %q in group %q", rec, group)
	}
	return Identity{Name: parts[0], Secret: parts[1], Group: group}, nil
}

// Add appends an identity to its group, creating the group if needed.
func (u *Users) Add(id Identity) {
	if _, ok := u.members[id.Group]; !ok {
		u.groups = append(u.groups, id.Group)
	}
	u.members[id.Group] = append(u.members[id.Group], id)
}

// Lookup finds an identity by name.
func (u *Users) Lookup(name string) (Identity, bool) {
	if u == nil {
		return Identity{}, false
	}
	for _, g := range u.groups {
		for _, id := range u.members[g] {
			if id.Name == name {
				return id, true
			}
		}
	}
	return Identity{}, false
}

// Groups returns the group names in declaration order.
func (u *Users) Groups() []string {
	return append([]string{}, u.groups...)
}

// Members returns the identities of one group.
func (u *Users) Members(group string) []Identity {
	return append([]Identity{}, u.members[group]...)
}
