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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/mcvisor"
	"github.com/gdamore/mcvisor/rest"
)

// Status describes an instance in a word.
func Status(s *rest.InstanceInfo) string {
	if s.Engine == "" {
		return "no engine"
	}
	return s.Status.String()
}

func FormatDuration(d time.Duration) string {
	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Since formats the time elapsed since t, to the second.
func Since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return FormatDuration(time.Since(t))
}

// List joins names for display, or returns "-" when there are none.
func List(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, " ")
}

// Details returns the labelled lines describing an instance, as shown by
// both the info subcommand and the info panel.
func Details(s *rest.InstanceInfo) []string {
	lines := []string{
		fmt.Sprintf("%11s %s", "Name:", s.Name),
		fmt.Sprintf("%11s %s", "Status:", Status(s)),
		fmt.Sprintf("%11s %s", "Engine:", s.Engine),
		fmt.Sprintf("%11s %s", "Jar:", s.Jar),
		fmt.Sprintf("%11s %d", "Port:", s.Port),
		fmt.Sprintf("%11s %d", "Players:", s.Players),
		fmt.Sprintf("%11s %s", "Uptime:", s.Uptime),
		fmt.Sprintf("%11s %s", "Since:", Since(s.TimeStamp)),
		fmt.Sprintf("%11s %s", "Detail:", s.Reason),
		fmt.Sprintf("%11s %v", "Scripted:", s.Scripted),
		fmt.Sprintf("%11s %s", "Worlds:", List(s.Worlds)),
		fmt.Sprintf("%11s %s", "Snapshots:", List(s.Snapshots)),
	}
	if lvl, ok := s.Properties[mcvisor.PropLevelName]; ok {
		lines = append(lines, fmt.Sprintf("%11s %s", "Level:", lvl))
	}
	if max, ok := s.Properties[mcvisor.PropMaxPlayers]; ok {
		lines = append(lines, fmt.Sprintf("%11s %s", "Max:", max))
	}
	return lines
}

type sorted []*rest.InstanceInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.Status != b.Status {
		// running first, then busy, then stopped
		return a.Status > b.Status
	}
	if (a.Engine == "") != (b.Engine == "") {
		// runnable in front of metadata-only items
		return a.Engine != ""
	}
	return a.Name < b.Name
}

func SortInstances(items []*rest.InstanceInfo) {
	sort.Sort(sorted(items))
}
