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
	"sync"
)

type EventKind int

const (
	// EventStatus means that the visible state of one or more instances
	// may have changed, and subscribers should refresh their views.
	EventStatus EventKind = iota

	// EventConsole carries one console line of one instance.
	EventConsole
)

type Event struct {
	Kind     EventKind
	Instance string
	Line     string
}

// Subscriber receives events.  It is called with the registry lock held,
// so it must not block, and must not call back into the Registry.
// Typically it just queues the event for another goroutine.
type Subscriber func(Event)

// Hub fans events out to every registered subscriber.
type Hub struct {
	subs map[int]Subscriber
	next int
	lock sync.Mutex
}

// Subscribe registers fn, and returns a function that removes it again.
func (h *Hub) Subscribe(fn Subscriber) func() {
	h.lock.Lock()
	if h.subs == nil {
		h.subs = make(map[int]Subscriber)
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	h.lock.Unlock()

	return func() {
		h.lock.Lock()
		delete(h.subs, id)
		h.lock.Unlock()
	}
}

// Publish delivers ev to every subscriber.
func (h *Hub) Publish(ev Event) {
	h.lock.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.lock.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.subs)
}
