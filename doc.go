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

// Package mcvisor supervises a fleet of game server processes that live
// side by side under a single directory.  Each subdirectory is an
// instance: a server jar, its server.properties, its worlds, and a
// snapshots directory holding compressed archives of those worlds.
//
// The Registry discovers instances by scanning that directory, and owns
// them for their whole life.  An Instance runs at most one process, and
// moves through a small state machine (stopped, starting, running,
// stopping) inferred partly from what the server prints.  Maintenance
// operations that need the world files to hold still, such as taking or
// restoring a snapshot, are serialized by a per-instance exclusive flag.
//
// Remote operators are authorized through a PermissionConfig: a default
// rule set, overlaid by the operator's group, overlaid by the operator's
// own entry.  Rules are either plain booleans or predicates that may look
// at the live state of every instance.
//
// All state is protected by one lock owned by the Registry.  Process
// output, process exit, timers and archive completion each take that lock
// for a single turn; nothing blocks while holding it.
package mcvisor
