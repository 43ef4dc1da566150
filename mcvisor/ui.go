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

//go:build !plan9 && !js

package main

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/gdamore/mcvisor/mcvisor/ui"
	"github.com/gdamore/mcvisor/rest"
)

func doUI(client *rest.Client, url string) {
	// The screen belongs to the board; keep the logger off it.
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := ui.NewApp(client, url)
	app.SetLogger(logger)
	app.Run()
}

/*
   Our screen has the following appearance:

    http://localhost:8321/api                                    Mcvisor v1.0
      3 Instances    1 Running    1 Busy    1 Stopped     4 Players
   ____________________________________________________________________________
   survival             running     25565    4    3h2m10s   Server started
   creative             busy        25566    0        Off   Starting...
   lobby                stopped     25567    0        Off   Stopped
   ____________________________________________________________________________
   [Q] Quit [H] Help [L] Log [I] Info [C] Console [T] Stop [K] Kill
*/
