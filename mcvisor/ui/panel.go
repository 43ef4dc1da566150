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

package ui

import (
	"sync"

	"github.com/gdamore/tcell/views"

	"github.com/gdamore/mcvisor"
)

// Panel wraps views.Panel with our title, status and key bars.  The names
// follow what they show rather than where views puts them.
type Panel struct {
	tb   *TitleBar
	sb   *StatusBar
	kb   *KeyBar
	once sync.Once
	app  *App

	views.Panel
}

func (p *Panel) SetTitle(title string) {
	p.tb.SetCenter(title)
}

func (p *Panel) SetKeys(words []string) {
	p.kb.SetKeys(words)
}

func (p *Panel) SetStatus(status string) {
	p.sb.SetText(status)
}

func (p *Panel) SetGood()                { p.sb.SetGood() }
func (p *Panel) SetNormal()              { p.sb.SetNormal() }
func (p *Panel) SetBusy()                { p.sb.SetBusy() }
func (p *Panel) SetError()               { p.sb.SetError() }
func (p *Panel) SetFor(s mcvisor.Status) { p.sb.SetFor(s) }

func (p *Panel) Init(app *App) {
	p.once.Do(func() {
		p.app = app

		p.tb = NewTitleBar()
		p.tb.SetRight("%A" + app.GetAppName())
		p.tb.SetCenter(" ")

		p.kb = NewKeyBar()
		p.sb = NewStatusBar()

		p.Panel.SetTitle(p.tb)
		p.Panel.SetMenu(p.sb)
		p.Panel.SetStatus(p.kb)
	})
}

func (p *Panel) App() *App {
	return p.app
}

// actionKeys returns the key bar words for the lifecycle actions that
// apply to an instance in status s, and that the user may perform.
func actionKeys(app *App, s mcvisor.Status, engine string) []string {
	if engine == "" {
		return nil
	}
	var words []string
	switch s {
	case mcvisor.Stopped:
		if app.Can(mcvisor.ActionStart) {
			words = append(words, "[S] Start")
		}
	case mcvisor.Running:
		if app.Can(mcvisor.ActionStop) {
			words = append(words, "[T] Stop")
		}
		if app.Can(mcvisor.ActionKill) {
			words = append(words, "[K] Kill")
		}
	case mcvisor.Busy:
		if app.Can(mcvisor.ActionKill) {
			words = append(words, "[K] Kill")
		}
	}
	return words
}
