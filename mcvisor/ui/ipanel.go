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
	"fmt"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/mcvisor"
	"github.com/gdamore/mcvisor/mcvisor/util"
	"github.com/gdamore/mcvisor/rest"
)

type InfoPanel struct {
	text *views.TextArea
	info *rest.InstanceInfo
	name string
	err  error

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}

	p.Panel.Init(app)
	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})

	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	info := p.info
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'C', 'c':
				if info != nil && app.Can(mcvisor.ActionConsole) {
					app.ShowLog(info.Name)
					return true
				}
			case 'S', 's':
				if info != nil && info.Engine != "" && info.Status == mcvisor.Stopped {
					app.StartInstance(info.Name)
					return true
				}
			case 'T', 't':
				if info != nil && info.Status == mcvisor.Running {
					app.StopInstance(info.Name)
					return true
				}
			case 'K', 'k':
				if info != nil && info.Status != mcvisor.Stopped {
					app.KillInstance(info.Name)
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
	p.info = nil
	p.err = nil
}

func (p *InfoPanel) update() {
	s, e := p.App().GetItem(p.name)
	p.info = s
	p.err = e

	words := []string{"[ESC] Main", "[H] Help"}
	p.SetTitle("Details for " + p.name)

	if s == nil {
		if e != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", e))
			p.SetError()
		} else {
			p.SetStatus("Loading...")
			p.SetNormal()
		}
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetStatus(p.App().Notice())
	p.SetFor(s.Status)
	p.text.SetLines(util.Details(s))

	if p.App().Can(mcvisor.ActionConsole) {
		words = append(words, "[C] Console")
	}
	words = append(words, actionKeys(p.App(), s.Status, s.Engine)...)
	p.SetKeys(words)
}
