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

// Package ui is a terminal status board for mcvisord.
package ui

import (
	"context"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
	"github.com/sirupsen/logrus"

	"github.com/gdamore/mcvisor"
	"github.com/gdamore/mcvisor/mcvisor/util"
	"github.com/gdamore/mcvisor/rest"
)

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	info      *InfoPanel
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	client    *rest.Client
	logger    logrus.FieldLogger
	err       error
	items     []*rest.InstanceInfo
	caps      map[string]bool
	notice    string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	console   []string

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.show(a.info)
}

// ShowLog shows the console of the named instance, or the supervisor
// event log if name is empty.
func (a *App) ShowLog(name string) {
	if a.logCancel != nil {
		a.logCancel()
		a.logCancel = nil
	}
	a.logInfo = nil
	a.logErr = nil
	a.console = nil
	ctx, cancel := context.WithCancel(context.Background())
	a.logCancel = cancel
	if name == "" {
		go a.refreshLog(ctx)
	} else {
		go a.refreshConsole(ctx, name)
	}
	a.log.SetName(name)
	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

// do runs a request in the background, and reports failures on the
// status bar.
func (a *App) do(what string, fn func() error) {
	go func() {
		e := fn()
		a.app.PostFunc(func() {
			if e != nil {
				a.notice = what + ": " + e.Error()
			} else {
				a.notice = what + ": ok"
			}
			a.app.Update()
		})
	}()
}

func (a *App) StartInstance(name string) {
	a.do("start "+name, func() error { return a.client.StartInstance(name) })
}

func (a *App) StopInstance(name string) {
	a.do("stop "+name, func() error { return a.client.StopInstance(name) })
}

func (a *App) KillInstance(name string) {
	a.do("kill "+name, func() error { return a.client.KillInstance(name) })
}

// Can reports whether the user holds the capability for action.
func (a *App) Can(action string) bool {
	return a.caps[action]
}

// Notice returns the outcome of the last request.
func (a *App) Notice() string {
	return a.notice
}

func (a *App) Quit() {
	/* This just posts the quit event. */
	a.app.Quit()
}

func (a *App) SetLogger(logger logrus.FieldLogger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Infof(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetClient() *rest.Client {
	return a.client
}

func (a *App) GetAppName() string {
	return "Mcvisor v1.0"
}

func NewApp(client *rest.Client, url string) *App {
	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.caps = map[string]bool{}
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.panel = app.main

	go app.refresh()
	return app
}

func (a *App) getItems() ([]*rest.InstanceInfo, error) {
	names, e := a.client.Instances()
	if e != nil {
		return nil, e
	}
	items := make([]*rest.InstanceInfo, 0, len(names))
	for _, n := range names {
		item, e := a.client.GetInstance(n)
		if e == nil {
			items = append(items, item)
		}
	}
	util.SortInstances(items)
	return items, nil
}

// refresh keeps the app items current.
func (a *App) refresh() {
	client := a.client
	etag := ""
	for {
		items, e := a.getItems()
		caps, ce := client.Capabilities()
		if e == nil {
			e = ce
		}

		a.app.PostFunc(func() {
			a.items = items
			a.err = e
			if caps != nil {
				a.caps = caps
			}
			a.app.Update()
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		etag, e = client.Watch(ctx, etag)
		cancel()
		if e != nil {
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) refreshLog(ctx context.Context) {
	info, e := a.client.GetLog()
	for {
		a.app.PostFunc(func() {
			if ctx.Err() != nil {
				return
			}
			a.logInfo = info
			a.logErr = e
			a.app.Update()
		})
		select {
		case <-ctx.Done():
			return
		default:
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog()
			continue
		}
		info, e = a.client.WatchLog(ctx, info)
	}
}

// refreshConsole polls the console backlog, which changes far more often
// than the registry serial.
func (a *App) refreshConsole(ctx context.Context, name string) {
	for {
		lines, e := a.client.Console(name)
		a.app.PostFunc(func() {
			if ctx.Err() != nil {
				return
			}
			a.console = lines
			a.logErr = e
			a.app.Update()
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (a *App) GetItems() ([]*rest.InstanceInfo, error) {
	return a.items, a.err
}

func (a *App) GetItem(name string) (*rest.InstanceInfo, error) {
	if a.err != nil {
		return nil, a.err
	}
	for _, i := range a.items {
		if i.Name == name {
			return i, nil
		}
	}
	return nil, mcvisor.ErrNoInstance
}

// GetLog returns the supervisor event log.
func (a *App) GetLog() (*rest.LogInfo, error) {
	return a.logInfo, a.logErr
}

// GetConsole returns the console backlog of the instance being shown.
func (a *App) GetConsole() ([]string, error) {
	return a.console, a.logErr
}

func (a *App) Run() {
	a.Logf("Starting up user interface")
	a.app.SetRootWidget(a)
	a.ShowMain()
	go func() {
		// Give us periodic updates
		for {
			a.app.Update()
			time.Sleep(time.Second)
		}
	}()
	a.Logf("Starting app loop")
	a.app.Run()
}
