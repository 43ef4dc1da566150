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

// Command mcvisor is a client for mcvisord.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- the server address, default is
//			  http://127.0.0.1:8321/api
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	instances                      - list all instances
//	status [<name> ...]            - show status for the named instances (or all)
//	info <name>                    - show detailed instance info
//	start <name>                   - start the named instance
//	stop <name>                    - stop the named instance, with warning
//	kill <name>                    - kill the named instance
//	cmd <name> <command ...>       - send a console command
//	console <name>                 - print the console backlog
//	snapshot <name> create <world>
//	snapshot <name> restore <world> <snapshot>
//	snapshot <name> delete <snapshot>
//	rescan                         - rescan the root and permission file
//	log                            - print the supervisor log
//	ui                             - the interactive board (the default)
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/gdamore/mcvisor/mcvisor/util"
	"github.com/gdamore/mcvisor/rest"
)

var addr = "http://127.0.0.1:8321/api"
var auth = ""

func usage() {
	logrus.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func showStatus(s *rest.InstanceInfo) {
	fmt.Printf("%-20s %-10s %6d %4d %10s %s\n", s.Name,
		util.Status(s), s.Port, s.Players, s.Uptime, s.Reason)
}

func check(e error) {
	if e != nil {
		logrus.Fatalf("Failed: %v", e)
	}
}

func snapshot(client *rest.Client, args []string) {
	if len(args) < 3 {
		usage()
	}
	name := args[0]
	switch args[1] {
	case "create":
		if len(args) != 3 {
			usage()
		}
		check(client.CreateSnapshot(name, args[2]))
	case "restore":
		if len(args) != 4 {
			usage()
		}
		check(client.RestoreSnapshot(name, args[2], args[3]))
	case "delete":
		if len(args) != 3 {
			usage()
		}
		check(client.DeleteSnapshot(name, args[2]))
	default:
		usage()
	}
}

func main() {
	flag.StringVarP(&addr, "addr", "a", addr, "mcvisord address")
	flag.StringVarP(&auth, "user", "u", auth, "user:pass authentication")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			logrus.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"ui"}
	}

	switch args[0] {
	case "instances":
		if len(args) != 1 {
			usage()
		}
		s, e := client.Instances()
		check(e)
		for _, name := range s {
			fmt.Println(name)
		}
	case "start":
		if len(args) != 2 {
			usage()
		}
		check(client.StartInstance(args[1]))
	case "stop":
		if len(args) != 2 {
			usage()
		}
		check(client.StopInstance(args[1]))
	case "kill":
		if len(args) != 2 {
			usage()
		}
		check(client.KillInstance(args[1]))
	case "cmd":
		if len(args) < 3 {
			usage()
		}
		check(client.Command(args[1], strings.Join(args[2:], " ")))
	case "snapshot":
		snapshot(client, args[1:])
	case "rescan":
		if len(args) != 1 {
			usage()
		}
		check(client.Rescan())
	case "console":
		if len(args) != 2 {
			usage()
		}
		lines, e := client.Console(args[1])
		check(e)
		for _, line := range lines {
			fmt.Println(line)
		}
	case "log":
		if len(args) != 1 {
			usage()
		}
		info, e := client.GetLog()
		check(e)
		for _, r := range info.Records {
			fmt.Printf("%s %s\n", r.Time.Format(time.StampMilli), r.Text)
		}
	case "info":
		if len(args) != 2 {
			usage()
		}
		s, e := client.GetInstance(args[1])
		check(e)
		for _, line := range util.Details(s) {
			fmt.Println(line)
		}
	case "status":
		names := args[1:]
		var e error
		if len(names) == 0 {
			names, e = client.Instances()
			check(e)
		}
		if len(names) == 0 {
			return
		}
		infos := []*rest.InstanceInfo{}
		for _, n := range names {
			info, e := client.GetInstance(n)
			if e == nil {
				infos = append(infos, info)
			} else {
				logrus.Errorf("Failed: %s: %v", n, e)
			}
		}
		util.SortInstances(infos)
		for _, info := range infos {
			showStatus(info)
		}
	case "ui":
		doUI(client, addr)
	default:
		usage()
	}
}
