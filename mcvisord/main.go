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

// Command mcvisord supervises the game servers found under a root
// directory, and serves operators over HTTP.
//
//	/ws        interactive sessions (WebSocket)
//	/api/      REST interface with basic authentication
//	/metrics   Prometheus metrics
//	/          static files, if --static is given
//
// Flag defaults may be set in the environment, or in a .env file in the
// working directory, as MCVISOR_ADDR, MCVISOR_ROOT, MCVISOR_PERMISSIONS
// and MCVISOR_JAVA.
package main

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/mcvisor"
	"github.com/gdamore/mcvisor/rest"
	"github.com/gdamore/mcvisor/rpc"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/net/netutil"
)

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func main() {
	// A missing .env file is normal.
	_ = godotenv.Load()

	addr := flag.String("addr", env("MCVISOR_ADDR", "127.0.0.1:8321"), "listen address")
	root := flag.String("root", env("MCVISOR_ROOT", "."), "directory holding one directory per server")
	perms := flag.String("permissions", env("MCVISOR_PERMISSIONS", "permissions.yaml"), "permission file")
	java := flag.String("java", env("MCVISOR_JAVA", "java"), "java runtime")
	javaArgs := flag.StringArray("java-arg", nil, "extra argument for java (repeatable)")
	static := flag.String("static", "", "directory of static files to serve")
	maxConns := flag.Int("max-conns", 64, "maximum simultaneous connections")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logrus.New()
	lvl, e := logrus.ParseLevel(*level)
	if e != nil {
		logrus.Fatalf("Bad log level %q: %v", *level, e)
	}
	logger.SetLevel(lvl)

	metrics := mcvisor.NewMetrics("mcvisor")
	m := mcvisor.NewRegistry(mcvisor.Config{
		Root:        *root,
		Permissions: *perms,
		Java:        *java,
		JavaArgs:    *javaArgs,
		Logger:      logger,
		Metrics:     metrics,
	})
	// Operator-visible copy of our own log, served at /api/log.
	logger.SetOutput(io.MultiWriter(os.Stderr, m.Log()))

	// Fatal faults must not leave orphaned servers behind.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("fatal: %v", r)
			m.Interrupt()
			os.Exit(2)
		}
	}()

	if e := m.LoadPermissions(*perms); e != nil {
		logger.Fatalf("Cannot load permissions: %v", e)
	}
	if e := m.Scan(); e != nil {
		logger.Fatalf("Cannot scan %s: %v", *root, e)
	}

	sessions := rpc.NewHandler(m, logger, metrics)
	mux := http.NewServeMux()
	mux.Handle("/ws", sessions)
	mux.Handle("/api/", http.StripPrefix("/api", rest.NewHandler(m, logger)))
	mux.Handle("/metrics", metrics.Handler())
	if *static != "" {
		mux.Handle("/", http.FileServer(http.Dir(*static)))
	}

	l, e := net.Listen("tcp", *addr)
	if e != nil {
		m.Shutdown()
		logger.Fatalf("Cannot listen on %s: %v", *addr, e)
	}
	l = netutil.LimitListener(l, *maxConns)
	logger.WithField("addr", l.Addr().String()).Info("*** mcvisord listening ***")

	errs := make(chan error, 1)
	go func() {
		errs <- http.Serve(l, mux)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Wait for a termination signal, and shutdown cleanly if we get it.
	status := 0
	select {
	case sig := <-sigs:
		logger.Infof("Got %v, shutting down", sig)
	case e := <-errs:
		logger.WithError(e).Error("server failed")
		status = 1
	}
	sessions.Shutdown("server shutting down")
	m.Shutdown()
	fmt.Fprintln(os.Stderr, "mcvisord: exiting")
	os.Exit(status)
}
