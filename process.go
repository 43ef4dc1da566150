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
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Process is an operating system process attached to an instance.
type Process interface {
	// WriteLine writes a line to the process' standard input.
	WriteLine(line string) error

	// Signal delivers a signal.  It is harmless to signal a process
	// that has already exited.
	Signal(sig os.Signal) error

	// Pid returns the process id, or -1 if unknown.
	Pid() int
}

// SpawnSpec describes the process to start.
type SpawnSpec struct {
	Dir  string
	Argv []string
}

// Spawner starts a process.  Each line the process prints (on either
// stdout or stderr) is passed to out.  Once the process has exited and all
// its output has been delivered, exit is called exactly once.  Both
// callbacks run on goroutines owned by the spawner.
type Spawner func(spec SpawnSpec, out func(line string), exit func(error)) (Process, error)

// execProcess is a Process backed by os/exec.
type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lock  sync.Mutex
}

func (p *execProcess) WriteLine(line string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, e := io.WriteString(p.stdin, line+"\n")
	return e
}

func (p *execProcess) Signal(sig os.Signal) error {
	if proc := p.cmd.Process; proc != nil {
		return proc.Signal(sig)
	}
	return nil
}

func (p *execProcess) Pid() int {
	if proc := p.cmd.Process; proc != nil {
		return proc.Pid
	}
	return -1
}

func doLog(r io.Reader, out func(string), wg *sync.WaitGroup) {
	defer wg.Done()
	// Gather stdout/stderr in chunks of lines
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			out(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// ExecSpawner starts real processes with os/exec.
func ExecSpawner(spec SpawnSpec, out func(string), exit func(error)) (Process, error) {
	if len(spec.Argv) == 0 {
		return nil, resourceErr("empty command")
	}
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	setDeathSignal(cmd)

	stdin, e := cmd.StdinPipe()
	if e != nil {
		return nil, resourceErr("stdin: %v", e)
	}
	stdout, e := cmd.StdoutPipe()
	if e != nil {
		return nil, resourceErr("stdout: %v", e)
	}
	stderr, e := cmd.StderrPipe()
	if e != nil {
		return nil, resourceErr("stderr: %v", e)
	}
	if e := cmd.Start(); e != nil {
		return nil, resourceErr("starting %s: %v", spec.Argv[0], e)
	}

	p := &execProcess{cmd: cmd, stdin: stdin}
	var readers sync.WaitGroup
	readers.Add(2)
	go doLog(stdout, out, &readers)
	go doLog(stderr, out, &readers)
	go func() {
		// Drain output before Wait, which closes the pipes.
		readers.Wait()
		e := cmd.Wait()
		stdin.Close()
		exit(e)
	}()
	return p, nil
}
