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
	"regexp"
	"strconv"
)

// Well known server.properties keys.
const (
	PropServerPort = "server-port"
	PropLevelName  = "level-name"
	PropMaxPlayers = "max-players"
)

// Properties holds the flat key=value contents of server.properties.
type Properties map[string]string

var propLine = regexp.MustCompile(`^\s*([A-Za-z0-9_.\-]+)\s*=(.*)$`)

// ReadProperties parses key=value lines.  Comments (#, !) and lines that
// do not look like assignments are ignored; later keys win.
func ReadProperties(r io.Reader) (Properties, error) {
	props := Properties{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && (line[0] == '#' || line[0] == '!') {
			continue
		}
		if m := propLine.FindStringSubmatch(line); m != nil {
			props[m[1]] = m[2]
		}
	}
	if e := scanner.Err(); e != nil {
		return nil, configErr("reading properties: %v", e)
	}
	return props, nil
}

// LoadProperties reads a properties file from disk.
func LoadProperties(path string) (Properties, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, resourceErr("%v", e)
	}
	defer f.Close()
	return ReadProperties(f)
}

// Port returns the configured server port, or 0 if unset or malformed.
func (p Properties) Port() int {
	port, e := strconv.Atoi(p[PropServerPort])
	if e != nil {
		return 0
	}
	return port
}

func (p Properties) clone() Properties {
	rv := make(Properties, len(p))
	for k, v := range p {
		rv[k] = v
	}
	return rv
}
