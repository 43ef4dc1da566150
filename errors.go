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
	"errors"
	"fmt"
)

// Error kinds.  Errors returned by this package wrap exactly one of these,
// so callers can classify them with errors.Is.
var (
	ErrStateConflict = errors.New("state conflict")
	ErrDenied        = errors.New("permission denied")
	ErrResource      = errors.New("resource error")
	ErrConfig        = errors.New("configuration error")
)

var (
	ErrNoEngine     = fmt.Errorf("%w: instance has no runnable engine", ErrStateConflict)
	ErrNotStoppable = fmt.Errorf("%w: server is not available", ErrStateConflict)
	ErrNotActive    = fmt.Errorf("%w: server is not active", ErrStateConflict)
	ErrBusy         = fmt.Errorf("%w: server is busy", ErrStateConflict)
	ErrNotStopped   = fmt.Errorf("%w: cannot restore a server that is not stopped", ErrStateConflict)
	ErrBadRequest   = fmt.Errorf("%w: malformed request", ErrStateConflict)
	ErrNoInstance   = fmt.Errorf("%w: no such instance", ErrDenied)
	ErrUnknownUser  = fmt.Errorf("%w: unknown user", ErrDenied)
	ErrBadSecret    = fmt.Errorf("%w: wrong password", ErrDenied)
)

func stateErr(format string, v ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrStateConflict}, v...)...)
}

func resourceErr(format string, v ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrResource}, v...)...)
}

func configErr(format string, v ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConfig}, v...)...)
}
