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

// Package rest exposes a Registry over plain HTTP, with basic
// authentication and long polling, and provides a client for it.
//
// A GET carrying the PollEtagHeader and PollTimeHeader headers waits, up
// to the given number of seconds, for the resource to change from that
// Etag before answering.  Combined with If-None-Match this lets a client
// watch a resource with one outstanding request.
package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/mcvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Mcvisor-Poll-Etag"
	PollTimeHeader = "X-Mcvisor-Poll-Time"

	// MaxPoll bounds how long a single long poll may wait.
	MaxPoll = 5 * time.Minute
)

var ok struct{}

type RegistryInfo struct {
	Root       string    `json:"root"`
	Serial     int64     `json:"serial,string"`
	Instances  int       `json:"instances"`
	UpdateTime time.Time `json:"updated"`
	CreateTime time.Time `json:"created"`
	etag       string
}

type InstanceInfo struct {
	mcvisor.InstanceView
	etag string
}

type LogRecord = mcvisor.LogRecord

type CommandRequest struct {
	Command string `json:"command"`
}

type SnapshotRequest struct {
	World string `json:"world"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode maps an error onto an HTTP status.  Missing instances are
// indistinguishable from denied ones.
func StatusCode(e error) int {
	switch {
	case e == nil:
		return http.StatusOK
	case errors.Is(e, mcvisor.ErrDenied):
		return http.StatusForbidden
	case errors.Is(e, mcvisor.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(e, mcvisor.ErrConfig):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// NewError converts err into an Error suitable for a response.
func NewError(err error) *Error {
	code := StatusCode(err)
	msg := err.Error()
	if code == http.StatusForbidden {
		msg = mcvisor.ErrDenied.Error()
	}
	return &Error{Code: code, Message: msg}
}

func formatEtag(n int64) string {
	return fmt.Sprintf(`"%d"`, n)
}

func parseEtag(s string) (int64, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "W/")
	n, e := strconv.ParseInt(strings.Trim(s, `"`), 10, 64)
	return n, e == nil
}
