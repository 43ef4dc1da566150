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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

type LogInfo struct {
	etag    string
	Records []LogRecord
}

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client

	// Cached data
	info      *RegistryInfo
	instances map[string]*InstanceInfo
	log       *LogInfo
	lock      sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/instances"
	}
	return c.base + "/instances/" + url.PathEscape(name)
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if res.StatusCode != http.StatusOK {
		return "", decodeError(res, body)
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func decodeError(res *http.Response, body []byte) error {
	e := &Error{}
	if json.Unmarshal(body, e) != nil || e.Message == "" {
		return &Error{Code: res.StatusCode, Message: res.Status}
	}
	return e
}

func (c *Client) send(method, url string, v interface{}) error {
	var body io.Reader = http.NoBody
	if v != nil {
		b, e := json.Marshal(v)
		if e != nil {
			return e
		}
		body = bytes.NewReader(b)
	}
	req, e := http.NewRequest(method, url, body)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", mimeJson)
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(res.Body)
		return decodeError(res, b)
	}
	return nil
}

// Watch waits for any change in the registry, starting from etag.  An
// empty etag returns the current one at once.
func (c *Client) Watch(ctx context.Context, etag string) (string, error) {
	wait := 300
	if etag == "" {
		wait = 0
	}
	info := &RegistryInfo{}
	tag, e := c.poll(ctx, c.base+"/", etag, wait, info)
	if e != nil {
		return "", e
	}
	if tag == "" {
		return etag, nil
	}
	info.etag = tag
	c.lock.Lock()
	c.info = info
	c.lock.Unlock()
	return tag, nil
}

// Info returns top-level information about the registry.
func (c *Client) Info() (*RegistryInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, e := c.Watch(ctx, ""); e != nil {
		return nil, e
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.info, nil
}

// Instances returns the names of the known instances.
func (c *Client) Instances() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v := []string{}
	if _, e := c.poll(ctx, c.url(""), "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollInstance(ctx context.Context, name string, secs int, last *InstanceInfo) (*InstanceInfo, error) {
	c.lock.Lock()
	cached, ok := c.instances[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		// Already newer than what the caller has seen.
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &InstanceInfo{}
	etag, e := c.poll(ctx, c.url(name), otag, secs, v)
	if e != nil {
		c.lock.Lock()
		delete(c.instances, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		if cached == nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.instances[name] = v
	c.lock.Unlock()
	return v, nil
}

// GetInstance returns the current view of one instance.
func (c *Client) GetInstance(name string) (*InstanceInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.pollInstance(ctx, name, 0, nil)
}

// WatchInstance waits for the instance to change from last.
func (c *Client) WatchInstance(ctx context.Context, name string, last *InstanceInfo) (*InstanceInfo, error) {
	return c.pollInstance(ctx, name, 300, last)
}

// Capabilities returns what the authenticated user may do.
func (c *Client) Capabilities() (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	caps := map[string]bool{}
	if _, e := c.poll(ctx, c.base+"/capabilities", "", 0, &caps); e != nil {
		return nil, e
	}
	return caps, nil
}

// Console returns the recent console lines of an instance.
func (c *Client) Console(name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lines := []string{}
	if _, e := c.poll(ctx, c.url(name)+"/console", "", 0, &lines); e != nil {
		return nil, e
	}
	return lines, nil
}

func (c *Client) StartInstance(name string) error {
	return c.send("POST", c.url(name)+"/start", nil)
}

func (c *Client) StopInstance(name string) error {
	return c.send("POST", c.url(name)+"/stop", nil)
}

func (c *Client) KillInstance(name string) error {
	return c.send("POST", c.url(name)+"/kill", nil)
}

func (c *Client) Command(name, cmd string) error {
	return c.send("POST", c.url(name)+"/command", &CommandRequest{Command: cmd})
}

func (c *Client) CreateSnapshot(name, world string) error {
	return c.send("POST", c.url(name)+"/snapshots", &SnapshotRequest{World: world})
}

func (c *Client) RestoreSnapshot(name, world, snapshot string) error {
	return c.send("POST", c.url(name)+"/snapshots/"+url.PathEscape(snapshot)+"/restore",
		&SnapshotRequest{World: world})
}

func (c *Client) DeleteSnapshot(name, snapshot string) error {
	return c.send("DELETE", c.url(name)+"/snapshots/"+url.PathEscape(snapshot), nil)
}

func (c *Client) Rescan() error {
	return c.send("POST", c.base+"/rescan", nil)
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}

	v := &LogInfo{}
	etag, e := c.poll(ctx, c.base+"/log", otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.log = v
	c.lock.Unlock()
	return v, nil
}

// WatchLog waits for the event log to change from last.
func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {
	// Let the poll wait for up to 300 secs (5 minutes).
	return c.pollLog(ctx, 300, last)
}

// GetLog returns the event log.
func (c *Client) GetLog() (*LogInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.pollLog(ctx, 0, nil)
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		base:      baseURI,
		client:    &http.Client{Transport: t},
		instances: make(map[string]*InstanceInfo),
	}
}
