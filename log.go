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
	"strings"
	"sync"
	"time"
)

const (
	// BacklogSize is the number of console lines kept per instance.
	BacklogSize = 30

	// MaxLogRecords is the size of the registry event log.
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a bounded ring of text records.  It is safe for concurrent use,
// and is an io.Writer so that it can sit behind a logger.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

// Write implements io.Writer.  Each newline delimited line becomes one
// record; empty trailing lines are dropped.
func (log *Log) Write(b []byte) (int, error) {
	str := strings.TrimRight(string(b), "\r\n")
	log.lock()
	for _, line := range strings.Split(str, "\n") {
		log.append(strings.TrimRight(line, "\r"))
	}
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
	return len(b), nil
}

// Append adds a single line, without splitting it.
func (log *Log) Append(line string) {
	log.lock()
	log.append(line)
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

func (log *Log) append(line string) {
	idx := log.numRecords % log.maxRecords
	log.id++
	log.records[idx].Text = line
	log.records[idx].Id = log.id
	log.records[idx].Time = time.Now()
	// NB: numRecords may actually be more than maxRecords.
	// In that case, we've looped, but we use this really to
	// track the next index.
	log.numRecords++
}

func (log *Log) Clear() {
	log.lock()
	log.numRecords = 0
	// We presume that we cannot add new records more quickly than
	// once every nanosecond.
	log.id = time.Now().UnixNano()
	log.unlock()
}

// GetRecords returns the records that are stored, as well as an ID
// suitable for use as an Etag.  The last parameter can be the last ID
// that was checked, in which case this function will return nil immediately
// if the log has not changed since that ID was returned, without duplicating
// any records.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, log.records[index%log.maxRecords])
		index++
	}
	return recs, log.id
}

// Lines returns just the text of the stored records, oldest first.
func (log *Log) Lines() []string {
	recs, _ := log.GetRecords(0)
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, r.Text)
	}
	return lines
}

// Watch waits until the log changes from the given id, or until expire
// has elapsed.  It returns the current id.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	log.cvs[cv] = true
	for {
		if log.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log holding at most max records.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	log := &Log{
		maxRecords: max,
		records:    make([]LogRecord, max),
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
	return log
}
