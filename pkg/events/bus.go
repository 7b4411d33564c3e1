/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package events is the per-scan pub/sub bus. Each scan has one producer
// (the orchestrator) and any number of subscribers; events carry a
// monotonic 1-based sequence number and a bounded history is retained so
// late subscribers can replay what they missed. The producer is never
// blocked by a slow consumer; a subscriber whose queue overruns is
// dropped.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/scan"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

// Defaults; overridable per Bus via NewBus.
const (
	DefaultHistorySize = 500
	DefaultQueueBound  = 100
)

// Bus fans scan events out to subscribers and retains bounded per-scan
// history. Safe for concurrent use.
type Bus struct {
	mu          sync.Mutex
	streams     map[string]*stream
	historySize int
	queueBound  int
}

// stream is the per-scan state: retained events, the next sequence number
// and the live subscriber set.
type stream struct {
	history  []scan.Event
	firstSeq int64
	nextSeq  int64
	subs     map[*Subscription]bool
	closed   bool
	closedAt time.Time
}

// Subscription is one consumer's view of a scan's event stream. Events
// arrive on Events in strictly increasing sequence order; the channel is
// closed when the stream closes or the subscriber overruns.
type Subscription struct {
	// Events delivers replayed history followed by live events.
	Events <-chan scan.Event

	ch   chan scan.Event
	done chan struct{}

	mu      sync.Mutex
	overrun bool
	removed bool
}

// Overrun reports whether the subscription was dropped because its queue
// exceeded the bus bound.
func (s *Subscription) Overrun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrun
}

// markRemoved closes the delivery channel exactly once.
func (s *Subscription) markRemoved(overrun bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	s.overrun = overrun
	close(s.ch)
	close(s.done)
}

// NewBus returns a Bus with the given history size and per-subscriber
// queue bound; zero values select the defaults.
func NewBus(historySize, queueBound int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if queueBound <= 0 {
		queueBound = DefaultQueueBound
	}
	return &Bus{
		streams:     map[string]*stream{},
		historySize: historySize,
		queueBound:  queueBound,
	}
}

// Publish assigns the next sequence number for the scan, appends the event
// to its history and fans it out to current subscribers. Never blocks:
// a subscriber that cannot accept the event immediately is dropped with an
// overrun. Returns the published event.
func (b *Bus) Publish(scanID string, eventType scan.EventType, payload interface{}) scan.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.streams[scanID]
	if st == nil {
		st = newStream()
		b.streams[scanID] = st
	}
	if st.closed {
		// Publishing after Close indicates an orchestrator bug; log and
		// drop rather than corrupting the terminal history.
		logrus.WithFields(logrus.Fields{"scan_id": scanID, "type": eventType}).
			Warning("event published after stream close, dropping")
		return scan.Event{}
	}

	event := scan.Event{
		ScanID:  scanID,
		Seq:     st.nextSeq,
		TS:      varcotime.Now(),
		Type:    eventType,
		Payload: payload,
	}
	st.nextSeq++

	st.history = append(st.history, event)
	if len(st.history) > b.historySize {
		drop := len(st.history) - b.historySize
		st.history = st.history[drop:]
		st.firstSeq += int64(drop)
	}

	for sub := range st.subs {
		select {
		case sub.ch <- event:
		default:
			delete(st.subs, sub)
			sub.markRemoved(true)
			logrus.WithField("scan_id", scanID).Warning("dropping slow event subscriber (overrun)")
		}
	}
	return event
}

// Subscribe opens a subscription starting after sinceSeq. Retained history
// with seq > sinceSeq is replayed before any live event. Subscribing to a
// scan that has not published yet is legal; the stream is created on the
// spot. If ctx is cancelled the subscription is dropped.
func (b *Bus) Subscribe(ctx context.Context, scanID string, sinceSeq int64) (*Subscription, error) {
	b.mu.Lock()

	st := b.streams[scanID]
	if st == nil {
		st = newStream()
		b.streams[scanID] = st
	}

	replay := st.eventsAfter(sinceSeq)

	// The channel must hold the full replay plus the live bound so that a
	// subscriber which consumes nothing until the replay is queued is not
	// treated as slow.
	sub := &Subscription{
		ch:   make(chan scan.Event, len(replay)+b.queueBound),
		done: make(chan struct{}),
	}
	sub.Events = sub.ch
	for _, event := range replay {
		sub.ch <- event
	}

	if st.closed {
		// Terminal stream: the subscriber gets the retained history and an
		// immediate close, no live phase.
		b.mu.Unlock()
		sub.markRemoved(false)
		return sub, nil
	}

	st.subs[sub] = true
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(scanID, sub)
		case <-sub.done:
		}
	}()

	return sub, nil
}

// History returns a snapshot of the retained events with seq > sinceSeq.
func (b *Bus) History(scanID string, sinceSeq int64) []scan.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streams[scanID]
	if st == nil {
		return nil
	}
	events := st.eventsAfter(sinceSeq)
	out := make([]scan.Event, len(events))
	copy(out, events)
	return out
}

// LatestSeq returns the sequence number of the most recently published
// event for the scan, 0 if none.
func (b *Bus) LatestSeq(scanID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streams[scanID]
	if st == nil {
		return 0
	}
	return st.nextSeq - 1
}

// Close ends the scan's live stream: subscriber channels are closed after
// their pending deliveries and the history is retained for late readers
// until Sweep removes it.
func (b *Bus) Close(scanID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streams[scanID]
	if st == nil || st.closed {
		return
	}
	st.closed = true
	st.closedAt = varcotime.Now()
	for sub := range st.subs {
		sub.markRemoved(false)
	}
	st.subs = map[*Subscription]bool{}
}

// Sweep removes the history of streams that have been closed for longer
// than retention. Returns how many scan histories were removed.
func (b *Bus) Sweep(retention time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := varcotime.Now()
	removed := 0
	for scanID, st := range b.streams {
		if st.closed && now.Sub(st.closedAt) > retention {
			delete(b.streams, scanID)
			removed++
		}
	}
	return removed
}

func (b *Bus) unsubscribe(scanID string, sub *Subscription) {
	b.mu.Lock()
	st := b.streams[scanID]
	if st != nil {
		delete(st.subs, sub)
	}
	b.mu.Unlock()
	sub.markRemoved(false)
}

func newStream() *stream {
	return &stream{
		firstSeq: 1,
		nextSeq:  1,
		subs:     map[*Subscription]bool{},
	}
}

// eventsAfter returns the retained events with seq > sinceSeq. Events
// older than the retained window are gone; the caller starts from the
// oldest retained one.
func (st *stream) eventsAfter(sinceSeq int64) []scan.Event {
	if len(st.history) == 0 {
		return nil
	}
	start := sinceSeq + 1 - st.firstSeq
	if start < 0 {
		start = 0
	}
	if start >= int64(len(st.history)) {
		return nil
	}
	return st.history[start:]
}
