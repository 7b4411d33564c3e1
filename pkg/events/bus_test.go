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

package events

import (
	"context"
	"testing"
	"time"

	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/time/timetest"
)

func TestPublishAssignsGaplessSeq(t *testing.T) {
	bus := NewBus(0, 0)
	for i := 0; i < 5; i++ {
		event := bus.Publish("scan-a", scan.EventScannerProgress, nil)
		if event.Seq != int64(i+1) {
			t.Errorf("expected seq %v, got %v", i+1, event.Seq)
		}
	}
	// Seq is per scan; another scan starts at 1.
	if event := bus.Publish("scan-b", scan.EventScanStarted, nil); event.Seq != 1 {
		t.Errorf("expected independent scan to start at seq 1, got %v", event.Seq)
	}

	history := bus.History("scan-a", 0)
	if len(history) != 5 {
		t.Fatalf("expected 5 retained events, got %v", len(history))
	}
	for i, event := range history {
		if event.Seq != int64(i+1) {
			t.Errorf("expected gapless history, got seq %v at index %v", event.Seq, i)
		}
	}
}

func TestSubscribeReplaysThenLive(t *testing.T) {
	bus := NewBus(0, 0)
	bus.Publish("scan-a", scan.EventScanStarted, nil)
	bus.Publish("scan-a", scan.EventPageStarted, nil)
	bus.Publish("scan-a", scan.EventScannerStarted, nil)

	sub, err := bus.Subscribe(context.Background(), "scan-a", 1)
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}

	bus.Publish("scan-a", scan.EventScannerCompleted, nil)
	bus.Close("scan-a")

	var seqs []int64
	for event := range sub.Events {
		seqs = append(seqs, event.Seq)
	}

	want := []int64{2, 3, 4}
	if len(seqs) != len(want) {
		t.Fatalf("expected seqs %v, got %v", want, seqs)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Errorf("expected seq %v at position %v, got %v", want[i], i, seqs[i])
		}
	}
}

func TestSubscribeStrictlyIncreasing(t *testing.T) {
	bus := NewBus(0, 0)
	sub, err := bus.Subscribe(context.Background(), "scan-a", 0)
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}

	for i := 0; i < 20; i++ {
		bus.Publish("scan-a", scan.EventScannerProgress, nil)
	}
	bus.Close("scan-a")

	last := int64(0)
	for event := range sub.Events {
		if event.Seq <= last {
			t.Fatalf("sequence not strictly increasing: %v after %v", event.Seq, last)
		}
		last = event.Seq
	}
	if last != 20 {
		t.Errorf("expected final seq 20, got %v", last)
	}
}

func TestMultipleSubscribersSeeIdenticalSequence(t *testing.T) {
	bus := NewBus(0, 0)
	sub1, _ := bus.Subscribe(context.Background(), "scan-a", 0)
	sub2, _ := bus.Subscribe(context.Background(), "scan-a", 0)

	for i := 0; i < 7; i++ {
		bus.Publish("scan-a", scan.EventScannerProgress, nil)
	}
	bus.Close("scan-a")

	collect := func(sub *Subscription) []int64 {
		var seqs []int64
		for event := range sub.Events {
			seqs = append(seqs, event.Seq)
		}
		return seqs
	}
	seqs1 := collect(sub1)
	seqs2 := collect(sub2)

	if len(seqs1) != 7 || len(seqs2) != 7 {
		t.Fatalf("expected both subscribers to see 7 events, got %v and %v", len(seqs1), len(seqs2))
	}
	for i := range seqs1 {
		if seqs1[i] != seqs2[i] {
			t.Errorf("subscribers diverge at %v: %v vs %v", i, seqs1[i], seqs2[i])
		}
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	bus := NewBus(0, 2)
	sub, err := bus.Subscribe(context.Background(), "scan-a", 0)
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}

	// Queue bound is 2 and nothing is consuming; the third publish drops
	// the subscriber.
	for i := 0; i < 3; i++ {
		bus.Publish("scan-a", scan.EventScannerProgress, nil)
	}

	var got []scan.Event
	for event := range sub.Events {
		got = append(got, event)
	}
	if len(got) != 2 {
		t.Errorf("expected only the buffered events, got %v", len(got))
	}
	if !sub.Overrun() {
		t.Error("expected the subscription to be marked overrun")
	}

	// The producer keeps going unaffected.
	if event := bus.Publish("scan-a", scan.EventScannerProgress, nil); event.Seq != 4 {
		t.Errorf("expected producer to continue at seq 4, got %v", event.Seq)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := NewBus(0, 0)
	bus.Publish("scan-a", scan.EventScanStarted, nil)
	bus.Publish("scan-a", scan.EventScanFailed, scan.ScanFailedPayload{Reason: "all_scanners_failed"})
	bus.Close("scan-a")

	sub, err := bus.Subscribe(context.Background(), "scan-a", 0)
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}

	var types []scan.EventType
	for event := range sub.Events {
		types = append(types, event.Type)
	}
	if len(types) != 2 || types[1] != scan.EventScanFailed {
		t.Errorf("expected terminal history from a closed stream, got %v", types)
	}
	if sub.Overrun() {
		t.Error("closed-stream replay must not be marked overrun")
	}
}

func TestHistoryBounded(t *testing.T) {
	bus := NewBus(3, 0)
	for i := 0; i < 10; i++ {
		bus.Publish("scan-a", scan.EventScannerProgress, nil)
	}

	history := bus.History("scan-a", 0)
	if len(history) != 3 {
		t.Fatalf("expected history trimmed to 3, got %v", len(history))
	}
	if history[0].Seq != 8 || history[2].Seq != 10 {
		t.Errorf("expected the newest events retained, got seqs %v..%v", history[0].Seq, history[2].Seq)
	}
}

func TestSweepRemovesExpiredHistories(t *testing.T) {
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	timetest.UseFixedNow(base)
	defer timetest.ResetNow()

	bus := NewBus(0, 0)
	bus.Publish("scan-a", scan.EventScanStarted, nil)
	bus.Close("scan-a")
	bus.Publish("scan-b", scan.EventScanStarted, nil)

	timetest.UseFixedNow(base.Add(31 * time.Minute))
	if removed := bus.Sweep(30 * time.Minute); removed != 1 {
		t.Errorf("expected 1 history removed, got %v", removed)
	}
	if history := bus.History("scan-a", 0); history != nil {
		t.Errorf("expected scan-a history gone, got %v events", len(history))
	}
	// Open streams are never swept.
	if history := bus.History("scan-b", 0); len(history) != 1 {
		t.Errorf("expected scan-b history retained, got %v events", len(history))
	}
}

func TestSubscriberContextCancel(t *testing.T) {
	bus := NewBus(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "scan-a", 0)
	if err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}

	cancel()

	// The channel closes once the cancellation is observed.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-sub.Events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed after context cancel")
		}
	}
}
