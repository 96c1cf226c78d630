package runtime

import (
	"sync"
	"testing"
)

func TestBroadcastTriggerIsIdempotent(t *testing.T) {
	b := NewBroadcast()

	if b.Triggered() {
		t.Fatal("fresh broadcast must not be triggered")
	}

	b.Trigger()
	b.Trigger()

	if !b.Triggered() {
		t.Fatal("broadcast should report triggered")
	}
	select {
	case <-b.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestBroadcastReachesAllListeners(t *testing.T) {
	b := NewBroadcast()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-b.Done()
		}()
	}

	b.Trigger()
	wg.Wait()
}

func TestLateListenerObservesTrigger(t *testing.T) {
	b := NewBroadcast()
	b.Trigger()

	select {
	case <-b.Done():
	default:
		t.Fatal("listener subscribing after the trigger must still observe it")
	}
}

func TestConcurrentTriggers(t *testing.T) {
	b := NewBroadcast()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Trigger()
		}()
	}
	wg.Wait()

	if !b.Triggered() {
		t.Fatal("broadcast should be triggered")
	}
}
