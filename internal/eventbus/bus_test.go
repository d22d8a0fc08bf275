package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	var mu sync.Mutex
	var seen []int

	done := make(chan struct{})
	b.Subscribe(CategoryPrice, func(e Event) {
		mu.Lock()
		seen = append(seen, e.Payload.(int))
		if len(seen) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Publish(Event{Category: CategoryPrice, Kind: KindTick, Payload: i})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestQueuedPublishBlocksWhenFull(t *testing.T) {
	b := New(1, nil)
	defer b.Close()

	block := make(chan struct{})
	unblock := make(chan struct{})
	b.Subscribe(CategoryPrice, func(e Event) {
		close(block)
		<-unblock
	})

	b.Publish(Event{Category: CategoryPrice, Kind: KindTick, Payload: 1})
	<-block // first event is being handled, dispatcher is blocked on wg.Wait

	// The queue (capacity 1) should accept exactly one more before blocking.
	filled := make(chan struct{})
	go func() {
		b.Publish(Event{Category: CategoryPrice, Kind: KindTick, Payload: 2})
		close(filled)
	}()

	select {
	case <-filled:
	case <-time.After(time.Second):
		t.Fatal("publish of second event should not block while queue has room")
	}

	blockedPublish := make(chan struct{})
	go func() {
		b.Publish(Event{Category: CategoryPrice, Kind: KindTick, Payload: 3})
		close(blockedPublish)
	}()

	select {
	case <-blockedPublish:
		t.Fatal("third publish should block: queue is full and dispatcher is busy")
	case <-time.After(200 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-blockedPublish:
	case <-time.After(2 * time.Second):
		t.Fatal("third publish never unblocked")
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	var mu sync.Mutex
	otherCalled := false

	b.Subscribe(CategoryPrice, func(e Event) {
		panic("boom")
	})
	done := make(chan struct{})
	b.Subscribe(CategoryPrice, func(e Event) {
		mu.Lock()
		otherCalled = true
		mu.Unlock()
		close(done)
	})

	b.Publish(Event{Category: CategoryPrice, Kind: KindTick})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, otherCalled)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	id := b.Subscribe(CategoryPrice, func(e Event) {})
	b.Unsubscribe(CategoryPrice, id)
	b.Unsubscribe(CategoryPrice, id) // must not panic
}

func TestPublishSyncWaitsForSubscribers(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	var flag bool
	b.Subscribe(CategorySystem, func(e Event) {
		time.Sleep(50 * time.Millisecond)
		flag = true
	})

	b.PublishSync(Event{Category: CategorySystem, Kind: KindSystemStopped})
	require.True(t, flag)
}
