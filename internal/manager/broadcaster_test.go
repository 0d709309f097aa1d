// ABOUTME: Tests for the herd event broadcaster.
// ABOUTME: Covers keyed delivery, ordering, drops, and lifecycle cleanup.

package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botherd/internal/bot"
)

func logEvent(botID, msg string) Event {
	return Event{
		Kind:    bot.EventLog,
		BotID:   botID,
		Time:    time.Now(),
		Level:   bot.LevelInfo,
		Message: msg,
	}
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestPublishReachesHerdAndBotSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := context.Background()

	herd, herdID := b.Subscribe(ctx, "")
	defer b.Unsubscribe("", herdID)
	one, oneID := b.Subscribe(ctx, "bot-1")
	defer b.Unsubscribe("bot-1", oneID)
	other, otherID := b.Subscribe(ctx, "bot-2")
	defer b.Unsubscribe("bot-2", otherID)

	b.Publish(logEvent("bot-1", "hello"))

	assert.Equal(t, "hello", recv(t, herd).Message)
	assert.Equal(t, "hello", recv(t, one).Message)
	select {
	case ev := <-other:
		t.Fatalf("wrong-key subscriber got event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscriberSeesEventsInOrder(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "")
	defer b.Unsubscribe("", subID)

	for i := range 10 {
		b.Publish(logEvent("bot-1", string(rune('a'+i))))
	}
	for i := range 10 {
		assert.Equal(t, string(rune('a'+i)), recv(t, ch).Message)
	}
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Never read from this subscription.
	_, subID := b.Subscribe(context.Background(), "")
	defer b.Unsubscribe("", subID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range subscriberBufferSize * 3 {
			b.Publish(logEvent("bot-1", "flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestPublishDuringSubscriberChurn(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := context.Background()

	// Herd-wide subscribers widen the window between snapshotting the
	// target set and the sends; none of them ever read.
	for range 200 {
		_, subID := b.Subscribe(ctx, "")
		defer b.Unsubscribe("", subID)
	}

	const iterations = 2000
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				b.Publish(logEvent("bot-1", "churn"))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range iterations {
			ch, subID := b.Subscribe(ctx, "bot-1")
			b.Unsubscribe("bot-1", subID)
			for range ch {
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// A send on a just-closed subscriber channel panics and fails the
	// whole run; finishing cleanly is the property under test.
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("publish/unsubscribe churn did not finish")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "bot-1")
	b.Unsubscribe("bot-1", subID)

	_, ok := <-ch
	assert.False(t, ok)

	// Double unsubscribe is safe.
	b.Unsubscribe("bot-1", subID)
}

func TestContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "")
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "channel should close after cancel")
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()

	a, _ := b.Subscribe(ctx, "")
	c, _ := b.Subscribe(ctx, "bot-1")
	b.Close()

	_, okA := <-a
	_, okC := <-c
	assert.False(t, okA)
	assert.False(t, okC)
}
