package bus

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/missionmesh/core"
)

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	b := New()
	e1 := b.Publish(core.NewConsoleEvent("a", "one"))
	e2 := b.Publish(core.NewConsoleEvent("a", "two"))
	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
}

func TestSubscriberReceivesLiveEvents(t *testing.T) {
	b := New()
	_, sub := b.Subscribe()
	defer sub.Close()

	b.Publish(core.NewStatusEvent("a", core.TaskPending))
	b.Publish(core.NewStatusEvent("a", core.TaskCompleted))

	ev := <-sub.C()
	assert.Equal(t, core.TaskPending, ev.Status)
	ev = <-sub.C()
	assert.Equal(t, core.TaskCompleted, ev.Status)
}

func TestLateJoinerSnapshot(t *testing.T) {
	b := New()
	b.Publish(core.NewPlanEvent("proj", "react", []core.TaskSpec{{ID: "a"}, {ID: "b"}}))
	b.Publish(core.NewStatusEvent("a", core.TaskPending))
	b.Publish(core.NewStatusEvent("b", core.TaskPending))
	b.Publish(core.NewStatusEvent("a", core.TaskThinking))
	b.Publish(core.NewTerminalStatusEvent("a", core.TaskCompleted, "out", 1.0))

	snapshot, sub := b.Subscribe()
	defer sub.Close()

	// Latest plan plus the latest status per task, in first-seen task order.
	require.Len(t, snapshot, 3)
	assert.Equal(t, core.EventPlan, snapshot[0].Type)
	assert.Equal(t, "a", snapshot[1].TaskID)
	assert.Equal(t, core.TaskCompleted, snapshot[1].Status)
	assert.Equal(t, "b", snapshot[2].TaskID)
	assert.Equal(t, core.TaskPending, snapshot[2].Status)

	// Live tail continues identically to an original subscriber.
	published := b.Publish(core.NewTerminalStatusEvent("b", core.TaskCompleted, "out", 2.0))
	got := <-sub.C()
	assert.Equal(t, published.Seq, got.Seq)
}

func TestSnapshotIncludesPendingInputRequest(t *testing.T) {
	b := New()
	b.Publish(core.NewStatusEvent("intake", core.TaskWaitingInput))
	b.Publish(core.NewInputRequestEvent("intake", "Provide target", &core.UIIntake{Fields: []core.UIField{{ID: "host"}}}))

	snapshot, sub := b.Subscribe()
	defer sub.Close()

	require.Len(t, snapshot, 2)
	assert.Equal(t, core.TaskWaitingInput, snapshot[0].Status)
	assert.Equal(t, core.EventInputRequest, snapshot[1].Type)

	// Once the task completes the request no longer appears.
	b.Publish(core.NewTerminalStatusEvent("intake", core.TaskCompleted, "{}", 0.1))
	snapshot2, sub2 := b.Subscribe()
	defer sub2.Close()
	require.Len(t, snapshot2, 1)
	assert.Equal(t, core.TaskCompleted, snapshot2[0].Status)
}

func TestTerminalEventClosesSubscribers(t *testing.T) {
	b := New()
	_, sub := b.Subscribe()

	b.Publish(core.NewCompleteEvent(nil, 1.0, false))

	ev, ok := <-sub.C()
	require.True(t, ok)
	assert.Equal(t, core.EventComplete, ev.Type)
	_, ok = <-sub.C()
	assert.False(t, ok, "channel should be closed after the terminal event")

	// Publishing after the terminal event is ignored.
	b.Publish(core.NewConsoleEvent("a", "late"))
	assert.Len(t, b.History(), 1)
}

func TestFinishedRunReplayIsByteIdentical(t *testing.T) {
	b := New()
	b.Publish(core.NewPlanEvent("proj", "react", []core.TaskSpec{{ID: "a"}}))
	b.Publish(core.NewStatusEvent("a", core.TaskPending))
	b.Publish(core.NewTerminalStatusEvent("a", core.TaskCompleted, "out", 1.0))
	b.Publish(core.NewCompleteEvent(map[string]core.TaskResult{"a": {Output: "out", Status: core.TaskCompleted}}, 1.0, false))

	snap1, sub1 := b.Subscribe()
	snap2, sub2 := b.Subscribe()

	raw1, err := json.Marshal(snap1)
	require.NoError(t, err)
	raw2, err := json.Marshal(snap2)
	require.NoError(t, err)
	assert.Equal(t, raw1, raw2)

	// Subscriptions to a finished run are already closed.
	_, ok := <-sub1.C()
	assert.False(t, ok)
	_, ok = <-sub2.C()
	assert.False(t, ok)

	// The snapshot ends with the terminal event.
	require.NotEmpty(t, snap1)
	assert.Equal(t, core.EventComplete, snap1[len(snap1)-1].Type)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewWithBuffer(2)
	_, sub := b.Subscribe()
	defer sub.Close()

	b.Publish(core.NewConsoleEvent("a", "1"))
	b.Publish(core.NewConsoleEvent("a", "2"))
	b.Publish(core.NewConsoleEvent("a", "3")) // overflows, drops "1"

	ev := <-sub.C()
	assert.Equal(t, "2", ev.Message)
	ev = <-sub.C()
	assert.Equal(t, "3", ev.Message)
}

func TestConcurrentJoinersNeverSeeAnEventTwice(t *testing.T) {
	b := NewWithBuffer(2048)

	// Joiners attach while the publisher is racing: every tail event must
	// carry a sequence number strictly above the snapshot's high-water mark,
	// otherwise the joiner observed the same event in both.
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, sub := b.Subscribe()
			defer sub.Close()
			var high uint64
			for _, ev := range snapshot {
				if ev.Seq > high {
					high = ev.Seq
				}
			}
			for ev := range sub.C() {
				assert.Greater(t, ev.Seq, high)
				high = ev.Seq
			}
		}()
	}

	for i := 0; i < 500; i++ {
		b.Publish(core.NewStatusEvent("a", core.TaskThinking))
	}
	b.Publish(core.NewCompleteEvent(nil, 1.0, false))
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New()
	_, sub := b.Subscribe()
	sub.Close()
	sub.Close()

	// Publishing after a subscriber left must not panic.
	b.Publish(core.NewConsoleEvent("a", "x"))
}
