package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesWithinWindow(t *testing.T) {
	d := New(Config{DebounceWindow: 30 * time.Millisecond, BatchThreshold: 100})
	defer d.Close()

	d.In() <- Event{Kind: Modified, Path: "a.py"}
	d.In() <- Event{Kind: Modified, Path: "b.py"}

	select {
	case batch := <-d.Out():
		require.Len(t, batch, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a coalesced batch before timeout")
	}
}

func TestDebouncerDedupsByPathKeepingMostRecent(t *testing.T) {
	d := New(Config{DebounceWindow: 30 * time.Millisecond, BatchThreshold: 100})
	defer d.Close()

	d.In() <- Event{Kind: Created, Path: "a.py"}
	d.In() <- Event{Kind: Modified, Path: "a.py"}

	batch := <-d.Out()
	require.Len(t, batch, 1)
	require.Equal(t, Modified, batch[0].Kind)
}

func TestDebouncerExpandsRenameIntoDeleteAndCreate(t *testing.T) {
	d := New(Config{DebounceWindow: 30 * time.Millisecond, BatchThreshold: 100})
	defer d.Close()

	d.In() <- Event{Kind: Renamed, From: "old.py", Path: "new.py"}

	batch := <-d.Out()
	require.Len(t, batch, 2)

	kinds := map[string]EventKind{}
	for _, ev := range batch {
		kinds[ev.Path] = ev.Kind
	}
	require.Equal(t, Deleted, kinds["old.py"])
	require.Equal(t, Created, kinds["new.py"])
}

func TestDebouncerFlushesImmediatelyAtBatchThreshold(t *testing.T) {
	d := New(Config{DebounceWindow: time.Hour, BatchThreshold: 2})
	defer d.Close()

	d.In() <- Event{Kind: Modified, Path: "a.py"}
	d.In() <- Event{Kind: Modified, Path: "b.py"}

	select {
	case batch := <-d.Out():
		require.Len(t, batch, 2)
	case <-time.After(time.Second):
		t.Fatal("threshold overflow should flush immediately, not wait for the hour-long window")
	}
}

func TestDebouncerFlushesPendingOnClose(t *testing.T) {
	d := New(Config{DebounceWindow: time.Hour, BatchThreshold: 100})

	d.In() <- Event{Kind: Modified, Path: "a.py"}
	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case batch := <-d.Out():
		require.Len(t, batch, 1)
	case <-time.After(time.Second):
		t.Fatal("Close should flush any pending partial batch")
	}
}
