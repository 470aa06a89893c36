package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAggregator_SetIsIdempotent(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator()

	req.True(agg.Set("a", "alice", t0))
	req.False(agg.Set("a", "alice", t0.Add(time.Second)))

	req.Equal([]string{"alice"}, agg.Snapshot())
}

func TestAggregator_SetClearRoundTrip(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator()
	agg.Set("b", "bob", t0)
	before := agg.Snapshot()

	// When alice starts and stops typing
	agg.Set("a", "alice", t0)
	req.True(agg.Clear("a"))

	// Then the snapshot is back where it started
	req.Equal(before, agg.Snapshot())

	// And clearing again is harmless
	req.False(agg.Clear("a"))
	req.False(agg.Clear("never-typed"))
}

func TestAggregator_SnapshotInsertionOrder(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator()

	agg.Set("c", "carol", t0)
	agg.Set("a", "alice", t0)
	agg.Set("b", "bob", t0)
	agg.Set("c", "carol", t0.Add(time.Second)) // refresh keeps position

	req.Equal([]string{"carol", "alice", "bob"}, agg.Snapshot())
}

func TestAggregator_DedupByConnection(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator()

	agg.Set("a1", "alice", t0)
	agg.Set("a1", "alice", t0)
	req.Equal([]string{"alice"}, agg.Snapshot())
}

func TestAggregator_Expire(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator()

	agg.Set("a", "alice", t0)
	agg.Set("b", "bob", t0.Add(4*time.Second))

	expired := agg.Expire(t0.Add(6*time.Second), 5*time.Second)

	req.Equal([]types.ConnectionID{"a"}, expired)
	req.Equal([]string{"bob"}, agg.Snapshot())

	req.Empty(agg.Expire(t0.Add(6*time.Second), 5*time.Second))
}

func TestAggregator_EmptySnapshot(t *testing.T) {
	snapshot := NewAggregator().Snapshot()
	require.NotNil(t, snapshot)
	require.Empty(t, snapshot)
}
