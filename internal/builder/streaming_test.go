package builder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	tracker "github.com/hanpama/cascade/internal/tracker"
)

func TestStreaming_MatchesMaterializedOutput(t *testing.T) {
	mk := func() *tracker.Tracker { return activeTracker(t, 3) }

	materialized := New().BuildResponse(mk(), nil, true, nil)
	streamed := NewStreaming().BuildResponse(mk(), nil, true, nil)

	require.Equal(t, len(materialized.Cascade.Updated), len(streamed.Cascade.Updated))
	for i := range materialized.Cascade.Updated {
		require.Equal(t, materialized.Cascade.Updated[i].ID, streamed.Cascade.Updated[i].ID)
		require.Equal(t, materialized.Cascade.Updated[i].Operation, streamed.Cascade.Updated[i].Operation)
	}
	require.True(t, streamed.Cascade.Metadata.Streaming)
	require.False(t, materialized.Cascade.Metadata.Streaming)
}

func TestStreaming_StopsAtUpdatedLimit(t *testing.T) {
	tr := activeTracker(t, 10)
	resp := NewStreaming(WithMaxUpdatedEntities(4)).BuildResponse(tr, nil, true, nil)
	require.Len(t, resp.Cascade.Updated, 4)
	require.True(t, resp.Cascade.Metadata.TruncatedUpdated)
	require.False(t, tr.Active(), "streaming build ends the transaction")
}

func TestStreaming_StopsAtDeletedLimit(t *testing.T) {
	tr := tracker.New()
	_, err := tr.StartTransaction()
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.NoError(t, tr.TrackDelete("Post", fmt.Sprintf("p%d", i)))
	}
	resp := NewStreaming(WithMaxDeletedEntities(5)).BuildResponse(tr, nil, true, nil)
	require.Len(t, resp.Cascade.Deleted, 5)
	require.True(t, resp.Cascade.Metadata.TruncatedDeleted)
}

func TestStreaming_AppliesEntityFilter(t *testing.T) {
	tr := activeTracker(t, 4, tracker.WithEntityFilter(func(e any) bool {
		return e.(map[string]any)["id"] != "u2"
	}))
	resp := NewStreaming().BuildResponse(tr, nil, true, nil)
	require.Len(t, resp.Cascade.Updated, 3)
}

func TestStreaming_InvalidationCap(t *testing.T) {
	var hints []Invalidation
	for i := 0; i < 6; i++ {
		hints = append(hints, i)
	}
	inv := &recordingInvalidator{out: hints}
	tr := activeTracker(t, 1)

	resp := NewStreaming(WithInvalidator(inv), WithMaxInvalidations(2)).BuildResponse(tr, nil, true, nil)
	require.Len(t, resp.Cascade.Invalidations, 2)
	require.True(t, resp.Cascade.Metadata.TruncatedInvalidations)
}

func TestStreaming_NoTransaction(t *testing.T) {
	tr := tracker.New()
	resp := NewStreaming().BuildResponse(tr, nil, true, nil)
	require.True(t, resp.Success)
	require.Empty(t, resp.Cascade.Updated)
	require.True(t, resp.Cascade.Metadata.Streaming)
}
