package tracker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func ref(typename, id string) map[string]any {
	return map[string]any{"__typename": typename, "id": id}
}

func TestTraversal_SelfReference(t *testing.T) {
	u := ref("User", "u1")
	u["friend"] = u // self-cycle

	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(u))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 1)
}

func TestTraversal_TwoCycle(t *testing.T) {
	a := ref("User", "a")
	b := ref("User", "b")
	a["friend"] = b
	b["friend"] = a

	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(a))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 2)
}

func TestTraversal_ThreeCycle(t *testing.T) {
	a, b, c := ref("Node", "a"), ref("Node", "b"), ref("Node", "c")
	a["next"] = b
	b["next"] = c
	c["next"] = a

	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(a))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 3)
	// the cycle-closing hop enters one level past the last new entity
	require.Equal(t, 3, data.Metadata.Depth)
}

func TestTraversal_DepthLimit(t *testing.T) {
	// chain: n0 -> n1 -> n2 -> n3 -> n4
	nodes := make([]map[string]any, 5)
	for i := range nodes {
		nodes[i] = ref("Node", fmt.Sprintf("n%d", i))
	}
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i]["next"] = nodes[i+1]
	}

	tr := New(WithMaxDepth(2))
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(nodes[0]))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	// root at depth 0 plus two hops
	require.Len(t, data.Updated, 3)
	require.Equal(t, 2, data.Metadata.Depth)
}

func TestTraversal_EntityBudget(t *testing.T) {
	nodes := make([]map[string]any, 10)
	for i := range nodes {
		nodes[i] = ref("Node", fmt.Sprintf("n%d", i))
	}
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i]["next"] = nodes[i+1]
	}

	tr := New(WithMaxEntities(5), WithMaxDepth(20))
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(nodes[0]))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 5)
	require.True(t, data.Metadata.TruncatedUpdated)
	require.Equal(t, 5, data.Metadata.AffectedCount)
}

func TestTraversal_BudgetSilentlyDropsDirectTracking(t *testing.T) {
	tr := New(WithMaxEntities(1))
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(ref("User", "u1")))
	require.NoError(t, tr.TrackCreate(ref("User", "u2"))) // over budget, not an error

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 1)
	require.True(t, data.Metadata.TruncatedUpdated)
}

func TestTraversal_RelatedBreadthLimit(t *testing.T) {
	root := ref("Post", "p1")
	items := make([]any, 6)
	for i := range items {
		items[i] = ref("Comment", fmt.Sprintf("c%d", i))
	}
	root["comments"] = items

	tr := New(WithMaxRelatedPerEntity(4))
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(root))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	// root + first four comments
	require.Len(t, data.Updated, 5)
}

func TestTraversal_Disabled(t *testing.T) {
	root := ref("Post", "p1")
	root["author"] = ref("User", "u1")

	tr := New(WithRelationshipTracking(false))
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(root))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 1)
	require.Equal(t, 0, data.Metadata.Depth)
}

func TestTraversal_RelatedRecordUpdated(t *testing.T) {
	root := ref("Post", "p1")
	root["author"] = ref("User", "u1")

	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(root))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 2)
	require.Equal(t, OpCreated, data.Updated[0].Operation)
	require.Equal(t, OpUpdated, data.Updated[1].Operation, "discovered entities record UPDATED")
}

func TestTraversal_DiamondVisitedOnce(t *testing.T) {
	shared := ref("Tag", "t1")
	left := ref("Post", "p1")
	right := ref("Post", "p2")
	left["tag"] = shared
	right["tag"] = shared
	root := ref("Feed", "f1")
	root["posts"] = []any{left, right}

	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(root))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 4, "shared entity appears once")
}
